// Package images persists uploaded image blobs on disk and hands back the
// URL paths the HTTP image server serves them under.
package images

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create image root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string { return s.root }

// SavePost stores a post image and returns its public URL path.
func (s *Store) SavePost(postID int64, r io.Reader, mime string) (string, error) {
	name := fmt.Sprintf("post_%d_%d%s", postID, time.Now().UnixMilli(), extFromMime(mime))
	return s.save("posts", name, r)
}

// SaveFor stores an image for a purpose-scoped owner, e.g. avatar uploads.
func (s *Store) SaveFor(purpose string, ownerID int64, r io.Reader, mime string) (string, error) {
	name := fmt.Sprintf("%s_%d_%d%s", purpose, ownerID, time.Now().UnixMilli(), extFromMime(mime))
	return s.save(purpose, name, r)
}

func (s *Store) save(dir, name string, r io.Reader) (string, error) {
	saveDir := filepath.Join(s.root, dir)
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(saveDir, name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	return "/uploads/" + dir + "/" + name, nil
}

func extFromMime(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
