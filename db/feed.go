package db

import (
	"time"

	"yegnachat/models"
)

func (db *DB) CreatePost(userID int64, content, imageURL string, ts time.Time) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO posts (user_id, content, image_url, created_at) VALUES (?, ?, ?, ?)",
		userID, content, imageURL, ts.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (db *DB) AttachPostImage(postID int64, imageURL string) error {
	_, err := db.conn.Exec("UPDATE posts SET image_url = ? WHERE id = ?", imageURL, postID)
	return err
}

// ListFeedPosts returns newest-first posts with author and like/comment
// counts.
func (db *DB) ListFeedPosts(limit, offset int) ([]models.Post, error) {
	rows, err := db.conn.Query(`
		SELECT p.id, p.user_id, p.content, p.image_url, p.created_at,
		       u.username, u.avatar_url,
		       (SELECT COUNT(*) FROM post_likes pl WHERE pl.post_id = p.id) AS like_count,
		       (SELECT COUNT(*) FROM post_comments pc WHERE pc.post_id = p.id) AS comment_count
		FROM posts p
		JOIN users u ON u.id = p.user_id
		ORDER BY p.created_at DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var p models.Post
		var createdAt string
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Content, &p.ImageURL, &createdAt,
			&p.Author.Username, &p.Author.AvatarURL, &p.LikeCount, &p.CommentCount,
		); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		p.Author.ID = p.UserID
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (db *DB) LikePost(userID, postID int64) error {
	_, err := db.conn.Exec(`
		INSERT INTO post_likes (post_id, user_id, liked_at) VALUES (?, ?, ?)
		ON CONFLICT(post_id, user_id) DO UPDATE SET liked_at = excluded.liked_at`,
		postID, userID, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (db *DB) UnlikePost(userID, postID int64) (bool, error) {
	res, err := db.conn.Exec(
		"DELETE FROM post_likes WHERE post_id = ? AND user_id = ?",
		postID, userID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *DB) AddComment(userID, postID int64, content string, ts time.Time) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO post_comments (post_id, user_id, content, created_at) VALUES (?, ?, ?, ?)",
		postID, userID, content, ts.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (db *DB) ListComments(postID int64) ([]models.Comment, error) {
	rows, err := db.conn.Query(`
		SELECT c.id, c.post_id, c.user_id, c.content, c.created_at,
		       u.username, u.avatar_url
		FROM post_comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.post_id = ?
		ORDER BY c.created_at ASC`,
		postID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var c models.Comment
		var createdAt string
		if err := rows.Scan(
			&c.ID, &c.PostID, &c.UserID, &c.Content, &createdAt,
			&c.Author.Username, &c.Author.AvatarURL,
		); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		c.Author.ID = c.UserID
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
