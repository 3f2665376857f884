package server

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"yegnachat/protocol"
)

const defaultFeedLimit = 20

// handleCreatePost creates the post row first, then consumes the announced
// binary image bytes from the same stream. Image metadata is validated
// before any byte is read so a rejected upload never touches the framer.
func (d *Dispatcher) handleCreatePost(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.CreatePostRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	userID := c.Session().UserID
	content := strings.TrimSpace(req.Content)

	// Claim the declared bytes on the framer the moment metadata validates:
	// any failure past this point leaves the stream desynchronized and the
	// read loop tears the connection down instead of parsing image bytes as
	// frames.
	var image io.Reader
	if req.HasImage {
		if !strings.HasPrefix(req.Mime, "image/") {
			return protocol.NewReply("create_post_response", protocol.CreatePostResponse{
				Status:  protocol.StatusError,
				Message: "Invalid image type",
			}), nil
		}
		if req.ImageSize <= 0 || req.ImageSize > protocol.MaxImageBytes {
			return protocol.NewReply("create_post_response", protocol.CreatePostResponse{
				Status:  protocol.StatusError,
				Message: "Invalid image size",
			}), nil
		}
		image = c.ReadExact(req.ImageSize)
	}

	postID, err := d.db.CreatePost(userID, content, "", time.Now())
	if err != nil {
		return nil, storageErr(err)
	}

	if req.HasImage {
		imageURL, err := d.images.SavePost(postID, image, req.Mime)
		if err != nil {
			return nil, storageErr(err)
		}
		if err := d.db.AttachPostImage(postID, imageURL); err != nil {
			return nil, storageErr(err)
		}
	}

	return protocol.NewReply("create_post_response", protocol.CreatePostResponse{
		Status: protocol.StatusOK,
		PostID: postID,
	}), nil
}

func (d *Dispatcher) handleListFeedPosts(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.ListFeedPostsRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultFeedLimit
	}

	posts, err := d.db.ListFeedPosts(limit, req.Offset)
	if err != nil {
		return nil, storageErr(err)
	}

	out := make([]protocol.FeedPost, 0, len(posts))
	for _, p := range posts {
		out = append(out, protocol.FeedPost{
			PostID:    p.ID,
			Content:   p.Content,
			ImageURL:  p.ImageURL,
			CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
			User: protocol.UserSummary{
				ID:        p.Author.ID,
				Username:  p.Author.Username,
				AvatarURL: p.Author.AvatarURL,
			},
			Likes:    p.LikeCount,
			Comments: p.CommentCount,
		})
	}

	return protocol.NewReply("list_feed_posts_response", protocol.ListFeedPostsResponse{
		Status: protocol.StatusOK,
		Posts:  out,
	}), nil
}

func (d *Dispatcher) handleLikePost(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.PostIDRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	if err := d.db.LikePost(c.Session().UserID, req.PostID); err != nil {
		return nil, storageErr(err)
	}
	return protocol.NewReply("like_post_response", protocol.PostActionResponse{
		Status: protocol.StatusOK,
		PostID: req.PostID,
	}), nil
}

func (d *Dispatcher) handleUnlikePost(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.PostIDRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	if _, err := d.db.UnlikePost(c.Session().UserID, req.PostID); err != nil {
		return nil, storageErr(err)
	}
	return protocol.NewReply("unlike_post_response", protocol.PostActionResponse{
		Status: protocol.StatusOK,
		PostID: req.PostID,
	}), nil
}

func (d *Dispatcher) handleAddComment(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.AddCommentRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	commentID, err := d.db.AddComment(c.Session().UserID, req.PostID, req.Content, time.Now())
	if err != nil {
		return nil, storageErr(err)
	}

	return protocol.NewReply("add_comment_response", protocol.AddCommentResponse{
		Status:    protocol.StatusOK,
		CommentID: commentID,
		PostID:    req.PostID,
	}), nil
}

func (d *Dispatcher) handleListComments(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.PostIDRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	comments, err := d.db.ListComments(req.PostID)
	if err != nil {
		return nil, storageErr(err)
	}

	out := make([]protocol.CommentInfo, 0, len(comments))
	for _, cm := range comments {
		out = append(out, protocol.CommentInfo{
			CommentID: cm.ID,
			Content:   cm.Content,
			CreatedAt: cm.CreatedAt.UTC().Format(time.RFC3339),
			User: protocol.UserSummary{
				ID:        cm.Author.ID,
				Username:  cm.Author.Username,
				AvatarURL: cm.Author.AvatarURL,
			},
		})
	}

	return protocol.NewReply("list_comments_response", protocol.ListCommentsResponse{
		Status:   protocol.StatusOK,
		PostID:   req.PostID,
		Comments: out,
	}), nil
}
