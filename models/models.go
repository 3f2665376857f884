package models

import "time"

type User struct {
	ID                    int64
	Username              string
	PasswordHash          string
	AvatarURL             string
	Bio                   string
	PreferredLanguageCode string
	CreatedAt             time.Time
}

// Session is the authenticated identity attached to a connection. Records are
// shared across connections resolving the same token and must not be mutated
// after publication; a change replaces the record with a fresh copy.
type Session struct {
	Token                 string
	UserID                int64
	PreferredLanguageCode string
	CreatedAt             time.Time
	ExpiresAt             time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type Message struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	Content    string
	CreatedAt  time.Time
}

type GroupMessage struct {
	ID        int64
	GroupID   int64
	SenderID  int64
	Content   string
	CreatedAt time.Time
}

type Group struct {
	ID        int64
	Name      string
	About     string
	AvatarURL string
	CreatedBy int64
	CreatedAt time.Time
}

type GroupMember struct {
	UserID    int64
	Username  string
	AvatarURL string
	Role      string // "owner", "admin" or "member"
}

type Post struct {
	ID           int64
	UserID       int64
	Content      string
	ImageURL     string
	CreatedAt    time.Time
	Author       User
	LikeCount    int
	CommentCount int
}

type Comment struct {
	ID        int64
	PostID    int64
	UserID    int64
	Content   string
	CreatedAt time.Time
	Author    User
}
