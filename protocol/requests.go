package protocol

import "errors"

// Request payloads, one schema per message kind. Validate catches missing and
// contradictory fields before any handler runs.

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	if r.Username == "" || r.Password == "" {
		return errors.New("username and password are required")
	}
	return nil
}

type SignupRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	AvatarURL string `json:"avatar_url"`
	Bio       string `json:"bio"`
}

func (r *SignupRequest) Validate() error {
	if r.Username == "" || r.Password == "" {
		return errors.New("username and password are required")
	}
	return nil
}

type GetSessionRequest struct {
	Token string `json:"token"`
}

func (r *GetSessionRequest) Validate() error {
	if r.Token == "" {
		return errors.New("token is required")
	}
	return nil
}

type SendMessageRequest struct {
	Content    string `json:"content"`
	ReceiverID *int64 `json:"receiver_id,omitempty"`
	GroupID    *int64 `json:"group_id,omitempty"`
}

func (r *SendMessageRequest) Validate() error {
	if r.Content == "" {
		return errors.New("content is required")
	}
	if r.ReceiverID == nil && r.GroupID == nil {
		return errors.New("receiver_id or group_id is required")
	}
	if r.ReceiverID != nil && r.GroupID != nil {
		return errors.New("receiver_id and group_id are mutually exclusive")
	}
	return nil
}

const (
	ChatTypePrivate = "private"
	ChatTypeGroup   = "group"
)

type FetchHistoryRequest struct {
	ChatType string `json:"chat_type"`
	UserID   int64  `json:"user_id,omitempty"`
	GroupID  int64  `json:"group_id,omitempty"`
}

func (r *FetchHistoryRequest) Validate() error {
	switch r.ChatType {
	case ChatTypePrivate:
		if r.UserID == 0 {
			return errors.New("user_id is required for private history")
		}
	case ChatTypeGroup:
		if r.GroupID == 0 {
			return errors.New("group_id is required for group history")
		}
	default:
		return errors.New("chat_type must be private or group")
	}
	return nil
}

type UserIDRequest struct {
	UserID int64 `json:"user_id"`
}

func (r *UserIDRequest) Validate() error {
	if r.UserID == 0 {
		return errors.New("user_id is required")
	}
	return nil
}

type SearchUsersRequest struct {
	Query string `json:"query"`
}

func (r *SearchUsersRequest) Validate() error { return nil }

type SetLanguageRequest struct {
	LanguageCode string `json:"language_code"`
}

func (r *SetLanguageRequest) Validate() error {
	if r.LanguageCode == "" {
		return errors.New("language_code is required")
	}
	return nil
}

type SetPasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (r *SetPasswordRequest) Validate() error {
	if r.OldPassword == "" || r.NewPassword == "" {
		return errors.New("old_password and new_password are required")
	}
	return nil
}

type SetBioRequest struct {
	Bio string `json:"bio"`
}

func (r *SetBioRequest) Validate() error { return nil }

type GroupIDRequest struct {
	GroupID int64 `json:"group_id"`
}

func (r *GroupIDRequest) Validate() error {
	if r.GroupID == 0 {
		return errors.New("group_id is required")
	}
	return nil
}

type CreateGroupRequest struct {
	Name      string  `json:"name"`
	About     string  `json:"about"`
	AvatarURL string  `json:"avatar_url"`
	UserIDs   []int64 `json:"user_ids"`
}

func (r *CreateGroupRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type AddUsersToGroupRequest struct {
	GroupID int64   `json:"group_id"`
	UserIDs []int64 `json:"user_ids"`
}

func (r *AddUsersToGroupRequest) Validate() error {
	if r.GroupID == 0 {
		return errors.New("group_id is required")
	}
	if len(r.UserIDs) == 0 {
		return errors.New("user_ids is required")
	}
	return nil
}

type AddGroupMemberRequest struct {
	GroupID  int64  `json:"group_id"`
	Username string `json:"username"`
}

func (r *AddGroupMemberRequest) Validate() error {
	if r.GroupID == 0 || r.Username == "" {
		return errors.New("group_id and username are required")
	}
	return nil
}

type GroupUserRequest struct {
	GroupID int64 `json:"group_id"`
	UserID  int64 `json:"user_id"`
}

func (r *GroupUserRequest) Validate() error {
	if r.GroupID == 0 || r.UserID == 0 {
		return errors.New("group_id and user_id are required")
	}
	return nil
}

type ChangeRoleRequest struct {
	GroupID int64  `json:"group_id"`
	UserID  int64  `json:"user_id"`
	NewRole string `json:"new_role"`
}

func (r *ChangeRoleRequest) Validate() error {
	if r.GroupID == 0 || r.UserID == 0 || r.NewRole == "" {
		return errors.New("group_id, user_id and new_role are required")
	}
	return nil
}

type UpdateGroupInfoRequest struct {
	GroupID   int64  `json:"group_id"`
	Name      string `json:"name"`
	About     string `json:"about"`
	AvatarURL string `json:"avatar_url"`
}

func (r *UpdateGroupInfoRequest) Validate() error {
	if r.GroupID == 0 {
		return errors.New("group_id is required")
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// MaxImageBytes caps in-stream image payloads at 10 MB.
const MaxImageBytes = 10_000_000

type CreatePostRequest struct {
	Content   string `json:"content"`
	HasImage  bool   `json:"has_image"`
	ImageSize int64  `json:"image_size,omitempty"`
	Mime      string `json:"mime,omitempty"`
}

func (r *CreatePostRequest) Validate() error {
	if r.Content == "" && !r.HasImage {
		return errors.New("post cannot be empty")
	}
	return nil
}

type ListFeedPostsRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func (r *ListFeedPostsRequest) Validate() error {
	if r.Limit < 0 || r.Offset < 0 {
		return errors.New("limit and offset must not be negative")
	}
	return nil
}

type PostIDRequest struct {
	PostID int64 `json:"post_id"`
}

func (r *PostIDRequest) Validate() error {
	if r.PostID == 0 {
		return errors.New("post_id is required")
	}
	return nil
}

type AddCommentRequest struct {
	PostID  int64  `json:"post_id"`
	Content string `json:"content"`
}

func (r *AddCommentRequest) Validate() error {
	if r.PostID == 0 || r.Content == "" {
		return errors.New("post_id and content are required")
	}
	return nil
}
