package protocol

// Response payloads. Every direct response carries a status of "ok" or
// "error"; bare error frames use ErrorFrame instead.

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func OK() StatusResponse { return StatusResponse{Status: StatusOK} }

func Errorf(message string) StatusResponse {
	return StatusResponse{Status: StatusError, Message: message}
}

// SessionResponse answers both login and get_session.
type SessionResponse struct {
	Status                string `json:"status"`
	Token                 string `json:"token,omitempty"`
	UserID                int64  `json:"user_id,omitempty"`
	PreferredLanguageCode string `json:"preferred_language_code,omitempty"`
}

type UserSummary struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

type UserProfile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	Bio       string `json:"bio"`
}

type UserResponse struct {
	Status  string       `json:"status"`
	User    *UserProfile `json:"user,omitempty"`
	Message string       `json:"message,omitempty"`
}

type GroupSummary struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	About     string `json:"about"`
	AvatarURL string `json:"avatar_url"`
}

type ListUsersResponse struct {
	Status string         `json:"status"`
	Users  []UserSummary  `json:"users"`
	Groups []GroupSummary `json:"groups"`
}

type SearchUsersResponse struct {
	Status string        `json:"status"`
	Users  []UserSummary `json:"users"`
}

// HistoryMessage is one entry of fetch_history_response, enriched with the
// sender's display data.
type HistoryMessage struct {
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	AvatarURL      string `json:"avatar_url"`
	Content        string `json:"content"`
}

type FetchHistoryResponse struct {
	Status   string           `json:"status"`
	ChatType string           `json:"chat_type"`
	Messages []HistoryMessage `json:"messages"`
}

// ChatEvent is the enriched send_message frame fanned out to recipients.
type ChatEvent struct {
	ChatType       string `json:"chat_type"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	AvatarURL      string `json:"avatar_url"`
	ReceiverID     int64  `json:"receiver_id,omitempty"`
	GroupID        int64  `json:"group_id,omitempty"`
	Content        string `json:"content"`
}

type CreateGroupResponse struct {
	Status  string `json:"status"`
	GroupID int64  `json:"group_id,omitempty"`
	Message string `json:"message,omitempty"`
}

type AddUsersToGroupResponse struct {
	Status     string `json:"status"`
	GroupID    int64  `json:"group_id"`
	AddedCount int    `json:"added_count,omitempty"`
	Message    string `json:"message,omitempty"`
}

type AddGroupMemberResponse struct {
	Status        string `json:"status"`
	GroupID       int64  `json:"group_id,omitempty"`
	AddedUsername string `json:"added_username,omitempty"`
	Message       string `json:"message,omitempty"`
}

type RemoveGroupMemberResponse struct {
	Status        string `json:"status"`
	RemovedUserID int64  `json:"removed_user_id,omitempty"`
	Message       string `json:"message,omitempty"`
}

type ChangeRoleResponse struct {
	Status  string `json:"status"`
	UserID  int64  `json:"user_id,omitempty"`
	NewRole string `json:"new_role,omitempty"`
	Message string `json:"message,omitempty"`
}

type LeaveGroupResponse struct {
	Status  string `json:"status"`
	GroupID int64  `json:"group_id"`
	Left    bool   `json:"left,omitempty"`
	Message string `json:"message,omitempty"`
}

type GroupInfo struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	About     string `json:"about"`
	AvatarURL string `json:"avatar_url"`
	CreatedBy int64  `json:"created_by"`
}

type GroupInfoResponse struct {
	Status  string     `json:"status"`
	Group   *GroupInfo `json:"group,omitempty"`
	Message string     `json:"message,omitempty"`
}

type GroupListResponse struct {
	Status string         `json:"status"`
	Groups []GroupSummary `json:"groups"`
}

type MemberInfo struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	Role      string `json:"role"`
}

type GroupMembersResponse struct {
	Status  string       `json:"status"`
	GroupID int64        `json:"group_id"`
	Members []MemberInfo `json:"members"`
}

type GroupAdminsResponse struct {
	Status  string       `json:"status"`
	GroupID int64        `json:"group_id"`
	Admins  []MemberInfo `json:"admins"`
}

type LanguageResponse struct {
	Status                string `json:"status"`
	PreferredLanguageCode string `json:"preferred_language_code,omitempty"`
	Message               string `json:"message,omitempty"`
}

type FollowResponse struct {
	Status string `json:"status"`
	UserID int64  `json:"user_id"`
}

type CreatePostResponse struct {
	Status  string `json:"status"`
	PostID  int64  `json:"post_id,omitempty"`
	Message string `json:"message,omitempty"`
}

type FeedPost struct {
	PostID    int64       `json:"post_id"`
	Content   string      `json:"content"`
	ImageURL  string      `json:"image_url"`
	CreatedAt string      `json:"created_at"`
	User      UserSummary `json:"user"`
	Likes     int         `json:"likes"`
	Comments  int         `json:"comments"`
}

type ListFeedPostsResponse struct {
	Status string     `json:"status"`
	Posts  []FeedPost `json:"posts"`
}

type PostActionResponse struct {
	Status string `json:"status"`
	PostID int64  `json:"post_id"`
}

type AddCommentResponse struct {
	Status    string `json:"status"`
	CommentID int64  `json:"comment_id"`
	PostID    int64  `json:"post_id"`
}

type CommentInfo struct {
	CommentID int64       `json:"comment_id"`
	Content   string      `json:"content"`
	CreatedAt string      `json:"created_at"`
	User      UserSummary `json:"user"`
}

type ListCommentsResponse struct {
	Status   string        `json:"status"`
	PostID   int64         `json:"post_id"`
	Comments []CommentInfo `json:"comments"`
}
