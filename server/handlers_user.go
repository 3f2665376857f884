package server

import (
	"encoding/json"
	"strings"

	"yegnachat/db"
	"yegnachat/models"
	"yegnachat/protocol"
)

func profileOf(u *models.User) *protocol.UserProfile {
	return &protocol.UserProfile{
		ID:        u.ID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		Bio:       u.Bio,
	}
}

func summariesOf(users []models.User) []protocol.UserSummary {
	out := make([]protocol.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, protocol.UserSummary{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL})
	}
	return out
}

func groupSummariesOf(groups []models.Group) []protocol.GroupSummary {
	out := make([]protocol.GroupSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, protocol.GroupSummary{ID: g.ID, Name: g.Name, About: g.About, AvatarURL: g.AvatarURL})
	}
	return out
}

func (d *Dispatcher) handleGetUser(c *Conn, _ json.RawMessage) (*protocol.Reply, error) {
	user, err := d.db.GetUserByID(c.Session().UserID)
	if err == db.ErrNoRows {
		return protocol.NewReply("get_user_response", protocol.UserResponse{
			Status:  protocol.StatusError,
			Message: "User not found",
		}), nil
	}
	if err != nil {
		return nil, storageErr(err)
	}

	return protocol.NewReply("get_user_response", protocol.UserResponse{
		Status: protocol.StatusOK,
		User:   profileOf(user),
	}), nil
}

func (d *Dispatcher) handleGetUserProfile(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.UserIDRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	user, err := d.db.GetUserByID(req.UserID)
	if err == db.ErrNoRows {
		return protocol.NewReply("get_user_profile_response", protocol.UserResponse{
			Status:  protocol.StatusError,
			Message: "User not found",
		}), nil
	}
	if err != nil {
		return nil, storageErr(err)
	}

	return protocol.NewReply("get_user_profile_response", protocol.UserResponse{
		Status: protocol.StatusOK,
		User:   profileOf(user),
	}), nil
}

// handleListUsers returns the caller's conversation partners plus the groups
// they belong to, which is what a chat list renders.
func (d *Dispatcher) handleListUsers(c *Conn, _ json.RawMessage) (*protocol.Reply, error) {
	userID := c.Session().UserID

	users, err := d.db.ListUsersWithMessages(userID)
	if err != nil {
		return nil, storageErr(err)
	}
	groups, err := d.db.ListGroupsForUser(userID)
	if err != nil {
		return nil, storageErr(err)
	}

	return protocol.NewReply("list_users_response", protocol.ListUsersResponse{
		Status: protocol.StatusOK,
		Users:  summariesOf(users),
		Groups: groupSummariesOf(groups),
	}), nil
}

func (d *Dispatcher) handleSearchUsers(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.SearchUsersRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	query := strings.ToLower(strings.TrimSpace(req.Query))
	if query == "" {
		return protocol.NewReply("search_users_response", protocol.SearchUsersResponse{
			Status: protocol.StatusOK,
			Users:  []protocol.UserSummary{},
		}), nil
	}

	users, err := d.db.SearchUsers(query, c.Session().UserID, 20)
	if err != nil {
		return nil, storageErr(err)
	}

	return protocol.NewReply("search_users_response", protocol.SearchUsersResponse{
		Status: protocol.StatusOK,
		Users:  summariesOf(users),
	}), nil
}

func (d *Dispatcher) handleSetPreferredLanguage(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.SetLanguageRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	session := c.Session()
	updated, err := d.db.UpdatePreferredLanguage(session.UserID, req.LanguageCode)
	if err != nil {
		return nil, storageErr(err)
	}
	if !updated {
		return protocol.NewReply("set_preferred_language_response", protocol.LanguageResponse{
			Status:  protocol.StatusError,
			Message: "Failed to update language",
		}), nil
	}

	// Session records are immutable once shared; publish a fresh copy to the
	// store and this connection instead of writing through the old pointer.
	fresh := *session
	fresh.PreferredLanguageCode = req.LanguageCode
	d.sessions.Refresh(&fresh)
	c.SetSession(&fresh)

	return protocol.NewReply("set_preferred_language_response", protocol.LanguageResponse{
		Status:                protocol.StatusOK,
		PreferredLanguageCode: req.LanguageCode,
	}), nil
}

func (d *Dispatcher) handleGetPreferredLanguage(c *Conn, _ json.RawMessage) (*protocol.Reply, error) {
	return protocol.NewReply("get_preferred_language_response", protocol.LanguageResponse{
		Status:                protocol.StatusOK,
		PreferredLanguageCode: c.Session().PreferredLanguageCode,
	}), nil
}

func (d *Dispatcher) handleSetPassword(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.SetPasswordRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	ok, err := d.db.ChangePassword(c.Session().UserID, req.OldPassword, req.NewPassword)
	if err != nil {
		return nil, storageErr(err)
	}
	if !ok {
		return protocol.NewReply("set_password_response", protocol.Errorf("Old password incorrect")), nil
	}
	return protocol.NewReply("set_password_response", protocol.OK()), nil
}

func (d *Dispatcher) handleSetBio(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.SetBioRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	updated, err := d.db.UpdateBio(c.Session().UserID, req.Bio)
	if err != nil {
		return nil, storageErr(err)
	}
	if !updated {
		return protocol.NewReply("set_bio_response", protocol.StatusResponse{Status: protocol.StatusError}), nil
	}
	return protocol.NewReply("set_bio_response", protocol.OK()), nil
}

func (d *Dispatcher) handleFollowUser(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.UserIDRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	if err := d.db.FollowUser(c.Session().UserID, req.UserID); err != nil {
		return nil, storageErr(err)
	}
	return protocol.NewReply("follow_user_response", protocol.FollowResponse{
		Status: protocol.StatusOK,
		UserID: req.UserID,
	}), nil
}

func (d *Dispatcher) handleUnfollowUser(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.UserIDRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	removed, err := d.db.UnfollowUser(c.Session().UserID, req.UserID)
	if err != nil {
		return nil, storageErr(err)
	}

	status := protocol.StatusOK
	if !removed {
		status = protocol.StatusError
	}
	return protocol.NewReply("unfollow_user_response", protocol.FollowResponse{
		Status: status,
		UserID: req.UserID,
	}), nil
}
