package server

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"yegnachat/db"
	"yegnachat/protocol"
)

func (d *Dispatcher) handleLogin(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.LoginRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	user, err := d.db.AuthenticateUser(req.Username, req.Password)
	if err != nil {
		return nil, storageErr(err)
	}
	if user == nil {
		return protocol.NewReply("login_response", protocol.SessionResponse{Status: protocol.StatusError}), nil
	}

	session, err := d.sessions.Create(user.ID, user.PreferredLanguageCode)
	if err != nil {
		return nil, storageErr(err)
	}

	c.SetSession(session)
	d.log.Info("user logged in",
		zap.Int64("user_id", user.ID),
		zap.String("remote", c.RemoteAddr()))

	return protocol.NewReply("login_response", protocol.SessionResponse{
		Status:                protocol.StatusOK,
		Token:                 session.Token,
		UserID:                session.UserID,
		PreferredLanguageCode: session.PreferredLanguageCode,
	}), nil
}

func (d *Dispatcher) handleSignup(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.SignupRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	// Usernames are stored space-free and lowercase.
	username := strings.ToLower(strings.Join(strings.Fields(req.Username), ""))
	if username == "" {
		return nil, validationErrf("username is required")
	}

	exists, err := d.db.UserExists(username)
	if err != nil {
		return nil, storageErr(err)
	}
	if exists {
		return protocol.NewReply("signup_response", protocol.Errorf("Username already exists")), nil
	}

	if err := d.db.CreateUser(username, req.Password, req.AvatarURL, req.Bio); err != nil {
		return protocol.NewReply("signup_response", protocol.Errorf(err.Error())), nil
	}

	d.log.Info("user signed up", zap.String("username", username))
	return protocol.NewReply("signup_response", protocol.OK()), nil
}

func (d *Dispatcher) handleGetSession(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.GetSessionRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	session, err := d.sessions.Resolve(req.Token)
	if err != nil {
		return nil, storageErr(err)
	}
	if session == nil {
		return protocol.NewReply("get_session_response", protocol.SessionResponse{Status: protocol.StatusError}), nil
	}

	if _, err := d.db.GetUserByID(session.UserID); err != nil {
		if err == db.ErrNoRows {
			return protocol.NewReply("get_session_response", protocol.SessionResponse{Status: protocol.StatusError}), nil
		}
		return nil, storageErr(err)
	}

	c.SetSession(session)
	return protocol.NewReply("get_session_response", protocol.SessionResponse{
		Status:                protocol.StatusOK,
		Token:                 session.Token,
		UserID:                session.UserID,
		PreferredLanguageCode: session.PreferredLanguageCode,
	}), nil
}

func (d *Dispatcher) handleLogout(c *Conn, _ json.RawMessage) (*protocol.Reply, error) {
	if s := c.Session(); s != nil {
		if err := d.sessions.Invalidate(s.Token); err != nil {
			d.log.Warn("session invalidation failed", zap.Error(err))
		}
	}
	c.ClearSession()
	return protocol.NewReply("logout_response", protocol.OK()), nil
}
