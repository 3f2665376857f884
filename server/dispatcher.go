package server

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"yegnachat/db"
	"yegnachat/images"
	"yegnachat/protocol"
)

type handlerFunc func(c *Conn, payload json.RawMessage) (*protocol.Reply, error)

type handlerEntry struct {
	fn           handlerFunc
	authRequired bool
}

// Dispatcher routes decoded control messages to their handlers. It is the
// single boundary where failures of any shape become error frames; nothing a
// handler does may crash the owning read loop.
type Dispatcher struct {
	db       *db.DB
	reg      *Registry
	sessions *SessionStore
	images   *images.Store
	log      *zap.Logger
	handlers map[string]handlerEntry
}

func NewDispatcher(database *db.DB, reg *Registry, sessions *SessionStore, imgs *images.Store, log *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		db:       database,
		reg:      reg,
		sessions: sessions,
		images:   imgs,
		log:      log,
		handlers: make(map[string]handlerEntry),
	}

	d.register("login", d.handleLogin, false)
	d.register("signup", d.handleSignup, false)
	d.register("get_session", d.handleGetSession, false)
	d.register("logout", d.handleLogout, true)

	d.register("send_message", d.handleSendMessage, true)
	d.register("fetch_history", d.handleFetchHistory, true)

	d.register("get_user", d.handleGetUser, true)
	d.register("get_user_profile", d.handleGetUserProfile, true)
	d.register("list_users", d.handleListUsers, true)
	d.register("search_users", d.handleSearchUsers, true)
	d.register("set_preferred_language", d.handleSetPreferredLanguage, true)
	d.register("get_preferred_language", d.handleGetPreferredLanguage, true)
	d.register("set_password", d.handleSetPassword, true)
	d.register("set_bio", d.handleSetBio, true)
	d.register("follow_user", d.handleFollowUser, true)
	d.register("unfollow_user", d.handleUnfollowUser, true)

	d.register("create_group", d.handleCreateGroup, true)
	d.register("add_user_to_group", d.handleAddUsersToGroup, true)
	d.register("add_group_member", d.handleAddGroupMember, true)
	d.register("remove_user_from_group", d.handleRemoveUserFromGroup, true)
	d.register("promote_demote_user", d.handlePromoteDemoteUser, true)
	d.register("leave_group", d.handleLeaveGroup, true)
	d.register("list_groups_for_user", d.handleListGroupsForUser, true)
	d.register("get_group_info", d.handleGetGroupInfo, true)
	d.register("update_group_info", d.handleUpdateGroupInfo, true)
	d.register("list_group_members", d.handleListGroupMembers, true)
	d.register("list_group_admins", d.handleListGroupAdmins, true)

	d.register("create_post", d.handleCreatePost, true)
	d.register("list_feed_posts", d.handleListFeedPosts, true)
	d.register("like_post", d.handleLikePost, true)
	d.register("unlike_post", d.handleUnlikePost, true)
	d.register("add_comment", d.handleAddComment, true)
	d.register("list_comments", d.handleListComments, true)

	return d
}

func (d *Dispatcher) register(kind string, fn handlerFunc, authRequired bool) {
	d.handlers[kind] = handlerEntry{fn: fn, authRequired: authRequired}
}

// Route decodes one inbound frame and runs its handler. The returned frame is
// the direct response; nil means the handler already delivered through the
// registry. Route never returns an error: every failure becomes a frame.
func (d *Dispatcher) Route(raw []byte, c *Conn) []byte {
	env, err := protocol.ParseEnvelope(raw)
	if err != nil {
		return protocol.ErrorFrame("Invalid message format")
	}

	entry, ok := d.handlers[env.Type]
	if !ok {
		return protocol.ErrorFrame("Unknown message type")
	}

	if entry.authRequired && c.Session() == nil {
		return protocol.ErrorFrame("Not authenticated")
	}

	reply, err := d.call(entry.fn, c, env.Payload)
	if err != nil {
		return protocol.ErrorFrame(d.describe(env.Type, err))
	}
	if reply == nil {
		return nil
	}

	frame, err := protocol.Encode(reply.Kind, reply.Payload)
	if err != nil {
		d.log.Error("failed to encode response", zap.String("kind", reply.Kind), zap.Error(err))
		return protocol.ErrorFrame("Internal error")
	}
	return frame
}

// call guards the handler invocation; a panic must not take the connection's
// read loop down with it.
func (d *Dispatcher) call(fn handlerFunc, c *Conn, payload json.RawMessage) (reply *protocol.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panic", zap.Any("panic", r), zap.String("remote", c.RemoteAddr()))
			reply = nil
			err = protocolErr("Internal error")
		}
	}()
	return fn(c, payload)
}

func (d *Dispatcher) describe(kind string, err error) string {
	var ce *chatError
	if errors.As(err, &ce) {
		switch ce.kind {
		case errKindStorage:
			d.log.Error("storage failure", zap.String("kind", kind), zap.Error(ce.err))
			return "Database error: " + ce.err.Error()
		default:
			return ce.message
		}
	}

	if errors.Is(err, protocol.ErrInvalidPayload) {
		return err.Error()
	}

	d.log.Error("unclassified handler failure", zap.String("kind", kind), zap.Error(err))
	return "Exception: " + err.Error()
}
