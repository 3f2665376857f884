package server

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yegnachat/db"
	"yegnachat/images"
	"yegnachat/protocol"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "yegnachat-test-*.db")
	require.NoError(t, err)
	tmpfile.Close()
	os.Remove(tmpfile.Name())

	database, err := db.New(tmpfile.Name())
	require.NoError(t, err)

	store, err := images.NewStore(t.TempDir())
	require.NoError(t, err)

	srv := New(Config{
		Addr:         ":0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
		MaxLineBytes: 1 << 20,
		SessionTTL:   time.Hour,
	}, database, store, zap.NewNop())

	t.Cleanup(func() {
		database.Close()
		os.Remove(tmpfile.Name())
	})
	return srv
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialTestClient(t *testing.T, srv *Server) *testClient {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	go srv.handleConnection(serverConn)
	t.Cleanup(func() { clientConn.Close() })
	return &testClient{t: t, conn: clientConn, r: bufio.NewReader(clientConn)}
}

func (tc *testClient) send(kind string, payload any) {
	tc.t.Helper()
	frame, err := protocol.Encode(kind, payload)
	require.NoError(tc.t, err)
	tc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err = tc.conn.Write(append(frame, '\n'))
	require.NoError(tc.t, err)
}

func (tc *testClient) sendRaw(raw string) {
	tc.t.Helper()
	tc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err := tc.conn.Write([]byte(raw + "\n"))
	require.NoError(tc.t, err)
}

func (tc *testClient) recv() (string, json.RawMessage) {
	tc.t.Helper()
	tc.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := tc.r.ReadString('\n')
	require.NoError(tc.t, err)

	env, err := protocol.ParseEnvelope([]byte(line))
	require.NoError(tc.t, err)
	return env.Type, env.Payload
}

func (tc *testClient) recvInto(wantKind string, out any) {
	tc.t.Helper()
	kind, payload := tc.recv()
	require.Equal(tc.t, wantKind, kind)
	require.NoError(tc.t, json.Unmarshal(payload, out))
}

func (tc *testClient) recvError() string {
	tc.t.Helper()
	kind, payload := tc.recv()
	require.Equal(tc.t, "error", kind)
	var msg string
	require.NoError(tc.t, json.Unmarshal(payload, &msg))
	return msg
}

func (tc *testClient) signupAndLogin(username string) protocol.SessionResponse {
	tc.t.Helper()
	tc.send("signup", protocol.SignupRequest{Username: username, Password: "secret"})
	var status protocol.StatusResponse
	tc.recvInto("signup_response", &status)
	require.Equal(tc.t, protocol.StatusOK, status.Status)

	tc.send("login", protocol.LoginRequest{Username: username, Password: "secret"})
	var session protocol.SessionResponse
	tc.recvInto("login_response", &session)
	require.Equal(tc.t, protocol.StatusOK, session.Status)
	require.NotEmpty(tc.t, session.Token)
	return session
}

func TestSignupLoginFlow(t *testing.T) {
	srv := setupTestServer(t)
	tc := dialTestClient(t, srv)

	session := tc.signupAndLogin("abel")
	assert.NotZero(t, session.UserID)

	// Wrong password after signup.
	tc.send("login", protocol.LoginRequest{Username: "abel", Password: "nope"})
	var failed protocol.SessionResponse
	tc.recvInto("login_response", &failed)
	assert.Equal(t, protocol.StatusError, failed.Status)
}

func TestSignupNormalizesUsername(t *testing.T) {
	srv := setupTestServer(t)
	tc := dialTestClient(t, srv)

	tc.send("signup", protocol.SignupRequest{Username: "  Abel Kebede ", Password: "secret"})
	var status protocol.StatusResponse
	tc.recvInto("signup_response", &status)
	require.Equal(t, protocol.StatusOK, status.Status)

	tc.send("login", protocol.LoginRequest{Username: "abelkebede", Password: "secret"})
	var session protocol.SessionResponse
	tc.recvInto("login_response", &session)
	assert.Equal(t, protocol.StatusOK, session.Status)
}

func TestDuplicateSignupRejected(t *testing.T) {
	srv := setupTestServer(t)
	tc := dialTestClient(t, srv)

	tc.signupAndLogin("abel")

	tc.send("signup", protocol.SignupRequest{Username: "abel", Password: "other"})
	var status protocol.StatusResponse
	tc.recvInto("signup_response", &status)
	assert.Equal(t, protocol.StatusError, status.Status)
	assert.Equal(t, "Username already exists", status.Message)
}

func TestUnauthenticatedAccessGated(t *testing.T) {
	srv := setupTestServer(t)
	tc := dialTestClient(t, srv)

	receiver := int64(1)
	tc.send("send_message", protocol.SendMessageRequest{Content: "hi", ReceiverID: &receiver})
	assert.Equal(t, "Not authenticated", tc.recvError())

	// Nothing was stored.
	history, err := srv.db.FetchPrivateHistory(1, 2)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestUnknownMessageType(t *testing.T) {
	srv := setupTestServer(t)
	tc := dialTestClient(t, srv)

	tc.send("frobnicate", struct{}{})
	assert.Equal(t, "Unknown message type", tc.recvError())
}

func TestMalformedFrame(t *testing.T) {
	srv := setupTestServer(t)
	tc := dialTestClient(t, srv)

	tc.sendRaw("this is not json")
	assert.Equal(t, "Invalid message format", tc.recvError())

	// The connection survives a malformed frame.
	tc.send("signup", protocol.SignupRequest{Username: "abel", Password: "secret"})
	var status protocol.StatusResponse
	tc.recvInto("signup_response", &status)
	assert.Equal(t, protocol.StatusOK, status.Status)
}

func TestGetSessionUnknownToken(t *testing.T) {
	srv := setupTestServer(t)
	tc := dialTestClient(t, srv)

	tc.send("get_session", protocol.GetSessionRequest{Token: "no-such-token"})
	var resp protocol.SessionResponse
	tc.recvInto("get_session_response", &resp)
	assert.Equal(t, protocol.StatusError, resp.Status)

	// The failed lookup did not authenticate the connection.
	tc.send("list_users", struct{}{})
	assert.Equal(t, "Not authenticated", tc.recvError())
}

func TestGetSessionResumesOnNewConnection(t *testing.T) {
	srv := setupTestServer(t)
	first := dialTestClient(t, srv)
	session := first.signupAndLogin("abel")

	second := dialTestClient(t, srv)
	second.send("get_session", protocol.GetSessionRequest{Token: session.Token})
	var resumed protocol.SessionResponse
	second.recvInto("get_session_response", &resumed)
	assert.Equal(t, protocol.StatusOK, resumed.Status)
	assert.Equal(t, session.UserID, resumed.UserID)

	// The resumed connection is authenticated.
	second.send("list_users", struct{}{})
	var list protocol.ListUsersResponse
	second.recvInto("list_users_response", &list)
	assert.Equal(t, protocol.StatusOK, list.Status)
}

func TestLogoutKeepsConnectionOpen(t *testing.T) {
	srv := setupTestServer(t)
	tc := dialTestClient(t, srv)
	session := tc.signupAndLogin("abel")

	tc.send("logout", struct{}{})
	var status protocol.StatusResponse
	tc.recvInto("logout_response", &status)
	assert.Equal(t, protocol.StatusOK, status.Status)

	// The token is dead and the connection is back to unauthenticated,
	// but still usable.
	tc.send("get_session", protocol.GetSessionRequest{Token: session.Token})
	var resp protocol.SessionResponse
	tc.recvInto("get_session_response", &resp)
	assert.Equal(t, protocol.StatusError, resp.Status)

	tc.send("list_users", struct{}{})
	assert.Equal(t, "Not authenticated", tc.recvError())
}

func TestPrivateMessageDelivery(t *testing.T) {
	srv := setupTestServer(t)
	abel := dialTestClient(t, srv)
	birtukan := dialTestClient(t, srv)

	abelSession := abel.signupAndLogin("abel")
	birtukanSession := birtukan.signupAndLogin("birtukan")

	abel.send("send_message", protocol.SendMessageRequest{
		Content:    "selam",
		ReceiverID: &birtukanSession.UserID,
	})

	var delivered protocol.ChatEvent
	birtukan.recvInto("send_message", &delivered)
	assert.Equal(t, "selam", delivered.Content)
	assert.Equal(t, abelSession.UserID, delivered.SenderID)
	assert.Equal(t, "abel", delivered.SenderUsername)

	// The sender gets the echo for its own chat view.
	var echo protocol.ChatEvent
	abel.recvInto("send_message", &echo)
	assert.Equal(t, "selam", echo.Content)

	// And the message is persisted for history.
	abel.send("fetch_history", protocol.FetchHistoryRequest{
		ChatType: protocol.ChatTypePrivate,
		UserID:   birtukanSession.UserID,
	})
	var history protocol.FetchHistoryResponse
	abel.recvInto("fetch_history_response", &history)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "selam", history.Messages[0].Content)
}

func TestGroupMessageFanOut(t *testing.T) {
	srv := setupTestServer(t)
	abel := dialTestClient(t, srv)
	birtukan := dialTestClient(t, srv)
	chaltu := dialTestClient(t, srv)

	abel.signupAndLogin("abel")
	bSession := birtukan.signupAndLogin("birtukan")
	cSession := chaltu.signupAndLogin("chaltu")

	abel.send("create_group", protocol.CreateGroupRequest{
		Name:    "amigos",
		UserIDs: []int64{bSession.UserID, cSession.UserID},
	})
	var created protocol.CreateGroupResponse
	abel.recvInto("create_group_response", &created)
	require.Equal(t, protocol.StatusOK, created.Status)

	abel.send("send_message", protocol.SendMessageRequest{
		Content: "selam group",
		GroupID: &created.GroupID,
	})

	// Every member, sender included, gets the event. Reads run concurrently
	// because pipe writes block until the peer reads.
	events := make(chan protocol.ChatEvent, 3)
	for _, member := range []*testClient{abel, birtukan, chaltu} {
		go func(m *testClient) {
			var event protocol.ChatEvent
			m.recvInto("send_message", &event)
			events <- event
		}(member)
	}
	for i := 0; i < 3; i++ {
		event := <-events
		assert.Equal(t, "selam group", event.Content)
		assert.Equal(t, created.GroupID, event.GroupID)
	}
}

func TestGroupMessageFromNonMember(t *testing.T) {
	srv := setupTestServer(t)
	abel := dialTestClient(t, srv)
	mallory := dialTestClient(t, srv)

	abel.signupAndLogin("abel")
	mallory.signupAndLogin("mallory")

	abel.send("create_group", protocol.CreateGroupRequest{Name: "amigos"})
	var created protocol.CreateGroupResponse
	abel.recvInto("create_group_response", &created)

	mallory.send("send_message", protocol.SendMessageRequest{
		Content: "let me in",
		GroupID: &created.GroupID,
	})
	var status protocol.StatusResponse
	mallory.recvInto("send_message_response", &status)
	assert.Equal(t, protocol.StatusError, status.Status)
	assert.Equal(t, "You are not a member of this group", status.Message)
}

func TestCreatePostWithInlineImage(t *testing.T) {
	srv := setupTestServer(t)
	tc := dialTestClient(t, srv)
	tc.signupAndLogin("abel")

	image := []byte{0x89, 'P', 'N', 'G', 0}
	frame, err := protocol.Encode("create_post", protocol.CreatePostRequest{
		Content:   "look at this",
		HasImage:  true,
		ImageSize: int64(len(image)),
		Mime:      "image/png",
	})
	require.NoError(t, err)

	tc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	payload := append(append(frame, '\n'), image...)
	_, err = tc.conn.Write(payload)
	require.NoError(t, err)

	var created protocol.CreatePostResponse
	tc.recvInto("create_post_response", &created)
	require.Equal(t, protocol.StatusOK, created.Status)
	require.NotZero(t, created.PostID)

	// The stream stayed in sync: the next text frame parses normally.
	tc.send("list_feed_posts", protocol.ListFeedPostsRequest{})
	var feed protocol.ListFeedPostsResponse
	tc.recvInto("list_feed_posts_response", &feed)
	require.Len(t, feed.Posts, 1)
	assert.Equal(t, "look at this", feed.Posts[0].Content)
	assert.Contains(t, feed.Posts[0].ImageURL, "/uploads/posts/")
}

func TestCreatePostRejectsBadImageMetadata(t *testing.T) {
	srv := setupTestServer(t)
	tc := dialTestClient(t, srv)
	tc.signupAndLogin("abel")

	tc.send("create_post", protocol.CreatePostRequest{
		Content: "x", HasImage: true, ImageSize: 10, Mime: "application/pdf",
	})
	var resp protocol.CreatePostResponse
	tc.recvInto("create_post_response", &resp)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, "Invalid image type", resp.Message)

	tc.send("create_post", protocol.CreatePostRequest{
		Content: "x", HasImage: true, ImageSize: protocol.MaxImageBytes + 1, Mime: "image/png",
	})
	tc.recvInto("create_post_response", &resp)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, "Invalid image size", resp.Message)

	// Metadata was rejected before any byte was consumed; the connection
	// still parses text frames.
	tc.send("list_feed_posts", protocol.ListFeedPostsRequest{})
	var feed protocol.ListFeedPostsResponse
	tc.recvInto("list_feed_posts_response", &feed)
	assert.Equal(t, protocol.StatusOK, feed.Status)
}

func TestCreatePostStorageFailureDropsDesyncedConnection(t *testing.T) {
	srv := setupTestServer(t)
	tc := dialTestClient(t, srv)
	tc.signupAndLogin("abel")

	// Force the insert to fail after the image metadata has validated.
	require.NoError(t, srv.db.Close())

	tc.send("create_post", protocol.CreatePostRequest{
		Content: "x", HasImage: true, ImageSize: 10, Mime: "image/png",
	})

	// The declared bytes were claimed before storage was touched, so the
	// failure leaves the stream desynchronized and the server closes the
	// connection after the error frame instead of parsing body bytes as
	// frames.
	msg := tc.recvError()
	assert.Contains(t, msg, "Database error:")

	tc.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := tc.r.ReadString('\n')
	assert.Error(t, err)
}

func TestFeedLikesAndComments(t *testing.T) {
	srv := setupTestServer(t)
	abel := dialTestClient(t, srv)
	birtukan := dialTestClient(t, srv)

	abel.signupAndLogin("abel")
	birtukan.signupAndLogin("birtukan")

	abel.send("create_post", protocol.CreatePostRequest{Content: "first"})
	var created protocol.CreatePostResponse
	abel.recvInto("create_post_response", &created)
	require.Equal(t, protocol.StatusOK, created.Status)

	birtukan.send("like_post", protocol.PostIDRequest{PostID: created.PostID})
	var liked protocol.PostActionResponse
	birtukan.recvInto("like_post_response", &liked)
	assert.Equal(t, protocol.StatusOK, liked.Status)

	birtukan.send("add_comment", protocol.AddCommentRequest{PostID: created.PostID, Content: "nice"})
	var commented protocol.AddCommentResponse
	birtukan.recvInto("add_comment_response", &commented)
	assert.NotZero(t, commented.CommentID)

	abel.send("list_feed_posts", protocol.ListFeedPostsRequest{})
	var feed protocol.ListFeedPostsResponse
	abel.recvInto("list_feed_posts_response", &feed)
	require.Len(t, feed.Posts, 1)
	assert.Equal(t, 1, feed.Posts[0].Likes)
	assert.Equal(t, 1, feed.Posts[0].Comments)

	abel.send("list_comments", protocol.PostIDRequest{PostID: created.PostID})
	var comments protocol.ListCommentsResponse
	abel.recvInto("list_comments_response", &comments)
	require.Len(t, comments.Comments, 1)
	assert.Equal(t, "nice", comments.Comments[0].Content)
	assert.Equal(t, "birtukan", comments.Comments[0].User.Username)
}

func TestGroupAdministration(t *testing.T) {
	srv := setupTestServer(t)
	owner := dialTestClient(t, srv)
	member := dialTestClient(t, srv)

	owner.signupAndLogin("abel")
	mSession := member.signupAndLogin("birtukan")

	owner.send("create_group", protocol.CreateGroupRequest{Name: "amigos", About: "friends"})
	var created protocol.CreateGroupResponse
	owner.recvInto("create_group_response", &created)
	groupID := created.GroupID

	// Add by username.
	owner.send("add_group_member", protocol.AddGroupMemberRequest{GroupID: groupID, Username: "birtukan"})
	var added protocol.AddGroupMemberResponse
	owner.recvInto("add_group_member_response", &added)
	assert.Equal(t, protocol.StatusOK, added.Status)
	assert.Equal(t, "birtukan", added.AddedUsername)

	// A plain member cannot update group info.
	member.send("update_group_info", protocol.UpdateGroupInfoRequest{GroupID: groupID, Name: "hijacked"})
	var updated protocol.GroupInfoResponse
	member.recvInto("update_group_info_response", &updated)
	assert.Equal(t, protocol.StatusError, updated.Status)
	assert.Equal(t, "Only admins can update group info", updated.Message)

	// Promote, then the member can.
	owner.send("promote_demote_user", protocol.ChangeRoleRequest{
		GroupID: groupID, UserID: mSession.UserID, NewRole: "admin",
	})
	var role protocol.ChangeRoleResponse
	owner.recvInto("promote_demote_user_response", &role)
	require.Equal(t, protocol.StatusOK, role.Status)

	member.send("update_group_info", protocol.UpdateGroupInfoRequest{GroupID: groupID, Name: "renamed", About: "friends"})
	member.recvInto("update_group_info_response", &updated)
	assert.Equal(t, protocol.StatusOK, updated.Status)

	// Only the owner changes roles.
	member.send("promote_demote_user", protocol.ChangeRoleRequest{
		GroupID: groupID, UserID: mSession.UserID, NewRole: "member",
	})
	member.recvInto("promote_demote_user_response", &role)
	assert.Equal(t, protocol.StatusError, role.Status)
	assert.Equal(t, "Only the owner can change roles", role.Message)

	owner.send("list_group_members", protocol.GroupIDRequest{GroupID: groupID})
	var members protocol.GroupMembersResponse
	owner.recvInto("list_group_members_response", &members)
	assert.Len(t, members.Members, 2)

	member.send("leave_group", protocol.GroupIDRequest{GroupID: groupID})
	var left protocol.LeaveGroupResponse
	member.recvInto("leave_group_response", &left)
	assert.Equal(t, protocol.StatusOK, left.Status)
	assert.True(t, left.Left)
}

func TestAddUsersToGroupSkipsExisting(t *testing.T) {
	srv := setupTestServer(t)
	owner := dialTestClient(t, srv)
	other := dialTestClient(t, srv)

	oSession := owner.signupAndLogin("abel")
	otherSession := other.signupAndLogin("birtukan")

	owner.send("create_group", protocol.CreateGroupRequest{Name: "amigos"})
	var created protocol.CreateGroupResponse
	owner.recvInto("create_group_response", &created)

	// Duplicates in the request and the already-enrolled creator are both
	// skipped.
	owner.send("add_user_to_group", protocol.AddUsersToGroupRequest{
		GroupID: created.GroupID,
		UserIDs: []int64{otherSession.UserID, otherSession.UserID, oSession.UserID},
	})
	var resp protocol.AddUsersToGroupResponse
	owner.recvInto("add_user_to_group_response", &resp)
	assert.Equal(t, protocol.StatusOK, resp.Status)
	assert.Equal(t, 1, resp.AddedCount)

	// A second round has nothing left to add.
	owner.send("add_user_to_group", protocol.AddUsersToGroupRequest{
		GroupID: created.GroupID,
		UserIDs: []int64{otherSession.UserID},
	})
	owner.recvInto("add_user_to_group_response", &resp)
	assert.Equal(t, protocol.StatusOK, resp.Status)
	assert.Equal(t, "No new users to add", resp.Message)
}

func TestProfileOperations(t *testing.T) {
	srv := setupTestServer(t)
	tc := dialTestClient(t, srv)
	session := tc.signupAndLogin("abel")

	tc.send("set_bio", protocol.SetBioRequest{Bio: "hello there"})
	var status protocol.StatusResponse
	tc.recvInto("set_bio_response", &status)
	assert.Equal(t, protocol.StatusOK, status.Status)

	tc.send("set_preferred_language", protocol.SetLanguageRequest{LanguageCode: "am"})
	var lang protocol.LanguageResponse
	tc.recvInto("set_preferred_language_response", &lang)
	assert.Equal(t, "am", lang.PreferredLanguageCode)

	tc.send("get_preferred_language", struct{}{})
	tc.recvInto("get_preferred_language_response", &lang)
	assert.Equal(t, "am", lang.PreferredLanguageCode)

	tc.send("get_user", struct{}{})
	var user protocol.UserResponse
	tc.recvInto("get_user_response", &user)
	require.Equal(t, protocol.StatusOK, user.Status)
	assert.Equal(t, session.UserID, user.User.ID)
	assert.Equal(t, "hello there", user.User.Bio)

	tc.send("set_password", protocol.SetPasswordRequest{OldPassword: "wrong", NewPassword: "new"})
	tc.recvInto("set_password_response", &status)
	assert.Equal(t, protocol.StatusError, status.Status)

	tc.send("set_password", protocol.SetPasswordRequest{OldPassword: "secret", NewPassword: "new"})
	tc.recvInto("set_password_response", &status)
	assert.Equal(t, protocol.StatusOK, status.Status)
}

func TestPreferredLanguageConcurrentAcrossConnections(t *testing.T) {
	srv := setupTestServer(t)

	writer := dialTestClient(t, srv)
	session := writer.signupAndLogin("abel")

	// A second connection resuming the token shares the cached session
	// record with the first. Updates mint a fresh record, so readers on one
	// connection never observe a write in progress on the other.
	reader := dialTestClient(t, srv)
	reader.send("get_session", protocol.GetSessionRequest{Token: session.Token})
	var resumed protocol.SessionResponse
	reader.recvInto("get_session_response", &resumed)
	require.Equal(t, protocol.StatusOK, resumed.Status)

	done := make(chan struct{})
	go func() {
		defer close(done)
		codes := []string{"am", "en"}
		for i := 0; i < 50; i++ {
			writer.send("set_preferred_language", protocol.SetLanguageRequest{LanguageCode: codes[i%2]})
			var lang protocol.LanguageResponse
			writer.recvInto("set_preferred_language_response", &lang)
		}
	}()

	for i := 0; i < 50; i++ {
		reader.send("get_preferred_language", struct{}{})
		var lang protocol.LanguageResponse
		reader.recvInto("get_preferred_language_response", &lang)
		assert.Contains(t, []string{"en", "am"}, lang.PreferredLanguageCode)
	}
	<-done
}

func TestSearchUsers(t *testing.T) {
	srv := setupTestServer(t)
	abel := dialTestClient(t, srv)
	abel.signupAndLogin("abel")

	birtukan := dialTestClient(t, srv)
	birtukan.signupAndLogin("birtukan")

	// Query matching is case-insensitive and excludes the caller.
	abel.send("search_users", protocol.SearchUsersRequest{Query: " BIRT "})
	var found protocol.SearchUsersResponse
	abel.recvInto("search_users_response", &found)
	require.Len(t, found.Users, 1)
	assert.Equal(t, "birtukan", found.Users[0].Username)

	// Blank query short-circuits to an empty result.
	abel.send("search_users", protocol.SearchUsersRequest{Query: "   "})
	abel.recvInto("search_users_response", &found)
	assert.Empty(t, found.Users)
}

func TestDuplicateLoginEvictsOlderConnection(t *testing.T) {
	srv := setupTestServer(t)
	first := dialTestClient(t, srv)
	session := first.signupAndLogin("abel")

	second := dialTestClient(t, srv)
	second.send("get_session", protocol.GetSessionRequest{Token: session.Token})
	var resumed protocol.SessionResponse
	second.recvInto("get_session_response", &resumed)
	require.Equal(t, protocol.StatusOK, resumed.Status)

	// Delivery now targets the newer connection only.
	sender := dialTestClient(t, srv)
	sender.signupAndLogin("birtukan")
	sender.send("send_message", protocol.SendMessageRequest{
		Content:    "who gets this",
		ReceiverID: &session.UserID,
	})

	var event protocol.ChatEvent
	second.recvInto("send_message", &event)
	assert.Equal(t, "who gets this", event.Content)

	// The older connection receives nothing.
	first.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err := first.r.ReadString('\n')
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	srv := setupTestServer(t)
	tc := dialTestClient(t, srv)

	waitFor(t, func() bool {
		connections, _ := srv.Stats()
		return connections == 1
	})

	tc.signupAndLogin("abel")
	waitFor(t, func() bool {
		_, authenticated := srv.Stats()
		return authenticated == 1
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met in time")
}

func TestShutdownNotifiesConnectedClients(t *testing.T) {
	srv := setupTestServer(t)
	tc := dialTestClient(t, srv)
	tc.signupAndLogin("abel")

	go srv.Shutdown()

	kind, payload := tc.recv()
	assert.Equal(t, "server_shutdown", kind)
	var reason string
	require.NoError(t, json.Unmarshal(payload, &reason))
	assert.Equal(t, "Server shutting down", reason)

	tc.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := tc.r.ReadString('\n')
	assert.Error(t, err)
}

func TestReadTimeoutClosesConnection(t *testing.T) {
	srv := setupTestServer(t)
	srv.cfg.ReadTimeout = 100 * time.Millisecond

	tc := dialTestClient(t, srv)

	// The idle deadline expires and the server drops the connection; the
	// client observes EOF rather than an error frame.
	tc.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := tc.r.ReadString('\n')
	assert.Error(t, err)
}
