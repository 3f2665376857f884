package server

import (
	"encoding/json"
	"time"

	"yegnachat/db"
	"yegnachat/models"
	"yegnachat/protocol"
)

// handleSendMessage persists then fans out. Delivery replaces the direct
// response: the sender receives their own echo frame for UI consistency.
func (d *Dispatcher) handleSendMessage(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.SendMessageRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	senderID := c.Session().UserID
	sender, err := d.db.GetUserByID(senderID)
	if err != nil {
		return nil, storageErr(err)
	}

	if req.ReceiverID != nil {
		receiverID := *req.ReceiverID

		if err := d.db.SavePrivateMessage(senderID, receiverID, req.Content, time.Now()); err != nil {
			return nil, storageErr(err)
		}

		frame, err := protocol.Encode("send_message", protocol.ChatEvent{
			ChatType:       protocol.ChatTypePrivate,
			SenderID:       senderID,
			SenderUsername: sender.Username,
			AvatarURL:      sender.AvatarURL,
			ReceiverID:     receiverID,
			Content:        req.Content,
		})
		if err != nil {
			return nil, err
		}

		d.reg.SendToUser(receiverID, frame)
		d.reg.SendToUser(senderID, frame)
		return nil, nil
	}

	groupID := *req.GroupID
	member, err := d.db.IsGroupMember(groupID, senderID)
	if err != nil {
		return nil, storageErr(err)
	}
	if !member {
		return protocol.NewReply("send_message_response", protocol.Errorf("You are not a member of this group")), nil
	}

	if err := d.db.SaveGroupMessage(senderID, groupID, req.Content, time.Now()); err != nil {
		return nil, storageErr(err)
	}

	members, err := d.db.GroupMemberIDs(groupID)
	if err != nil {
		return nil, storageErr(err)
	}

	frame, err := protocol.Encode("send_message", protocol.ChatEvent{
		ChatType:       protocol.ChatTypeGroup,
		SenderID:       senderID,
		SenderUsername: sender.Username,
		AvatarURL:      sender.AvatarURL,
		GroupID:        groupID,
		Content:        req.Content,
	})
	if err != nil {
		return nil, err
	}

	// Every member gets the frame, the sender included.
	d.reg.SendToMany(members, frame, 0)
	return nil, nil
}

func (d *Dispatcher) handleFetchHistory(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.FetchHistoryRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	userID := c.Session().UserID

	switch req.ChatType {
	case protocol.ChatTypePrivate:
		messages, err := d.db.FetchPrivateHistory(userID, req.UserID)
		if err != nil {
			return nil, storageErr(err)
		}
		history, err := d.enrichHistory(senderIDsOf(messages), func(i int) (int64, string) {
			return messages[i].SenderID, messages[i].Content
		}, len(messages))
		if err != nil {
			return nil, err
		}
		return protocol.NewReply("fetch_history_response", protocol.FetchHistoryResponse{
			Status:   protocol.StatusOK,
			ChatType: protocol.ChatTypePrivate,
			Messages: history,
		}), nil

	default:
		messages, err := d.db.FetchGroupHistory(req.GroupID)
		if err != nil {
			return nil, storageErr(err)
		}
		ids := make([]int64, len(messages))
		for i, m := range messages {
			ids[i] = m.SenderID
		}
		history, err := d.enrichHistory(ids, func(i int) (int64, string) {
			return messages[i].SenderID, messages[i].Content
		}, len(messages))
		if err != nil {
			return nil, err
		}
		return protocol.NewReply("fetch_history_response", protocol.FetchHistoryResponse{
			Status:   protocol.StatusOK,
			ChatType: protocol.ChatTypeGroup,
			Messages: history,
		}), nil
	}
}

// enrichHistory resolves sender display data once per distinct sender.
func (d *Dispatcher) enrichHistory(senderIDs []int64, at func(i int) (int64, string), n int) ([]protocol.HistoryMessage, error) {
	users := make(map[int64]*models.User)
	for _, id := range senderIDs {
		if _, ok := users[id]; ok {
			continue
		}
		u, err := d.db.GetUserByID(id)
		if err == db.ErrNoRows {
			users[id] = nil
			continue
		}
		if err != nil {
			return nil, storageErr(err)
		}
		users[id] = u
	}

	history := make([]protocol.HistoryMessage, 0, n)
	for i := 0; i < n; i++ {
		senderID, content := at(i)
		entry := protocol.HistoryMessage{
			SenderID:       senderID,
			SenderUsername: "Unknown",
			Content:        content,
		}
		if u := users[senderID]; u != nil {
			entry.SenderUsername = u.Username
			entry.AvatarURL = u.AvatarURL
		}
		history = append(history, entry)
	}
	return history, nil
}

func senderIDsOf(messages []models.Message) []int64 {
	ids := make([]int64, len(messages))
	for i, m := range messages {
		ids[i] = m.SenderID
	}
	return ids
}
