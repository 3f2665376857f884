package db

import (
	"time"

	"yegnachat/models"
)

func (db *DB) SavePrivateMessage(senderID, receiverID int64, content string, ts time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO messages (sender_id, receiver_id, content, created_at) VALUES (?, ?, ?, ?)",
		senderID, receiverID, content, ts.UTC().Format(time.RFC3339),
	)
	return err
}

// FetchPrivateHistory returns all messages between two users in chronological
// order.
func (db *DB) FetchPrivateHistory(userA, userB int64) ([]models.Message, error) {
	rows, err := db.conn.Query(`
		SELECT id, sender_id, receiver_id, content, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?)
		   OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at`,
		userA, userB, userB, userA,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (db *DB) SaveGroupMessage(senderID, groupID int64, content string, ts time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO group_messages (group_id, sender_id, content, created_at) VALUES (?, ?, ?, ?)",
		groupID, senderID, content, ts.UTC().Format(time.RFC3339),
	)
	return err
}

func (db *DB) FetchGroupHistory(groupID int64) ([]models.GroupMessage, error) {
	rows, err := db.conn.Query(`
		SELECT id, group_id, sender_id, content, created_at
		FROM group_messages
		WHERE group_id = ?
		ORDER BY created_at`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.GroupMessage
	for rows.Next() {
		var m models.GroupMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.GroupID, &m.SenderID, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
