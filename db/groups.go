package db

import (
	"database/sql"
	"time"

	"yegnachat/models"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// CreateGroup inserts the group and enrolls the creator as owner in one
// transaction.
func (db *DB) CreateGroup(name, about, avatarURL string, creatorID int64, ts time.Time) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO chat_groups (name, about, avatar_url, created_by, created_at) VALUES (?, ?, ?, ?, ?)",
		name, about, avatarURL, creatorID, ts.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}

	groupID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(
		"INSERT INTO group_members (group_id, user_id, role) VALUES (?, ?, ?)",
		groupID, creatorID, RoleOwner,
	); err != nil {
		return 0, err
	}

	return groupID, tx.Commit()
}

func (db *DB) AddGroupMember(groupID, userID int64, role string) error {
	_, err := db.conn.Exec(
		"INSERT INTO group_members (group_id, user_id, role) VALUES (?, ?, ?)",
		groupID, userID, role,
	)
	return err
}

// AddGroupMembers enrolls several users as plain members in one transaction.
func (db *DB) AddGroupMembers(groupID int64, userIDs []int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, userID := range userIDs {
		if _, err := tx.Exec(
			"INSERT INTO group_members (group_id, user_id, role) VALUES (?, ?, ?)",
			groupID, userID, RoleMember,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (db *DB) IsGroupMember(groupID, userID int64) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM group_members WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GroupRole returns the member's role, or ErrNoRows for non-members.
func (db *DB) GroupRole(groupID, userID int64) (string, error) {
	var role string
	err := db.conn.QueryRow(
		"SELECT role FROM group_members WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrNoRows
	}
	return role, err
}

func (db *DB) RemoveGroupMember(groupID, userID int64) (bool, error) {
	res, err := db.conn.Exec(
		"DELETE FROM group_members WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *DB) UpdateGroupRole(groupID, userID int64, role string) (bool, error) {
	res, err := db.conn.Exec(
		"UPDATE group_members SET role = ? WHERE group_id = ? AND user_id = ?",
		role, groupID, userID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *DB) UpdateGroupInfo(groupID int64, name, about, avatarURL string) (bool, error) {
	res, err := db.conn.Exec(
		"UPDATE chat_groups SET name = ?, about = ?, avatar_url = ? WHERE id = ?",
		name, about, avatarURL, groupID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *DB) UpdateGroupAvatar(groupID int64, avatarURL string) error {
	_, err := db.conn.Exec("UPDATE chat_groups SET avatar_url = ? WHERE id = ?", avatarURL, groupID)
	return err
}

func (db *DB) GetGroupInfo(groupID int64) (*models.Group, error) {
	var g models.Group
	var createdAt string
	err := db.conn.QueryRow(
		"SELECT id, name, about, avatar_url, created_by, created_at FROM chat_groups WHERE id = ?",
		groupID,
	).Scan(&g.ID, &g.Name, &g.About, &g.AvatarURL, &g.CreatedBy, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &g, nil
}

func (db *DB) GroupMemberIDs(groupID int64) ([]int64, error) {
	rows, err := db.conn.Query("SELECT user_id FROM group_members WHERE group_id = ?", groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

func (db *DB) listMembers(query string, groupID int64) ([]models.GroupMember, error) {
	rows, err := db.conn.Query(query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.GroupMember
	for rows.Next() {
		var m models.GroupMember
		if err := rows.Scan(&m.UserID, &m.Username, &m.AvatarURL, &m.Role); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (db *DB) ListGroupMembers(groupID int64) ([]models.GroupMember, error) {
	return db.listMembers(`
		SELECT u.id, u.username, u.avatar_url, gm.role
		FROM users u
		JOIN group_members gm ON u.id = gm.user_id
		WHERE gm.group_id = ?`, groupID)
}

func (db *DB) ListGroupAdmins(groupID int64) ([]models.GroupMember, error) {
	return db.listMembers(`
		SELECT u.id, u.username, u.avatar_url, gm.role
		FROM users u
		JOIN group_members gm ON u.id = gm.user_id
		WHERE gm.group_id = ? AND gm.role IN ('admin', 'owner')`, groupID)
}

func (db *DB) ListGroupsForUser(userID int64) ([]models.Group, error) {
	rows, err := db.conn.Query(`
		SELECT g.id, g.name, g.about, g.avatar_url
		FROM chat_groups g
		JOIN group_members gm ON g.id = gm.group_id
		WHERE gm.user_id = ?`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.About, &g.AvatarURL); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
