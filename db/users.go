package db

import (
	"database/sql"
	"time"

	"golang.org/x/crypto/bcrypt"

	"yegnachat/models"
)

func (db *DB) CreateUser(username, password, avatarURL, bio string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = db.conn.Exec(
		"INSERT INTO users (username, password_hash, avatar_url, bio, created_at) VALUES (?, ?, ?, ?, ?)",
		username, string(hashed), avatarURL, bio, now,
	)
	return err
}

func (db *DB) UserExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AuthenticateUser returns the user on a credential match, nil when the user
// is unknown or the password does not match.
func (db *DB) AuthenticateUser(username, password string) (*models.User, error) {
	user, err := db.GetUserByUsername(username)
	if err == ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil
	}
	return user, nil
}

const userColumns = "id, username, password_hash, avatar_url, bio, preferred_language_code, created_at"

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var createdAt string
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.AvatarURL, &u.Bio, &u.PreferredLanguageCode, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

func (db *DB) GetUserByID(id int64) (*models.User, error) {
	row := db.conn.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	row := db.conn.QueryRow("SELECT "+userColumns+" FROM users WHERE username = ?", username)
	return scanUser(row)
}

// ChangePassword verifies the old password before storing a new hash.
func (db *DB) ChangePassword(userID int64, oldPassword, newPassword string) (bool, error) {
	var currentHash string
	err := db.conn.QueryRow("SELECT password_hash FROM users WHERE id = ?", userID).Scan(&currentHash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if bcrypt.CompareHashAndPassword([]byte(currentHash), []byte(oldPassword)) != nil {
		return false, nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}

	res, err := db.conn.Exec("UPDATE users SET password_hash = ? WHERE id = ?", string(hashed), userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (db *DB) UpdateBio(userID int64, bio string) (bool, error) {
	res, err := db.conn.Exec("UPDATE users SET bio = ? WHERE id = ?", bio, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (db *DB) UpdatePreferredLanguage(userID int64, languageCode string) (bool, error) {
	res, err := db.conn.Exec("UPDATE users SET preferred_language_code = ? WHERE id = ?", languageCode, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (db *DB) UpdateAvatar(userID int64, avatarURL string) error {
	_, err := db.conn.Exec("UPDATE users SET avatar_url = ? WHERE id = ?", avatarURL, userID)
	return err
}

func (db *DB) SearchUsers(query string, excludeUserID int64, limit int) ([]models.User, error) {
	rows, err := db.conn.Query(`
		SELECT id, username, avatar_url, bio
		FROM users
		WHERE LOWER(username) LIKE ? AND id <> ?
		LIMIT ?`,
		"%"+query+"%", excludeUserID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.AvatarURL, &u.Bio); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListUsersWithMessages returns the users the given user has exchanged
// private messages with.
func (db *DB) ListUsersWithMessages(userID int64) ([]models.User, error) {
	rows, err := db.conn.Query(`
		SELECT DISTINCT u.id, u.username, u.avatar_url, u.bio
		FROM users u
		JOIN messages m
		  ON (m.sender_id = ? AND m.receiver_id = u.id)
		  OR (m.receiver_id = ? AND m.sender_id = u.id)
		WHERE u.id <> ?`,
		userID, userID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.AvatarURL, &u.Bio); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (db *DB) FollowUser(followerID, targetID int64) error {
	_, err := db.conn.Exec(`
		INSERT INTO user_follows (follower_id, target_id) VALUES (?, ?)
		ON CONFLICT(follower_id, target_id) DO NOTHING`,
		followerID, targetID,
	)
	return err
}

func (db *DB) UnfollowUser(followerID, targetID int64) (bool, error) {
	res, err := db.conn.Exec(
		"DELETE FROM user_follows WHERE follower_id = ? AND target_id = ?",
		followerID, targetID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
