package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ragchat/internal/config"
	"ragchat/internal/models"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// SQLDriver stores everything in the tables created by storage.Migrate.
type SQLDriver struct {
	db     *sql.DB
	driver string
}

// NewSQLDriver wraps an opened and migrated database.
func NewSQLDriver(db *sql.DB, driver string) *SQLDriver {
	driver = strings.ToLower(driver)
	if driver == "sqlite" {
		driver = config.DriverSQLite
	}
	return &SQLDriver{db: db, driver: driver}
}

func (d *SQLDriver) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return errors.New("user id required")
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (id, email, username, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, nullString(user.Username), user.PasswordHash, user.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (d *SQLDriver) UserByID(ctx context.Context, id string) (*models.User, error) {
	return d.userWhere(ctx, "id", id)
}

func (d *SQLDriver) UserByLogin(ctx context.Context, login string) (*models.User, error) {
	user, err := d.userWhere(ctx, "username", login)
	if errors.Is(err, ErrNotFound) {
		return d.userWhere(ctx, "email", login)
	}
	return user, err
}

func (d *SQLDriver) userWhere(ctx context.Context, column, value string) (*models.User, error) {
	var (
		user     models.User
		username sql.NullString
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT id, email, username, password_hash, created_at FROM users WHERE `+column+` = ?`, value,
	).Scan(&user.ID, &user.Email, &username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	user.Username = username.String
	threads, err := d.Threads(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Threads = threads
	return &user, nil
}

func (d *SQLDriver) InsertThread(ctx context.Context, userID string, thread models.Thread) (bool, error) {
	if err := d.userExists(ctx, userID); err != nil {
		return false, err
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO threads (user_id, thread_id, headline, active, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, thread.ThreadID, thread.Headline, thread.Active, thread.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert thread: %w", err)
	}
	return true, nil
}

func (d *SQLDriver) ReplaceHeadline(ctx context.Context, userID, threadID, from, to string) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`UPDATE threads SET headline = ? WHERE user_id = ? AND thread_id = ? AND headline = ?`,
		to, userID, threadID, from,
	)
	if err != nil {
		return false, fmt.Errorf("update headline: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update headline: %w", err)
	}
	return n > 0, nil
}

func (d *SQLDriver) DeactivateThread(ctx context.Context, userID, threadID string) (bool, error) {
	var active bool
	err := d.db.QueryRowContext(ctx,
		`SELECT active FROM threads WHERE user_id = ? AND thread_id = ?`, userID, threadID,
	).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup thread: %w", err)
	}
	// mysql reports zero affected rows for unchanged values, so existence is checked above.
	if _, err := d.db.ExecContext(ctx,
		`UPDATE threads SET active = ? WHERE user_id = ? AND thread_id = ?`, false, userID, threadID,
	); err != nil {
		return false, fmt.Errorf("deactivate thread: %w", err)
	}
	return true, nil
}

func (d *SQLDriver) Threads(ctx context.Context, userID string) ([]models.Thread, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT thread_id, headline, active, created_at FROM threads WHERE user_id = ? ORDER BY created_at ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	threads := []models.Thread{}
	for rows.Next() {
		var t models.Thread
		if err := rows.Scan(&t.ThreadID, &t.Headline, &t.Active, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	return threads, nil
}

func (d *SQLDriver) Load(ctx context.Context, key models.CheckpointKey) (*models.Checkpoint, error) {
	var state string
	err := d.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE thread_id = ? AND user_id = ?`, key.ThreadID, key.UserID,
	).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}
	var cp models.Checkpoint
	if err := json.Unmarshal([]byte(state), &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

func (d *SQLDriver) Save(ctx context.Context, key models.CheckpointKey, cp *models.Checkpoint) error {
	if cp == nil {
		return errors.New("checkpoint required")
	}
	cp.ThreadID, cp.UserID = key.ThreadID, key.UserID
	state, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	upsert := `INSERT INTO checkpoints (thread_id, user_id, state, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(thread_id, user_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`
	if d.driver == config.DriverMySQL {
		upsert = `INSERT INTO checkpoints (thread_id, user_id, state, updated_at) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE state = VALUES(state), updated_at = VALUES(updated_at)`
	}
	if _, err := d.db.ExecContext(ctx, upsert, key.ThreadID, key.UserID, string(state), cp.Timestamp.UTC()); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (d *SQLDriver) SaveToken(ctx context.Context, token, userID string, createdAt, expiresAt time.Time) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO user_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, createdAt.UTC(), expiresAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (d *SQLDriver) LookupToken(ctx context.Context, token string) (string, time.Time, error) {
	var (
		userID  string
		expires time.Time
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM user_tokens WHERE token = ?`, token,
	).Scan(&userID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, ErrNotFound
		}
		return "", time.Time{}, fmt.Errorf("lookup token: %w", err)
	}
	return userID, expires, nil
}

func (d *SQLDriver) DeleteToken(ctx context.Context, token string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (d *SQLDriver) DeleteUserTokens(ctx context.Context, userID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user tokens: %w", err)
	}
	return nil
}

func (d *SQLDriver) Close(context.Context) error {
	return d.db.Close()
}

func (d *SQLDriver) userExists(ctx context.Context, userID string) error {
	var one int
	err := d.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}
