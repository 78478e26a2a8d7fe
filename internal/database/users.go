package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/leakbox/internal/model"
)

const userColumns = `id, email, registration_site, registration_url, registered_at`

// AddUser registers email for site. It returns false without error when the
// address is already taken.
func (m *MailDB) AddUser(ctx context.Context, email, site, registrationURL string) (bool, error) {
	query := `
	INSERT INTO users (email, registration_site, registration_url, registered_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(email) DO NOTHING
	`

	result, err := m.db.ExecContext(ctx, query,
		email,
		site,
		TruncateURL(registrationURL),
		formatTimestamp(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert user: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// UserByEmail returns the user with the given address, or nil if none.
func (m *MailDB) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// UserByID returns the user with the given ID, or nil if none.
func (m *MailDB) UserByID(ctx context.Context, id int64) (*model.User, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// Users returns every registered user ordered by ID.
func (m *MailDB) Users(ctx context.Context) ([]model.User, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var user model.User
	var registeredAt string

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.RegistrationSite,
		&user.RegistrationURL,
		&registeredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	user.RegisteredAt = parseTimestamp(registeredAt)
	return &user, nil
}
