package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/leakbox/internal/model"
)

// AddLinkGroup stores a new, un-issued link group and returns its ID.
// URLs are de-duplicated preserving first occurrence. They are stored
// verbatim, since the fetch agent must be able to request them.
func (m *MailDB) AddLinkGroup(ctx context.Context, group *model.LinkGroup) (int64, error) {
	urls := make([]string, 0, len(group.URLs))
	seen := make(map[string]struct{}, len(group.URLs))
	for _, u := range group.URLs {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	urlsJSON, err := json.Marshal(urls)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize link group urls: %w", err)
	}

	result, err := m.db.ExecContext(ctx, `
	INSERT INTO link_groups (sender_domain, sender_address, recipient_id, urls, created_at)
	VALUES (?, ?, ?, ?, ?)
	`,
		group.SenderDomain,
		group.SenderAddress,
		group.RecipientID,
		string(urlsJSON),
		formatTimestamp(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert link group: %w", err)
	}
	return result.LastInsertId()
}

// AcquireLinkGroup marks one random un-issued group as issued and returns it.
// It returns nil when no group is available. The select and the flag flip
// are a single statement, so concurrent callers never receive the same group.
func (m *MailDB) AcquireLinkGroup(ctx context.Context) (*model.LinkGroup, error) {
	row := m.db.QueryRowContext(ctx, `
	UPDATE link_groups
	SET issued = 1, issued_at = ?
	WHERE id = (SELECT id FROM link_groups WHERE issued = 0 ORDER BY RANDOM() LIMIT 1)
	RETURNING id, sender_domain, sender_address, recipient_id, urls
	`, formatTimestamp(time.Now()))
	return scanLinkGroup(row)
}

// LinkGroup returns the group with the given ID, issued or not, or nil.
func (m *MailDB) LinkGroup(ctx context.Context, id int64) (*model.LinkGroup, error) {
	row := m.db.QueryRowContext(ctx, `
	SELECT id, sender_domain, sender_address, recipient_id, urls
	FROM link_groups WHERE id = ?
	`, id)
	return scanLinkGroup(row)
}

// ClaimLinkGroup deletes the group with the given ID and returns it, or nil
// if it does not exist. Of several concurrent claims for one ID exactly one
// receives the group.
func (m *MailDB) ClaimLinkGroup(ctx context.Context, id int64) (*model.LinkGroup, error) {
	row := m.db.QueryRowContext(ctx, `
	DELETE FROM link_groups WHERE id = ?
	RETURNING id, sender_domain, sender_address, recipient_id, urls
	`, id)
	return scanLinkGroup(row)
}

// LinkGroupCounts returns the number of un-issued and issued groups.
func (m *MailDB) LinkGroupCounts(ctx context.Context) (pending, issued int, err error) {
	err = m.db.QueryRowContext(ctx, `
	SELECT
		COALESCE(SUM(CASE WHEN issued = 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN issued = 1 THEN 1 ELSE 0 END), 0)
	FROM link_groups
	`).Scan(&pending, &issued)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count link groups: %w", err)
	}
	return pending, issued, nil
}

func scanLinkGroup(row rowScanner) (*model.LinkGroup, error) {
	var group model.LinkGroup
	var urlsJSON string

	err := row.Scan(
		&group.ID,
		&group.SenderDomain,
		&group.SenderAddress,
		&group.RecipientID,
		&urlsJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan link group: %w", err)
	}

	if err := json.Unmarshal([]byte(urlsJSON), &group.URLs); err != nil {
		return nil, fmt.Errorf("failed to parse link group urls: %w", err)
	}
	return &group, nil
}
