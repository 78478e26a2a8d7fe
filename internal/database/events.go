package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nao1215/leakbox/internal/model"
)

// AddMailEvent appends a record of a delivered message.
func (m *MailDB) AddMailEvent(ctx context.Context, ev *model.MailEvent) error {
	query := `
	INSERT INTO mail_events (recipient, sender, sent_at, subject, archive_path, dkim, received_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var sentAt any
	if !ev.SentAt.IsZero() {
		sentAt = formatTimestamp(ev.SentAt)
	}

	_, err := m.db.ExecContext(ctx, query,
		ev.Recipient,
		ev.Sender,
		sentAt,
		ev.Subject,
		ev.ArchivePath,
		ev.DKIM,
		formatTimestamp(nowOr(ev.ReceivedAt)),
	)
	if err != nil {
		return fmt.Errorf("failed to insert mail event: %w", err)
	}
	return nil
}

// MailEvents returns the mail events for recipient, newest first.
// An empty recipient returns every event.
func (m *MailDB) MailEvents(ctx context.Context, recipient string) ([]model.MailEvent, error) {
	query := `
	SELECT recipient, sender, sent_at, subject, archive_path, dkim, received_at
	FROM mail_events
	WHERE 1=1
	`
	args := make([]any, 0)
	if recipient != "" {
		query += " AND recipient = ?"
		args = append(args, recipient)
	}
	query += " ORDER BY id DESC"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mail events: %w", err)
	}
	defer rows.Close()

	events := make([]model.MailEvent, 0)
	for rows.Next() {
		var ev model.MailEvent
		var sentAt, subject, archivePath, dkim sql.NullString
		var receivedAt string
		if err := rows.Scan(&ev.Recipient, &ev.Sender, &sentAt, &subject, &archivePath, &dkim, &receivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mail event: %w", err)
		}
		if sentAt.Valid {
			ev.SentAt = parseTimestamp(sentAt.String)
		}
		ev.Subject = subject.String
		ev.ArchivePath = archivePath.String
		ev.DKIM = dkim.String
		ev.ReceivedAt = parseTimestamp(receivedAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// AddRedirectChain stores a chain and all of its hops in one transaction.
// A chain without hops is not stored.
func (m *MailDB) AddRedirectChain(ctx context.Context, chain *model.RedirectChain) error {
	if chain.IsEmpty() {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx, `
	INSERT INTO redirect_chains (requested_url, sender_domain, sender_address, recipient_id, created_at)
	VALUES (?, ?, ?, ?, ?)
	`,
		TruncateURL(chain.RequestedURL),
		chain.SenderDomain,
		chain.SenderAddress,
		chain.RecipientID,
		formatTimestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert redirect chain: %w", err)
	}
	chainID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO redirect_hops (chain_id, hop_index, host, domain, url)
	VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare hop insert: %w", err)
	}
	defer stmt.Close()

	for i, hop := range chain.Hops {
		// Indices are assigned here so they are always 1-based and increasing.
		if _, err := stmt.ExecContext(ctx, chainID, i+1, hop.Host, hop.Domain, TruncateURL(hop.URL)); err != nil {
			return fmt.Errorf("failed to insert redirect hop %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit redirect chain: %w", err)
	}
	return nil
}

// RedirectChains returns stored chains with their hops, oldest first.
// A zero recipientID returns chains for every recipient.
func (m *MailDB) RedirectChains(ctx context.Context, recipientID int64) ([]model.RedirectChain, error) {
	query := `
	SELECT c.id, c.requested_url, c.sender_domain, c.sender_address, c.recipient_id,
		h.hop_index, h.host, h.domain, h.url
	FROM redirect_chains c
	JOIN redirect_hops h ON h.chain_id = c.id
	WHERE 1=1
	`
	args := make([]any, 0)
	if recipientID != 0 {
		query += " AND c.recipient_id = ?"
		args = append(args, recipientID)
	}
	query += " ORDER BY c.id, h.hop_index"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query redirect chains: %w", err)
	}
	defer rows.Close()

	chains := make([]model.RedirectChain, 0)
	var lastID int64
	for rows.Next() {
		var id int64
		var chain model.RedirectChain
		var hop model.Hop
		if err := rows.Scan(
			&id,
			&chain.RequestedURL,
			&chain.SenderDomain,
			&chain.SenderAddress,
			&chain.RecipientID,
			&hop.Index,
			&hop.Host,
			&hop.Domain,
			&hop.URL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan redirect chain: %w", err)
		}
		if len(chains) == 0 || id != lastID {
			chains = append(chains, chain)
			lastID = id
		}
		last := &chains[len(chains)-1]
		last.Hops = append(last.Hops, hop)
	}
	return chains, rows.Err()
}

// AddLeakEvent appends a leak event.
func (m *MailDB) AddLeakEvent(ctx context.Context, ev *model.LeakEvent) error {
	query := `
	INSERT INTO leak_events (url, variant, source, is_redirect, sender_domain, sender_address, recipient_id, observed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := m.db.ExecContext(ctx, query,
		TruncateURL(ev.URL),
		ev.Variant,
		string(ev.Source),
		ev.IsRedirect,
		ev.SenderDomain,
		ev.SenderAddress,
		ev.RecipientID,
		formatTimestamp(nowOr(ev.ObservedAt)),
	)
	if err != nil {
		return fmt.Errorf("failed to insert leak event: %w", err)
	}
	return nil
}

// LeakFilter narrows LeakEvents. Zero fields match everything.
type LeakFilter struct {
	RecipientID  int64
	SenderDomain string
	Source       model.LeakSource
	Since        time.Time
}

// LeakEvents returns leak events matching filter, oldest first.
func (m *MailDB) LeakEvents(ctx context.Context, filter LeakFilter) ([]model.LeakEvent, error) {
	query := `
	SELECT id, url, variant, source, is_redirect, sender_domain, sender_address, recipient_id, observed_at
	FROM leak_events
	WHERE 1=1
	`
	args := make([]any, 0)

	if filter.RecipientID != 0 {
		query += " AND recipient_id = ?"
		args = append(args, filter.RecipientID)
	}
	if filter.SenderDomain != "" {
		query += " AND sender_domain = ?"
		args = append(args, filter.SenderDomain)
	}
	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, string(filter.Source))
	}
	if !filter.Since.IsZero() {
		query += " AND observed_at >= ?"
		args = append(args, formatTimestamp(filter.Since))
	}
	query += " ORDER BY id"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leak events: %w", err)
	}
	defer rows.Close()

	events := make([]model.LeakEvent, 0)
	for rows.Next() {
		var ev model.LeakEvent
		var source, observedAt string
		if err := rows.Scan(
			&ev.ID,
			&ev.URL,
			&ev.Variant,
			&source,
			&ev.IsRedirect,
			&ev.SenderDomain,
			&ev.SenderAddress,
			&ev.RecipientID,
			&observedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan leak event: %w", err)
		}
		ev.Source = model.LeakSource(source)
		ev.ObservedAt = parseTimestamp(observedAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}
