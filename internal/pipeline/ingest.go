package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nao1215/leakbox/internal/model"
)

// ErrUnknownRecipient is returned by Deliver for an unregistered address.
var ErrUnknownRecipient = errors.New("unknown recipient")

// UserLookup resolves a recipient address to its user.
type UserLookup interface {
	UserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Ingestor connects the SMTP boundary to the pipeline.
type Ingestor struct {
	users    UserLookup
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(users UserLookup, p *Pipeline, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{users: users, pipeline: p, logger: logger}
}

// Accept reports whether recipient is a registered address.
func (i *Ingestor) Accept(ctx context.Context, _, recipient string) (bool, error) {
	user, err := i.users.UserByEmail(ctx, normalize(recipient))
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

// Deliver runs the pipeline for one recipient of a message.
func (i *Ingestor) Deliver(ctx context.Context, from, recipient string, data []byte) error {
	user, err := i.users.UserByEmail(ctx, normalize(recipient))
	if err != nil {
		return fmt.Errorf("failed to look up recipient: %w", err)
	}
	if user == nil {
		return fmt.Errorf("%w: %s", ErrUnknownRecipient, recipient)
	}

	d := model.NewDelivery(from, user.Email, data)
	d.User = user

	if err := i.pipeline.Execute(ctx, d); err != nil {
		return err
	}
	if len(d.Errors) > 0 {
		i.logger.Warn("delivery completed with errors",
			"rcpt", d.Recipient,
			"errors", errors.Join(d.Errors...),
		)
	}
	return nil
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
