package withings

import (
	"context"
	"log/slog"

	"github.com/alexjbarnes/healthsync/internal/catalog"
	"github.com/alexjbarnes/healthsync/internal/logging"
)

// Subscriber registers webhook interest after a successful connection.
// Subscription is an optimization, not a correctness requirement:
// every failure is logged and swallowed, and the calls use bearer auth
// rather than the signed scheme (only the client-credential calls are
// signed).
type Subscriber struct {
	client  *Client
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewSubscriber creates a webhook subscription manager.
func NewSubscriber(client *Client, cat *catalog.Catalog, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = logging.Discard()
	}

	return &Subscriber{
		client:  client,
		catalog: cat,
		logger:  logger,
	}
}

// Subscribe issues one subscribe call per interest category,
// best-effort. Categories without an appli code are skipped.
func (s *Subscriber) Subscribe(ctx context.Context, accessToken string, categories []string) {
	if s.client.cfg.NotifyCallbackURL == "" {
		s.logger.Debug("no notify callback URL configured, skipping subscriptions")
		return
	}

	for _, category := range categories {
		appli, ok := s.catalog.AppliFor(category)
		if !ok {
			continue
		}

		if err := s.client.NotifySubscribe(ctx, accessToken, appli); err != nil {
			s.logger.Warn("webhook subscription failed",
				slog.String("category", category),
				slog.Int("appli", appli),
				slog.String("error", err.Error()),
			)

			continue
		}

		s.logger.Debug("webhook subscription registered",
			slog.String("category", category),
			slog.Int("appli", appli),
		)
	}
}
