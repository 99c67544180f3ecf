package notifier

import (
	"context"
	"net/url"
	"strings"

	"github.com/weiawesome/wes-io-feed/internal/domain"
	"github.com/weiawesome/wes-io-feed/internal/metrics"
	pkglog "github.com/weiawesome/wes-io-feed/pkg/log"
	"github.com/weiawesome/wes-io-feed/pkg/pubsub"
)

// Paths of the links in notifications, relative to the public URL. They
// are the routes that accept the link's email and token query.
const (
	ActivationPath    = "/api/v1/accounts/activate"
	PasswordResetPath = "/api/v1/password_resets/edit"
)

// PubSubNotifier publishes notification events for a mail worker.
type PubSubNotifier struct {
	publisher pubsub.Publisher
	publicURL string
}

// NewPubSubNotifier publishes through p. publicURL is the base of the
// links embedded in the events, e.g. "https://feed.example.com".
func NewPubSubNotifier(p pubsub.Publisher, publicURL string) *PubSubNotifier {
	return &PubSubNotifier{publisher: p, publicURL: strings.TrimSuffix(publicURL, "/")}
}

func (n *PubSubNotifier) SendActivation(ctx context.Context, account domain.Account, token string) {
	n.send(ctx, pubsub.EventAccountActivation, account, token, ActivationPath)
}

func (n *PubSubNotifier) SendPasswordReset(ctx context.Context, account domain.Account, token string) {
	n.send(ctx, pubsub.EventAccountPasswordReset, account, token, PasswordResetPath)
}

func (n *PubSubNotifier) send(ctx context.Context, eventType string, account domain.Account, token, path string) {
	l := pkglog.Ctx(ctx).With().
		Str(pkglog.FieldEvent, eventType).
		Str(pkglog.FieldAccountID, account.ID).
		Logger()

	payload := pubsub.AccountTokenPayload{
		AccountID: account.ID,
		Name:      account.Name,
		Email:     account.Email,
		Token:     token,
		Link:      n.link(path, token, account.Email),
	}

	event, err := pubsub.NewEvent(eventType, account.ID, payload)
	if err != nil {
		l.Error().Err(err).Msg("failed to build notification event")
		metrics.Notification(eventType, false)
		return
	}

	if err := n.publisher.Publish(ctx, pubsub.AccountNotifyChannel(account.ID), event); err != nil {
		l.Error().Err(err).Msg("failed to publish notification")
		metrics.Notification(eventType, false)
		return
	}

	l.Info().Msg("notification published")
	metrics.Notification(eventType, true)
}

func (n *PubSubNotifier) link(path, token, email string) string {
	if n.publicURL == "" {
		return ""
	}
	q := url.Values{"email": {email}, "token": {token}}
	return n.publicURL + path + "?" + q.Encode()
}

var _ Notifier = (*PubSubNotifier)(nil)
