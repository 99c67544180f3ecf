package notifier

import (
	"context"

	"github.com/weiawesome/wes-io-feed/internal/domain"
	"github.com/weiawesome/wes-io-feed/internal/metrics"
	pkglog "github.com/weiawesome/wes-io-feed/pkg/log"
	"github.com/weiawesome/wes-io-feed/pkg/pubsub"
)

// LogNotifier only records that a message would have been sent. Used
// when no event bus is configured. Tokens are not logged.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (LogNotifier) SendActivation(ctx context.Context, account domain.Account, _ string) {
	logSend(ctx, pubsub.EventAccountActivation, account)
}

func (LogNotifier) SendPasswordReset(ctx context.Context, account domain.Account, _ string) {
	logSend(ctx, pubsub.EventAccountPasswordReset, account)
}

func logSend(ctx context.Context, eventType string, account domain.Account) {
	l := pkglog.Ctx(ctx)
	l.Warn().
		Str(pkglog.FieldEvent, eventType).
		Str(pkglog.FieldAccountID, account.ID).
		Msg("no notification transport configured, message dropped")
	metrics.Notification(eventType, false)
}

var _ Notifier = LogNotifier{}
