// Package notifier delivers one-time account tokens to their owners.
//
// Implementations are best-effort: they log and count failures and never
// report them to the caller.
package notifier

import (
	"context"

	"github.com/weiawesome/wes-io-feed/internal/domain"
)

// Notifier sends activation and password reset messages. The account is
// passed by value so the send may run after the caller moved on.
type Notifier interface {
	SendActivation(ctx context.Context, account domain.Account, token string)
	SendPasswordReset(ctx context.Context, account domain.Account, token string)
}
