package audit

import (
	"context"

	"github.com/weiawesome/wes-io-feed/pkg/log"
)

const (
	ActionRegister             = "account.register"
	ActionActivate             = "account.activate"
	ActionLogin                = "account.login"
	ActionLoginFailed          = "account.login_failed"
	ActionRemember             = "account.remember"
	ActionForget               = "account.forget"
	ActionUpdateProfile        = "account.update_profile"
	ActionPasswordResetRequest = "account.password_reset_requested"
	ActionPasswordReset        = "account.password_reset"
	ActionDeleteAccount        = "account.delete"
	ActionFollow               = "graph.follow"
	ActionUnfollow             = "graph.unfollow"
	ActionCreatePost           = "post.create"
	ActionDeletePost           = "post.delete"
)

const (
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits an audit entry on the context logger.
func Log(ctx context.Context, action, accountID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(log.FieldAction, action).
		Str(log.FieldAccountID, accountID).
		Msg(msg)
}

// LogTarget emits an audit entry for an action on another entity.
func LogTarget(ctx context.Context, action, accountID, targetID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(log.FieldAction, action).
		Str(log.FieldAccountID, accountID).
		Str(FieldTargetID, targetID).
		Msg(msg)
}

// LogWithDetail emits an audit entry with a free-form detail.
func LogWithDetail(ctx context.Context, action, accountID, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(log.FieldAction, action).
		Str(log.FieldAccountID, accountID).
		Str(FieldDetail, detail).
		Msg(msg)
}
