// Package logging defines the structured logger passed to services and the
// transport. Arguments are key/value pairs:
//
//	log.Info(ctx, "login", "loginId", loginID, "secureMode", secure)
//
// Secrets (H3 values, master keys, raw session ids) are never logged.
package logging

import "context"

type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always adds args.
	With(args ...any) Logger
}
