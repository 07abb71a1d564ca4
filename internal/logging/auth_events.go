// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package logging

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// AuthEventLogger writes account events (signup, login) with a fixed
// "category":"auth" field. Passwords and tokens are never accepted as fields.
type AuthEventLogger struct {
	logger zerolog.Logger
}

// NewAuthEventLogger returns an AuthEventLogger on the global logger.
func NewAuthEventLogger() *AuthEventLogger {
	return &AuthEventLogger{logger: WithComponent("auth").With().Str("category", "auth").Logger()}
}

// NewAuthEventLoggerWithLogger is used by tests to capture output.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewAuthEventLoggerWithLogger(logger zerolog.Logger) *AuthEventLogger {
	return &AuthEventLogger{logger: logger.With().Str("category", "auth").Logger()}
}

// LogSignup records a new account.
func (l *AuthEventLogger) LogSignup(ctx context.Context, userID int64, username, ip string) {
	l.event(ctx, zerolog.InfoLevel).
		Str("event", "signup").
		Int64("user_id", userID).
		Str("username", SanitizeValue(username)).
		Str("ip", ip).
		Msg("Account created")
}

// LogLoginSuccess records a successful credential check.
func (l *AuthEventLogger) LogLoginSuccess(ctx context.Context, userID int64, username, ip string) {
	l.event(ctx, zerolog.InfoLevel).
		Str("event", "login_success").
		Int64("user_id", userID).
		Str("username", SanitizeValue(username)).
		Str("ip", ip).
		Msg("Login succeeded")
}

// LogLoginFailure records a rejected login. reason is a short machine tag.
func (l *AuthEventLogger) LogLoginFailure(ctx context.Context, username, ip, reason string) {
	l.event(ctx, zerolog.WarnLevel).
		Str("event", "login_failure").
		Str("username", SanitizeValue(username)).
		Str("ip", ip).
		Str("reason", reason).
		Msg("Login failed")
}

func (l *AuthEventLogger) event(ctx context.Context, level zerolog.Level) *zerolog.Event {
	e := l.logger.WithLevel(level)
	if id := RequestIDFromContext(ctx); id != "" {
		e = e.Str("request_id", id)
	}
	return e
}

// SanitizeValue escapes control characters so user-supplied strings cannot
// forge log lines, and caps the value at 128 runes.
func SanitizeValue(s string) string {
	const maxRunes = 128
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if n == maxRunes {
			b.WriteString("...")
			break
		}
		if r < 0x20 || r == 0x7F {
			b.WriteString("\\x")
			b.WriteByte("0123456789abcdef"[r>>4])
			b.WriteByte("0123456789abcdef"[r&0xF])
		} else {
			b.WriteRune(r)
		}
		n++
	}
	return b.String()
}
