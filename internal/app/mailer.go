package app

import (
	"context"
	"log/slog"
)

// logMailer satisfies authsvc.EmailSender by logging the verification
// code/link instead of dispatching real email, since outbound email
// delivery is an out-of-scope collaborator (spec.md §1).
type logMailer struct {
	logger *slog.Logger
}

func newLogMailer(logger *slog.Logger) *logMailer {
	return &logMailer{logger: logger}
}

func (m *logMailer) SendVerification(_ context.Context, email, codeOrLink, method string) error {
	m.logger.Info("email: verification", "email", email, "method", method, "value", codeOrLink)
	return nil
}

func (m *logMailer) SendPasswordReset(_ context.Context, email, codeOrLink, method string) error {
	m.logger.Info("email: password reset", "email", email, "method", method, "value", codeOrLink)
	return nil
}
