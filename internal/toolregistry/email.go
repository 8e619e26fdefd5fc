package toolregistry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/resend/resend-go/v2"
)

// sender is the notification transport an EmailRegistry dispatches
// through, generalized from the teacher's email.Sender (there scoped to
// a single magic-link message) to the arbitrary to/subject/body a
// pipeline step can template at runtime.
type sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// logSender logs instead of sending, used when no API key is
// configured (local/dev environments).
type logSender struct {
	logger *slog.Logger
}

func (s *logSender) Send(_ context.Context, to, subject, body string) error {
	s.logger.Info("email tool invocation (no API key configured)", "to", to, "subject", subject, "body", body)
	return nil
}

// resendSender sends through the Resend API.
type resendSender struct {
	client *resend.Client
	from   string
}

func (s *resendSender) Send(ctx context.Context, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}
	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// EmailRegistry is the notification tool handler behind the "email"
// `uses` address: a pipeline step supplies {to, subject, body} as its
// `with` arguments and the handler dispatches them through sender.
type EmailRegistry struct {
	send   sender
	logger *slog.Logger
}

// NewEmailRegistry returns a Resend-backed EmailRegistry when apiKey is
// non-empty, or a logSender stand-in otherwise.
func NewEmailRegistry(apiKey, from string, logger *slog.Logger) *EmailRegistry {
	logger = logger.With("component", "email_registry")
	if apiKey == "" {
		return &EmailRegistry{send: &logSender{logger: logger}, logger: logger}
	}
	return &EmailRegistry{
		send:   &resendSender{client: resend.NewClient(apiKey), from: from},
		logger: logger,
	}
}

// Invoke matches the toolregistry.Handler shape so an EmailRegistry can
// be registered directly on a StaticRegistry address; the deadline is
// already applied to ctx by the caller.
func (r *EmailRegistry) Invoke(ctx context.Context, args domain.Value) (domain.Value, error) {
	obj, ok := args.Object()
	if !ok {
		return domain.NullValue(), fmt.Errorf("email tool: args must be an object with to/subject/body")
	}
	to, _ := valueAsString(obj, "to")
	subject, _ := valueAsString(obj, "subject")
	body, _ := valueAsString(obj, "body")
	if to == "" {
		return domain.NullValue(), fmt.Errorf("email tool: missing \"to\"")
	}

	if err := r.send.Send(ctx, to, subject, body); err != nil {
		r.logger.ErrorContext(ctx, "email tool invocation failed", "to", to, "error", err)
		return domain.NullValue(), err
	}

	result := domain.NewOrderedObject()
	result.Set("sent", domain.BoolValue(true))
	return domain.ObjectValue(result), nil
}

func valueAsString(obj *domain.OrderedObject, key string) (string, bool) {
	v, ok := obj.Get(key)
	if !ok {
		return "", false
	}
	return v.String()
}
