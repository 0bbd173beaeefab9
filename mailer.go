package userflow

import "context"

// Mailer delivers outbound messages. The core hands over a template name,
// a recipient, and template data; rendering and transport are entirely the
// collaborator's concern and may be synchronous or queued.
type Mailer interface {
	Send(ctx context.Context, template, recipient string, data map[string]any) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, template, recipient string, data map[string]any) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, template, recipient string, data map[string]any) error {
	if f == nil {
		return nil
	}
	return f(ctx, template, recipient, data)
}

type noopMailer struct{}

func (noopMailer) Send(context.Context, string, string, map[string]any) error {
	return nil
}

// Mail template names used by the flows.
const (
	MailTemplateRegisterStart = "register_start"
	MailTemplateRestoreStart  = "restore_start"
)
