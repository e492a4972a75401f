package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/PipeOpsHQ/agent-backend/integrations/gmail"
)

// EmailSendName is the tool name the email scorer grades.
const EmailSendName = "send_email"

type MailSender interface {
	Send(ctx context.Context, m gmail.Message) (string, error)
}

// NewSendEmail sends a plain-text email from the configured mailbox.
func NewSendEmail(sender MailSender) Tool {
	return NewFuncTool(
		EmailSendName,
		"Send an email. Requires a recipient, a subject and a body.",
		objectSchema([]string{"to", "subject", "body"}, map[string]any{
			"to":      stringProp("Recipient address."),
			"subject": stringProp("Subject line."),
			"body":    stringProp("Plain-text body."),
		}),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var msg gmail.Message
			if err := decode(args, &msg); err != nil {
				return nil, err
			}
			if sender == nil {
				return nil, fmt.Errorf("email is not configured")
			}
			id, err := sender.Send(ctx, msg)
			if err != nil {
				return nil, err
			}
			return map[string]any{"sent": true, "id": id, "to": msg.To}, nil
		},
	)
}
