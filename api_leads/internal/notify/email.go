package notify

import (
	"context"
	"fmt"
	"html"
)

type Mailer interface {
	SendMail(ctx context.Context, to, subject, htmlBody string) error
}

// EmailSender renders templates into a short HTML mail.
type EmailSender struct {
	mailer  Mailer
	enabled bool
}

func NewEmailSender(mailer Mailer, enabled bool) *EmailSender {
	return &EmailSender{mailer: mailer, enabled: enabled}
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if !s.enabled || s.mailer == nil {
		return ErrChannelDisabled
	}
	title, body, _, err := Render(msg.Template, msg.Params)
	if err != nil {
		return err
	}
	page := fmt.Sprintf("<html><body><h2>%s</h2><p>%s</p></body></html>",
		html.EscapeString(title), html.EscapeString(body))
	return s.mailer.SendMail(ctx, msg.Recipient, title, page)
}
