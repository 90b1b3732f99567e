package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"dopahiyaa/api_leads/internal/models"
	"dopahiyaa/pkg/logging"
)

type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelInApp    Channel = "in_app"
)

// ErrChannelDisabled is returned by a sender that has no credentials.
var ErrChannelDisabled = errors.New("notification channel not configured")

// Message is one notification to one recipient. Recipient is a phone number,
// an email address or a user id depending on the channel.
type Message struct {
	Channel   Channel
	Recipient string
	UserID    string
	Template  string
	Params    []string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher routes messages to the sender for their channel. Delivery is
// best effort: failures are logged and counted, never returned.
type Dispatcher struct {
	senders map[Channel]Sender
	logger  logging.Logger
	metrics *prometheus.CounterVec
}

func NewDispatcher(logger logging.Logger, metrics *prometheus.CounterVec) *Dispatcher {
	return &Dispatcher{senders: make(map[Channel]Sender), logger: logger, metrics: metrics}
}

// Register installs s for channel c, replacing any previous sender.
func (d *Dispatcher) Register(c Channel, s Sender) *Dispatcher {
	d.senders[c] = s
	return d
}

// Notify reports whether the message was handed off successfully.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) bool {
	fields := logging.Fields{"channel": msg.Channel, "template": msg.Template}
	if msg.UserID != "" {
		fields["user_id"] = msg.UserID
	}

	sender, ok := d.senders[msg.Channel]
	if !ok {
		d.observe(msg.Channel, "skipped")
		d.logger.WithFields(fields).Debug("No sender registered for channel")
		return false
	}

	err := sender.Send(ctx, msg)
	switch {
	case err == nil:
		d.observe(msg.Channel, "sent")
		return true
	case errors.Is(err, ErrChannelDisabled):
		d.observe(msg.Channel, "skipped")
		d.logger.WithFields(fields).Debug("Notification skipped, channel disabled")
	default:
		d.observe(msg.Channel, "failed")
		d.logger.WithFields(fields).WithError(err).Warn("Notification delivery failed")
	}
	return false
}

// NotifyProfile picks the best channel the profile can be reached on:
// WhatsApp when it has a phone, email otherwise. It always also stores an
// in-app notice.
func (d *Dispatcher) NotifyProfile(ctx context.Context, p models.Profile, template string, params ...string) bool {
	delivered := d.Notify(ctx, Message{Channel: ChannelInApp, Recipient: p.ID, UserID: p.ID, Template: template, Params: params})

	if p.Phone != "" && d.Notify(ctx, Message{Channel: ChannelWhatsApp, Recipient: p.Phone, UserID: p.ID, Template: template, Params: params}) {
		return true
	}
	if p.Email != "" {
		return d.Notify(ctx, Message{Channel: ChannelEmail, Recipient: p.Email, UserID: p.ID, Template: template, Params: params}) || delivered
	}
	return delivered
}

func (d *Dispatcher) observe(c Channel, status string) {
	if d.metrics != nil {
		d.metrics.WithLabelValues(string(c), status).Inc()
	}
}

// Template texts shared by the email and in-app channels. WhatsApp uses
// templates approved on the provider side under the same names.
const (
	TemplateLeadNew         = "lead_new"
	TemplateLeadAllocated   = "lead_allocated"
	TemplateLeadUnlocked    = "lead_unlocked_v1"
	TemplateBuyerUnlocked   = "buyer_contact_unlocked"
	TemplateCreditsToppedUp = "credits_topped_up"
)

type text struct {
	title  string
	body   string
	params int
	kind   string
}

var templates = map[string]text{
	TemplateLeadNew: {
		title: "New Inquiry Received!", body: "%s is interested in your listing \"%s\".", params: 2, kind: "lead_new",
	},
	TemplateLeadAllocated: {
		title: "New Lead Matched", body: "A new %s lead in %s matches your filter pack.", params: 2, kind: "lead_allocated",
	},
	TemplateLeadUnlocked: {
		title: "Lead Unlocked", body: "You unlocked the contact details of %s for %s.", params: 2, kind: "lead_unlocked",
	},
	TemplateBuyerUnlocked: {
		title: "A Dealer Will Contact You", body: "%s has received your contact details for %s.", params: 2, kind: "lead_unlocked",
	},
	TemplateCreditsToppedUp: {
		title: "Credits Added", body: "%s credits were added to your balance.", params: 1, kind: "credits",
	},
}

// Render returns the title, body and notification type for a template.
func Render(template string, params []string) (title, body, kind string, err error) {
	t, ok := templates[template]
	if !ok {
		return "", "", "", fmt.Errorf("unknown notification template %q", template)
	}
	args := make([]any, t.params)
	for i := range args {
		args[i] = ""
		if i < len(params) {
			args[i] = params[i]
		}
	}
	return t.title, fmt.Sprintf(t.body, args...), t.kind, nil
}

// DigitsOnly strips everything but digits from a phone number.
func DigitsOnly(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
