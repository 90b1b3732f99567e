package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"dopahiyaa/api_leads/internal/models"
	"dopahiyaa/api_leads/internal/store"
	"dopahiyaa/pkg/logging"
)

type recordingSender struct {
	sent []Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_notifications_total"}, []string{"channel", "status"})
}

func TestWhatsAppSenderPostsTemplate(t *testing.T) {
	var got waRequest
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	s := NewWhatsAppSender(WhatsAppConfig{APIURL: srv.URL, AccessToken: "tok", PhoneNumberID: "555"})
	err := s.Send(context.Background(), Message{
		Channel:   ChannelWhatsApp,
		Recipient: "+91 98765-43210",
		Template:  TemplateLeadUnlocked,
		Params:    []string{"Asha", "Royal Enfield Classic 350"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if auth != "Bearer tok" {
		t.Fatalf("expected bearer token, got %q", auth)
	}
	if path != "/555/messages" {
		t.Fatalf("unexpected path %q", path)
	}
	if got.To != "919876543210" || got.MessagingProduct != "whatsapp" || got.Type != "template" {
		t.Fatalf("unexpected envelope: %+v", got)
	}
	if got.Template.Name != TemplateLeadUnlocked || got.Template.Language.Code != "en" {
		t.Fatalf("unexpected template: %+v", got.Template)
	}
	params := got.Template.Components[0].Parameters
	if len(params) != 2 || params[0].Text != "Asha" || params[1].Type != "text" {
		t.Fatalf("unexpected parameters: %+v", params)
	}
}

func TestWhatsAppSenderRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewWhatsAppSender(WhatsAppConfig{APIURL: srv.URL, AccessToken: "tok", PhoneNumberID: "1"})
	if err := s.Send(context.Background(), Message{Recipient: "98765", Template: TemplateLeadNew}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestWhatsAppSenderReportsClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"template not approved"}}`))
	}))
	defer srv.Close()

	s := NewWhatsAppSender(WhatsAppConfig{APIURL: srv.URL, AccessToken: "tok", PhoneNumberID: "1"})
	err := s.Send(context.Background(), Message{Recipient: "98765", Template: TemplateLeadNew})
	if err == nil || !strings.Contains(err.Error(), "template not approved") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestWhatsAppSenderDisabledWithoutCredentials(t *testing.T) {
	s := NewWhatsAppSender(WhatsAppConfig{})
	if err := s.Send(context.Background(), Message{Recipient: "1"}); !errors.Is(err, ErrChannelDisabled) {
		t.Fatalf("expected ErrChannelDisabled, got %v", err)
	}
}

func TestDispatcherCountsOutcomes(t *testing.T) {
	metrics := newCounter()
	ok := &recordingSender{}
	bad := &recordingSender{err: errors.New("smtp down")}
	d := NewDispatcher(logging.NewLogger(), metrics).
		Register(ChannelInApp, ok).
		Register(ChannelEmail, bad)

	if !d.Notify(context.Background(), Message{Channel: ChannelInApp, Template: TemplateLeadNew}) {
		t.Fatalf("expected in-app delivery")
	}
	if d.Notify(context.Background(), Message{Channel: ChannelEmail, Template: TemplateLeadNew}) {
		t.Fatalf("expected email failure to report false")
	}
	if d.Notify(context.Background(), Message{Channel: ChannelWhatsApp, Template: TemplateLeadNew}) {
		t.Fatalf("expected unregistered channel to report false")
	}

	if v := testutil.ToFloat64(metrics.WithLabelValues("in_app", "sent")); v != 1 {
		t.Fatalf("expected 1 sent, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.WithLabelValues("email", "failed")); v != 1 {
		t.Fatalf("expected 1 failed, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.WithLabelValues("whatsapp", "skipped")); v != 1 {
		t.Fatalf("expected 1 skipped, got %v", v)
	}
}

func TestNotifyProfileFallsBackToEmail(t *testing.T) {
	inApp, wa, mail := &recordingSender{}, &recordingSender{err: errors.New("rate limited")}, &recordingSender{}
	d := NewDispatcher(logging.NewLogger(), nil).
		Register(ChannelInApp, inApp).
		Register(ChannelWhatsApp, wa).
		Register(ChannelEmail, mail)

	p := models.Profile{ID: "u1", Phone: "+91 1", Email: "u1@example.com"}
	if !d.NotifyProfile(context.Background(), p, TemplateBuyerUnlocked, "Speed Motors", "Pulsar") {
		t.Fatalf("expected delivery")
	}
	if len(inApp.sent) != 1 || len(wa.sent) != 1 || len(mail.sent) != 1 {
		t.Fatalf("expected in-app, whatsapp and email attempts, got %d/%d/%d", len(inApp.sent), len(wa.sent), len(mail.sent))
	}
	if mail.sent[0].Recipient != "u1@example.com" {
		t.Fatalf("unexpected email recipient %q", mail.sent[0].Recipient)
	}
}

func TestInAppSenderStoresRenderedNotice(t *testing.T) {
	mem := store.NewMemory()
	s := NewInAppSender(mem)
	err := s.Send(context.Background(), Message{
		Channel:   ChannelInApp,
		Recipient: "seller-1",
		Template:  TemplateLeadNew,
		Params:    []string{"Someone", "Honda Activa"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	notes := mem.Notifications()
	if len(notes) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notes))
	}
	n := notes[0]
	if n.UserID != "seller-1" || n.Title != "New Inquiry Received!" || n.Type != "lead_new" {
		t.Fatalf("unexpected notification %+v", n)
	}
	if n.Message != `Someone is interested in your listing "Honda Activa".` {
		t.Fatalf("unexpected message %q", n.Message)
	}
}

type fakeMailer struct{ to, subject, body string }

func (f *fakeMailer) SendMail(_ context.Context, to, subject, body string) error {
	f.to, f.subject, f.body = to, subject, body
	return nil
}

func TestEmailSenderEscapesParams(t *testing.T) {
	m := &fakeMailer{}
	s := NewEmailSender(m, true)
	if err := s.Send(context.Background(), Message{Recipient: "d@example.com", Template: TemplateLeadUnlocked, Params: []string{"<b>x</b>", "Bike"}}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.subject != "Lead Unlocked" || strings.Contains(m.body, "<b>x</b>") {
		t.Fatalf("unexpected mail %q / %q", m.subject, m.body)
	}
	if err := NewEmailSender(m, false).Send(context.Background(), Message{}); !errors.Is(err, ErrChannelDisabled) {
		t.Fatalf("expected disabled, got %v", err)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	if _, _, _, err := Render("nope", nil); err == nil {
		t.Fatalf("expected error")
	}
}
