package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"dopahiyaa/pkg/clients"
	"dopahiyaa/pkg/logging"
)

const DefaultWhatsAppAPIURL = "https://graph.facebook.com/v18.0"

type WhatsAppConfig struct {
	APIURL        string
	AccessToken   string
	PhoneNumberID string
	Timeout       time.Duration
	Logger        logging.Logger
}

func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

// WhatsAppSender sends approved template messages through the Cloud API.
type WhatsAppSender struct {
	cfg      WhatsAppConfig
	client   *http.Client
	executor failsafe.Executor[*http.Response]
}

func NewWhatsAppSender(cfg WhatsAppConfig) *WhatsAppSender {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultWhatsAppAPIURL
	}
	execCfg := clients.DefaultHTTPExecutorConfig()
	execCfg.Breaker = &clients.BreakerConfig{Name: "whatsapp", Logger: cfg.Logger}
	return &WhatsAppSender{
		cfg:      cfg,
		client:   clients.NewHTTPClient(cfg.Timeout),
		executor: clients.NewHTTPExecutor(execCfg),
	}
}

type waParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type waComponent struct {
	Type       string        `json:"type"`
	Parameters []waParameter `json:"parameters"`
}

type waTemplate struct {
	Name     string `json:"name"`
	Language struct {
		Code string `json:"code"`
	} `json:"language"`
	Components []waComponent `json:"components"`
}

type waRequest struct {
	MessagingProduct string     `json:"messaging_product"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Template         waTemplate `json:"template"`
}

func (s *WhatsAppSender) Send(ctx context.Context, msg Message) error {
	if !s.cfg.Enabled() {
		return ErrChannelDisabled
	}
	to := DigitsOnly(msg.Recipient)
	if to == "" {
		return fmt.Errorf("whatsapp: recipient %q has no digits", msg.Recipient)
	}

	req := waRequest{MessagingProduct: "whatsapp", To: to, Type: "template"}
	req.Template.Name = msg.Template
	req.Template.Language.Code = "en"
	params := make([]waParameter, 0, len(msg.Params))
	for _, p := range msg.Params {
		params = append(params, waParameter{Type: "text", Text: p})
	}
	req.Template.Components = []waComponent{{Type: "body", Parameters: params}}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("whatsapp: encode: %w", err)
	}
	url := strings.TrimRight(s.cfg.APIURL, "/") + "/" + s.cfg.PhoneNumberID + "/messages"

	resp, err := clients.ExecuteHTTP(ctx, s.executor, func() (*http.Response, error) {
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if reqErr != nil {
			return nil, reqErr
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)
		return s.client.Do(httpReq)
	})
	if err != nil {
		return fmt.Errorf("whatsapp: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
