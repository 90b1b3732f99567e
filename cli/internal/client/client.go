package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/shopspring/decimal"

	"dopahiyaa/pkg/clients"
)

// Client talks to the leads service API.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	executor failsafe.Executor[*http.Response]
}

func New(endpoint, token string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		token:    token,
		http:     clients.NewHTTPClient(timeout),
		executor: clients.NewHTTPExecutor(clients.DefaultHTTPExecutorConfig()),
	}
}

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int            `json:"-"`
	Code    string         `json:"code"`
	Message string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

type QuoteRequest struct {
	UseFilters *bool    `json:"useFilters,omitempty"`
	City       string   `json:"city,omitempty"`
	Region     string   `json:"region,omitempty"`
	Brand      string   `json:"brand,omitempty"`
	Model      string   `json:"model,omitempty"`
	LeadType   string   `json:"leadType,omitempty"`
	DateRange  string   `json:"dateRange,omitempty"`
	StartDate  string   `json:"startDate,omitempty"`
	EndDate    string   `json:"endDate,omitempty"`
	Quantity   *float64 `json:"quantity,omitempty"`
}

type Adjustment struct {
	RuleName       string          `json:"ruleName"`
	ConditionType  string          `json:"conditionType"`
	AdjustmentType string          `json:"adjustmentType"`
	Amount         decimal.Decimal `json:"amount"`
}

type Quote struct {
	BasePrice    decimal.Decimal `json:"basePrice"`
	HasFilters   bool            `json:"hasFilters"`
	PerLeadPrice decimal.Decimal `json:"perLeadPrice"`
	Quantity     int             `json:"quantity"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Adjustments  []Adjustment    `json:"adjustments"`
	BulkDiscount decimal.Decimal `json:"bulkDiscount"`
	BulkTierID   int64           `json:"bulkTierId,omitempty"`
	TotalPrice   int64           `json:"totalPrice"`
	MinQuantity  int             `json:"minQuantity"`
}

type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type UnlockResult struct {
	Success          bool      `json:"success"`
	LeadID           string    `json:"leadId"`
	CreditsRemaining int64     `json:"creditsRemaining"`
	Cost             int64     `json:"cost"`
	AlreadyUnlocked  bool      `json:"alreadyUnlocked"`
	UnlockedAt       time.Time `json:"unlockedAt"`
	Contact          *Contact  `json:"contact,omitempty"`
}

type Reconciliation struct {
	ID             string     `json:"id"`
	DealerID       string     `json:"dealerId"`
	Amount         int64      `json:"amount"`
	Reason         string     `json:"reason"`
	ReferenceID    string     `json:"referenceId,omitempty"`
	ErrorMessage   string     `json:"errorMessage"`
	Status         string     `json:"status"`
	ResolutionNote string     `json:"resolutionNote,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

func (c *Client) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	var q Quote
	err := c.do(ctx, http.MethodPost, "/api/v1/pricing/quote", req, &q)
	return q, err
}

func (c *Client) Unlock(ctx context.Context, leadID string) (UnlockResult, error) {
	var res UnlockResult
	err := c.do(ctx, http.MethodPost, "/api/v1/leads/"+url.PathEscape(leadID)+"/unlock", nil, &res)
	return res, err
}

func (c *Client) ListReconciliations(ctx context.Context, status string, limit int) ([]Reconciliation, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/admin/reconciliations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Reconciliations []Reconciliation `json:"reconciliations"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Reconciliations, err
}

func (c *Client) ResolveReconciliation(ctx context.Context, id, note string) (Reconciliation, error) {
	var out struct {
		Reconciliation Reconciliation `json:"reconciliation"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/admin/reconciliations/"+url.PathEscape(id)+"/resolve", map[string]string{"note": note}, &out)
	return out.Reconciliation, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	resp, err := clients.ExecuteHTTP(ctx, c.executor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		return c.http.Do(req)
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
