package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"dopahiyaa/api_leads/internal/credits"
	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/models"
	"dopahiyaa/pkg/logging"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
)

var (
	ErrWebhookDisabled  = errors.New("razorpay webhook secret not configured")
	ErrInvalidSignature = errors.New("invalid razorpay signature")
)

type Store interface {
	// ClaimPayment reports false when the order is already processing or credited.
	ClaimPayment(ctx context.Context, tx models.PaymentTransaction) (bool, error)
	CompletePayment(ctx context.Context, orderID, status string) error
	RecordReconciliation(ctx context.Context, ev models.ReconciliationEvent) error
}

type Crediter interface {
	Credit(ctx context.Context, dealerID string, amount int64, reason, referenceID string) (credits.Result, error)
}

type Outcome string

const (
	OutcomeCredited  Outcome = "credited"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

type Result struct {
	Outcome    Outcome `json:"outcome"`
	Event      string  `json:"event"`
	OrderID    string  `json:"orderId,omitempty"`
	DealerID   string  `json:"dealerId,omitempty"`
	Credits    int64   `json:"credits,omitempty"`
	NewBalance int64   `json:"newBalance,omitempty"`
}

// Processor turns verified Razorpay webhooks into ledger credits, at most
// once per order id.
type Processor struct {
	store      Store
	ledger     Crediter
	secret     []byte
	logger     logging.Logger
	onCredited func(ctx context.Context, res Result)
}

func NewProcessor(store Store, ledger Crediter, secret string, logger logging.Logger) *Processor {
	return &Processor{store: store, ledger: ledger, secret: []byte(secret), logger: logger}
}

// OnCredited registers a callback run after a successful top-up.
func (p *Processor) OnCredited(fn func(ctx context.Context, res Result)) *Processor {
	p.onCredited = fn
	return p
}

func (p *Processor) Enabled() bool { return len(p.secret) > 0 }

// Verify checks the X-Razorpay-Signature header: hex HMAC-SHA256 of the raw body.
func (p *Processor) Verify(body []byte, signature string) bool {
	if !p.Enabled() || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(body)
	expected := mac.Sum(nil)
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// Sign is the inverse of Verify, used by tooling and tests.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type webhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity orderEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
	Notes   notes  `json:"notes"`
}

type orderEntity struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Notes  notes  `json:"notes"`
}

// notes values arrive as strings or numbers depending on how the order was created.
type notes struct {
	DealerID string    `json:"dealer_id"`
	Credits  flexInt64 `json:"credits"`
}

type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
		if len(b) == 0 {
			*f = 0
			return nil
		}
	}
	if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
		*f = flexInt64(n)
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("credits: %w", err)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	if v != math.Trunc(v) || v >= math.MaxInt64 || v < math.MinInt64 {
		return fmt.Errorf("credits: %s is not a whole number of credits", b)
	}
	*f = flexInt64(v)
	return nil
}

// Handle verifies and applies one webhook delivery. Redeliveries of an order
// that was already credited return OutcomeDuplicate without touching the ledger.
func (p *Processor) Handle(ctx context.Context, body []byte, signature string) (Result, error) {
	if !p.Enabled() {
		return Result{}, ErrWebhookDisabled
	}
	if !p.Verify(body, signature) {
		return Result{}, ErrInvalidSignature
	}

	var wh webhookPayload
	if err := json.Unmarshal(body, &wh); err != nil {
		return Result{}, errs.Invalid("malformed webhook payload: %v", err)
	}
	res := Result{Event: wh.Event, Outcome: OutcomeIgnored}
	if wh.Event != EventPaymentCaptured && wh.Event != EventOrderPaid {
		return res, nil
	}

	tx, err := transactionFrom(wh)
	if err != nil {
		return res, err
	}
	res.OrderID, res.DealerID, res.Credits = tx.OrderID, tx.DealerID, tx.Credits

	log := p.logger.WithFields(logging.Fields{
		"order_id":  tx.OrderID,
		"dealer_id": tx.DealerID,
		"credits":   tx.Credits,
		"event":     wh.Event,
	})

	claimed, err := p.store.ClaimPayment(ctx, tx)
	if err != nil {
		return res, errs.ErrStoreUnavailable.Wrap(err)
	}
	if !claimed {
		res.Outcome = OutcomeDuplicate
		log.Info("Razorpay delivery for an order already handled")
		return res, nil
	}

	credit, err := p.ledger.Credit(ctx, tx.DealerID, tx.Credits, credits.ReasonPaymentTopUp, tx.OrderID)
	if err != nil {
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if markErr := p.store.CompletePayment(markCtx, tx.OrderID, models.PaymentFailed); markErr != nil {
			// The claim stays processing and every redelivery is dropped as a
			// duplicate, so the top-up needs a manual credit.
			log.WithError(markErr).Error("Failed to release payment claim after credit failure, recording reconciliation event")
			ev := models.ReconciliationEvent{
				ID:           uuid.NewString(),
				DealerID:     tx.DealerID,
				Amount:       tx.Credits,
				Reason:       credits.ReasonPaymentTopUp,
				ReferenceID:  tx.OrderID,
				ErrorMessage: fmt.Sprintf("credit: %v; release claim: %v", err, markErr),
				Status:       models.ReconciliationOpen,
				CreatedAt:    time.Now().UTC(),
			}
			if rerr := p.store.RecordReconciliation(markCtx, ev); rerr != nil {
				log.WithError(rerr).Error("Failed to store reconciliation event")
			}
		}
		log.WithError(err).Error("Credit top-up failed")
		return res, err
	}
	if err := p.store.CompletePayment(ctx, tx.OrderID, models.PaymentCredited); err != nil {
		// Credit applied; the row stays processing so redeliveries are ignored.
		log.WithError(err).Error("Failed to mark payment credited")
	}

	res.Outcome = OutcomeCredited
	res.NewBalance = credit.NewBalance
	log.WithField("new_balance", credit.NewBalance).Info("Credits topped up")
	if p.onCredited != nil {
		p.onCredited(ctx, res)
	}
	return res, nil
}

func transactionFrom(wh webhookPayload) (models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	var n notes
	if pay := wh.Payload.Payment; pay != nil {
		tx.PaymentID = pay.Entity.ID
		tx.OrderID = pay.Entity.OrderID
		tx.AmountPaise = pay.Entity.Amount
		n = pay.Entity.Notes
	}
	if ord := wh.Payload.Order; ord != nil {
		if tx.OrderID == "" {
			tx.OrderID = ord.Entity.ID
		}
		if tx.AmountPaise == 0 {
			tx.AmountPaise = ord.Entity.Amount
		}
		if n.DealerID == "" {
			n.DealerID = ord.Entity.Notes.DealerID
		}
		if n.Credits <= 0 {
			n.Credits = ord.Entity.Notes.Credits
		}
	}

	tx.DealerID = strings.TrimSpace(n.DealerID)
	tx.Credits = int64(n.Credits)
	switch {
	case tx.OrderID == "":
		return tx, errs.Invalid("webhook has no order id")
	case tx.DealerID == "":
		return tx, errs.Invalid("order notes carry no dealer_id")
	case tx.Credits <= 0:
		return tx, errs.Invalid("order notes carry no positive credits")
	}
	tx.ID = uuid.NewString()
	tx.Status = models.PaymentProcessing
	return tx, nil
}
