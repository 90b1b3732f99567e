package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/models"
	"dopahiyaa/pkg/database"
	"dopahiyaa/pkg/logging"
)

const (
	ReasonLeadUnlock     = "lead_unlock"
	ReasonFilterPack     = "filter_pack_purchase"
	ReasonRefund         = "refund"
	ReasonPaymentTopUp   = "payment_topup"
	DefaultMaxAttempts   = 3
	compensationDeadline = 10 * time.Second
)

// errBalanceMoved is returned by an attempt whose compare-and-swap lost.
var errBalanceMoved = errors.New("balance changed since read")

// Store is the balance storage the ledger needs.
type Store interface {
	GetBalance(ctx context.Context, dealerID string) (int64, error)
	// CompareAndSwapBalance sets the balance to next only if it still equals
	// expected, recording entry in the same write. It reports whether the
	// swap happened.
	CompareAndSwapBalance(ctx context.Context, dealerID string, expected, next int64, entry models.LedgerEntry) (bool, error)
	RecordReconciliation(ctx context.Context, ev models.ReconciliationEvent) error
}

type Result struct {
	NewBalance int64  `json:"newBalance"`
	EntryID    string `json:"entryId,omitempty"`
}

// RollbackError reports a debit whose follow-up step failed. Compensated is
// false when the refund also failed and a reconciliation record was written.
type RollbackError struct {
	Cause       error
	Compensated bool
}

func (e *RollbackError) Error() string {
	if e.Compensated {
		return fmt.Sprintf("debit rolled back: %v", e.Cause)
	}
	return fmt.Sprintf("debit rollback failed, reconciliation required: %v", e.Cause)
}

func (e *RollbackError) Unwrap() error { return e.Cause }

type Config struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

type Ledger struct {
	store   Store
	retry   retrypolicy.RetryPolicy[Result]
	logger  logging.Logger
	metrics *prometheus.CounterVec
	now     func() time.Time
}

func NewLedger(store Store, cfg Config, logger logging.Logger, metrics *prometheus.CounterVec) *Ledger {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Millisecond
	}
	retry := retrypolicy.NewBuilder[Result]().
		HandleIf(func(_ Result, err error) bool {
			return errors.Is(err, errBalanceMoved) || database.IsSerializationFailure(err)
		}).
		WithMaxRetries(cfg.MaxAttempts-1).
		WithDelay(cfg.RetryDelay).
		WithJitterFactor(0.5).
		ReturnLastFailure().
		Build()
	return &Ledger{store: store, retry: retry, logger: logger, metrics: metrics, now: time.Now}
}

func (l *Ledger) Balance(ctx context.Context, dealerID string) (int64, error) {
	return l.store.GetBalance(ctx, dealerID)
}

// Debit removes amount from the dealer's balance. It never lets the balance
// go negative and retries lost compare-and-swaps a bounded number of times.
func (l *Ledger) Debit(ctx context.Context, dealerID string, amount int64, reason, referenceID string) (Result, error) {
	if amount < 0 {
		return Result{}, errs.Invalid("debit amount must not be negative")
	}
	res, err := l.apply(ctx, dealerID, -amount, reason, referenceID)
	l.observe("debit", err)
	return res, err
}

// Credit adds amount to the dealer's balance under the same discipline.
func (l *Ledger) Credit(ctx context.Context, dealerID string, amount int64, reason, referenceID string) (Result, error) {
	if amount < 0 {
		return Result{}, errs.Invalid("credit amount must not be negative")
	}
	res, err := l.apply(ctx, dealerID, amount, reason, referenceID)
	l.observe("credit", err)
	return res, err
}

// DebitWithRollback debits, then runs record. If record fails the amount is
// credited back once; if that also fails a reconciliation event is stored.
// Either way the error returned wraps record's error.
func (l *Ledger) DebitWithRollback(ctx context.Context, dealerID string, amount int64, reason, referenceID string, record func(ctx context.Context) error) (Result, error) {
	res, err := l.Debit(ctx, dealerID, amount, reason, referenceID)
	if err != nil {
		return Result{}, err
	}
	recordErr := record(ctx)
	if recordErr == nil {
		return res, nil
	}
	if amount == 0 {
		return Result{}, &RollbackError{Cause: recordErr, Compensated: true}
	}

	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationDeadline)
	defer cancel()

	fields := logging.Fields{
		"dealer_id":    dealerID,
		"amount":       amount,
		"reason":       reason,
		"reference_id": referenceID,
	}
	if _, err := l.Credit(compCtx, dealerID, amount, ReasonRefund, referenceID); err != nil {
		l.observe("compensation", err)
		l.logger.WithFields(fields).WithError(err).Error("Compensating credit failed, recording reconciliation event")
		ev := models.ReconciliationEvent{
			ID:           uuid.NewString(),
			DealerID:     dealerID,
			Amount:       amount,
			Reason:       reason,
			ReferenceID:  referenceID,
			ErrorMessage: fmt.Sprintf("record: %v; refund: %v", recordErr, err),
			Status:       models.ReconciliationOpen,
			CreatedAt:    l.now().UTC(),
		}
		if rerr := l.store.RecordReconciliation(compCtx, ev); rerr != nil {
			l.logger.WithFields(fields).WithError(rerr).Error("Failed to store reconciliation event")
		}
		return Result{}, &RollbackError{Cause: recordErr, Compensated: false}
	}
	l.observe("compensation", nil)
	l.logger.WithFields(fields).WithError(recordErr).Warn("Debit compensated after failed follow-up write")
	return Result{}, &RollbackError{Cause: recordErr, Compensated: true}
}

func (l *Ledger) apply(ctx context.Context, dealerID string, delta int64, reason, referenceID string) (Result, error) {
	res, err := failsafe.With(l.retry).WithContext(ctx).Get(func() (Result, error) {
		balance, err := l.store.GetBalance(ctx, dealerID)
		if err != nil {
			return Result{}, err
		}
		if delta == 0 {
			return Result{NewBalance: balance}, nil
		}
		next := balance + delta
		if next < 0 {
			return Result{}, errs.InsufficientCredits(balance, -delta)
		}
		entry := models.LedgerEntry{
			ID:           uuid.NewString(),
			DealerID:     dealerID,
			Amount:       delta,
			BalanceAfter: next,
			Reason:       reason,
			ReferenceID:  referenceID,
			CreatedAt:    l.now().UTC(),
		}
		swapped, err := l.store.CompareAndSwapBalance(ctx, dealerID, balance, next, entry)
		if err != nil {
			return Result{}, err
		}
		if !swapped {
			return Result{}, errBalanceMoved
		}
		return Result{NewBalance: next, EntryID: entry.ID}, nil
	})
	if errors.Is(err, errBalanceMoved) || database.IsSerializationFailure(err) {
		return Result{}, errs.ErrConcurrentUpdateConflict.Wrap(err)
	}
	return res, err
}

func (l *Ledger) observe(op string, err error) {
	if l.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		if e, ok := errs.As(err); ok {
			status = strings.ToLower(e.Code)
		} else {
			status = "error"
		}
	}
	l.metrics.WithLabelValues(op, status).Inc()
}
