package allocation

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/prometheus/client_golang/prometheus"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/models"
	"dopahiyaa/pkg/logging"
)

const (
	SourceNoMatch    = "allocation.no_match"
	SourceStoreError = "allocation.store_error"
)

type Store interface {
	// AllocateLead claims the per-lead allocation marker, then walks the
	// subscriptions returned by choose, decrementing each quota with a
	// conditional write and recording an allocation, until limit dealers
	// (0 means no limit) have been allocated. If the marker already exists
	// it returns the lead's existing allocations with AlreadyAttempted set.
	AllocateLead(ctx context.Context, lead models.Lead, at time.Time, choose func([]models.Subscription) []models.Subscription, limit int) (models.AllocationResult, error)
	RecordAllocationFailure(ctx context.Context, f models.AllocationFailure) error
}

type Matcher struct {
	store         Store
	maxRecipients int
	retry         retrypolicy.RetryPolicy[models.AllocationResult]
	logger        logging.Logger
	metrics       *prometheus.CounterVec
	now           func() time.Time
}

// NewMatcher builds a matcher. maxRecipients <= 0 means every matching
// subscription receives the lead.
func NewMatcher(store Store, maxRecipients int, logger logging.Logger, metrics *prometheus.CounterVec) *Matcher {
	retry := retrypolicy.NewBuilder[models.AllocationResult]().
		HandleIf(func(_ models.AllocationResult, err error) bool { return isTransient(err) }).
		WithMaxRetries(1).
		WithDelay(50 * time.Millisecond).
		ReturnLastFailure().
		Build()
	return &Matcher{
		store:         store,
		maxRecipients: maxRecipients,
		retry:         retry,
		logger:        logger,
		metrics:       metrics,
		now:           time.Now,
	}
}

// Allocate assigns lead to matching subscriptions. Repeated calls for the
// same lead never allocate twice.
func (m *Matcher) Allocate(ctx context.Context, lead models.Lead) (models.AllocationResult, error) {
	fields := logging.Fields{"lead_id": lead.ID}
	choose := func(candidates []models.Subscription) []models.Subscription {
		return Eligible(lead, candidates)
	}

	res, err := failsafe.With(m.retry).WithContext(ctx).Get(func() (models.AllocationResult, error) {
		return m.store.AllocateLead(ctx, lead, m.now().UTC(), choose, m.maxRecipients)
	})
	if err != nil {
		m.observe("error")
		m.recordFailure(ctx, lead, SourceStoreError, err.Error())
		m.logger.WithFields(fields).WithError(err).Error("Lead allocation failed")
		return models.AllocationResult{}, err
	}

	switch {
	case res.AlreadyAttempted:
		m.observe("already_attempted")
		m.logger.WithFields(fields).Debug("Lead allocation already attempted")
	case len(res.Allocated) == 0:
		m.observe("no_match")
		m.recordFailure(ctx, lead, SourceNoMatch, "")
		m.logger.WithFields(fields).Info("No subscription matched lead")
	default:
		m.observe("allocated")
		m.logger.WithFields(fields).WithField("recipients", len(res.Allocated)).Info("Lead allocated")
	}
	return res, nil
}

func (m *Matcher) recordFailure(ctx context.Context, lead models.Lead, source, msg string) {
	f := models.AllocationFailure{LeadID: lead.ID, Source: source, Attributes: lead.Attributes, ErrorMessage: msg}
	if err := m.store.RecordAllocationFailure(context.WithoutCancel(ctx), f); err != nil {
		m.logger.WithField("lead_id", lead.ID).WithError(err).Warn("Failed to record allocation failure")
	}
}

func (m *Matcher) observe(outcome string) {
	if m.metrics != nil {
		m.metrics.WithLabelValues(outcome).Inc()
	}
}

// Eligible returns the candidates that match lead and still have quota,
// most specific first, then oldest first.
func Eligible(lead models.Lead, candidates []models.Subscription) []models.Subscription {
	out := make([]models.Subscription, 0, len(candidates))
	for _, s := range candidates {
		if s.IsActive && s.QuotaRemaining > 0 && Matches(s, lead) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Filters.Specificity(), out[j].Filters.Specificity()
		if si != sj {
			return si > sj
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Matches reports whether every dimension the subscription sets equals the
// lead's attribute. Unset dimensions match anything.
func Matches(s models.Subscription, lead models.Lead) bool {
	f, a := s.Filters, lead.Attributes
	if !dimensionMatches(f.City, a.City) ||
		!dimensionMatches(f.Region, a.Region) ||
		!dimensionMatches(f.Brand, a.Brand) ||
		!dimensionMatches(f.Model, a.Model) ||
		!dimensionMatches(f.LeadType, a.LeadType) {
		return false
	}
	if s.WindowStart != nil && lead.CreatedAt.Before(*s.WindowStart) {
		return false
	}
	if s.WindowEnd != nil && !lead.CreatedAt.Before(*s.WindowEnd) {
		return false
	}
	return true
}

func dimensionMatches(want, got string) bool {
	return want == "" || want == got
}

func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if e, ok := errs.As(err); ok {
		return e.Kind == errs.KindDownstream
	}
	return true
}
