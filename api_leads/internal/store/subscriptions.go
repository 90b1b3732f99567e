package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/models"
	"dopahiyaa/pkg/database"
)

const subscriptionColumns = `id, dealer_id, COALESCE(city, ''), COALESCE(region, ''), COALESCE(brand, ''),
	COALESCE(model, ''), COALESCE(lead_type, ''), COALESCE(date_range, ''), window_start, window_end,
	quota_total, quota_remaining, price_paid, idempotency_key, is_active, created_at`

func scanSubscription(row interface{ Scan(...interface{}) error }) (models.Subscription, error) {
	var s models.Subscription
	var start, end sql.NullTime
	err := row.Scan(&s.ID, &s.DealerID, &s.Filters.City, &s.Filters.Region, &s.Filters.Brand,
		&s.Filters.Model, &s.Filters.LeadType, &s.Filters.DateRange, &start, &end,
		&s.QuotaTotal, &s.QuotaRemaining, &s.PricePaid, &s.IdempotencyKey, &s.IsActive, &s.CreatedAt)
	if start.Valid {
		s.WindowStart = &start.Time
	}
	if end.Valid {
		s.WindowEnd = &end.Time
	}
	return s, err
}

func (p *Postgres) FindSubscriptionByKey(ctx context.Context, dealerID, key string) (models.Subscription, bool, error) {
	s, err := scanSubscription(p.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE dealer_id = $1 AND idempotency_key = $2`, dealerID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Subscription{}, false, nil
	}
	if err != nil {
		return models.Subscription{}, false, fmt.Errorf("find subscription: %w", err)
	}
	return s, true, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, s models.Subscription) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, dealer_id, city, region, brand, model, lead_type, date_range,
		                           window_start, window_end, quota_total, quota_remaining, price_paid,
		                           idempotency_key, is_active, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''),
		        NULLIF($8, ''), $9, $10, $11, $12, $13, $14, $15, $16)`,
		s.ID, s.DealerID, s.Filters.City, s.Filters.Region, s.Filters.Brand, s.Filters.Model,
		s.Filters.LeadType, s.Filters.DateRange, s.WindowStart, s.WindowEnd, s.QuotaTotal,
		s.QuotaRemaining, s.PricePaid, s.IdempotencyKey, s.IsActive, s.CreatedAt)
	if database.IsUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// AllocateLead runs the whole allocation in one transaction. The marker
// insert serialises concurrent attempts for the same lead; the quota
// decrement is conditional so concurrent leads cannot overdraw a
// subscription.
func (p *Postgres) AllocateLead(ctx context.Context, lead models.Lead, at time.Time, choose func([]models.Subscription) []models.Subscription, limit int) (models.AllocationResult, error) {
	result := models.AllocationResult{LeadID: lead.ID, Allocated: []models.AllocatedDealer{}, AttemptedAt: at}

	err := database.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO lead_allocation_markers (lead_id, attempted_at) VALUES ($1, $2)
			ON CONFLICT (lead_id) DO NOTHING`, lead.ID, at)
		if err != nil {
			return fmt.Errorf("claim allocation marker: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			result.AlreadyAttempted = true
			return loadExistingAllocation(ctx, tx, &result)
		}

		candidates, err := candidateSubscriptions(ctx, tx, lead)
		if err != nil {
			return err
		}

		for _, s := range choose(candidates) {
			if limit > 0 && len(result.Allocated) >= limit {
				break
			}
			var dealerID string
			err := tx.QueryRowContext(ctx, `
				UPDATE subscriptions
				SET quota_remaining = quota_remaining - 1,
				    is_active = quota_remaining - 1 > 0
				WHERE id = $1 AND is_active AND quota_remaining > 0
				RETURNING dealer_id`, s.ID).Scan(&dealerID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("decrement quota: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO lead_allocations (lead_id, subscription_id, dealer_id, allocated_at)
				VALUES ($1, $2, $3, $4)`, lead.ID, s.ID, dealerID, at); err != nil {
				return fmt.Errorf("insert allocation: %w", err)
			}
			result.Allocated = append(result.Allocated, models.AllocatedDealer{DealerID: dealerID, SubscriptionID: s.ID})
		}

		if len(result.Allocated) > 0 {
			if _, err := tx.ExecContext(ctx, `
				UPDATE leads SET status = $2, updated_at = NOW()
				WHERE id = $1 AND status = $3`,
				lead.ID, string(models.LeadStatusAllocated), string(models.LeadStatusNew)); err != nil {
				return fmt.Errorf("mark lead allocated: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return models.AllocationResult{}, err
	}
	return result, nil
}

func loadExistingAllocation(ctx context.Context, tx *sql.Tx, result *models.AllocationResult) error {
	if err := tx.QueryRowContext(ctx, `
		SELECT attempted_at FROM lead_allocation_markers WHERE lead_id = $1`, result.LeadID).Scan(&result.AttemptedAt); err != nil {
		return fmt.Errorf("load allocation marker: %w", err)
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT dealer_id, subscription_id FROM lead_allocations
		WHERE lead_id = $1 ORDER BY allocated_at, subscription_id`, result.LeadID)
	if err != nil {
		return fmt.Errorf("load allocations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a models.AllocatedDealer
		if err := rows.Scan(&a.DealerID, &a.SubscriptionID); err != nil {
			return err
		}
		result.Allocated = append(result.Allocated, a)
	}
	return rows.Err()
}

// candidateSubscriptions pre-filters in SQL; the caller applies the exact
// matching and ordering rules.
func candidateSubscriptions(ctx context.Context, tx *sql.Tx, lead models.Lead) ([]models.Subscription, error) {
	a := lead.Attributes
	rows, err := tx.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE is_active AND quota_remaining > 0
		  AND (city IS NULL OR city = $1)
		  AND (region IS NULL OR region = $2)
		  AND (brand IS NULL OR brand = $3)
		  AND (model IS NULL OR model = $4)
		  AND (lead_type IS NULL OR lead_type = $5)
		  AND (window_start IS NULL OR window_start <= $6)
		  AND (window_end IS NULL OR window_end > $6)
		ORDER BY created_at, id`,
		a.City, a.Region, a.Brand, a.Model, a.LeadType, lead.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("query candidate subscriptions: %w", err)
	}
	defer rows.Close()

	var out []models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
