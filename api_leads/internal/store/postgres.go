package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/models"
	"dopahiyaa/pkg/database"
	"dopahiyaa/pkg/logging"
)

// Postgres is the Ledger Store backed by lib/pq. Multi-row operations run in
// one transaction; balance and quota changes are conditional UPDATEs.
type Postgres struct {
	db     *sql.DB
	logger logging.Logger
}

func NewPostgres(db *sql.DB, logger logging.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

func (p *Postgres) DB() *sql.DB { return p.db }

// Leads and listings.

func (p *Postgres) CreateLead(ctx context.Context, lead models.Lead) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO leads (id, listing_id, buyer_id, message, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		lead.ID, lead.ListingID, lead.BuyerID, lead.Message, string(lead.Status), lead.CreatedAt)
	switch {
	case err == nil:
		return nil
	case database.IsUniqueViolation(err):
		return errs.ErrDuplicateInquiry
	case database.IsForeignKeyViolation(err) && strings.Contains(database.ConstraintName(err), "listing"):
		return errs.ErrListingNotFound
	case database.IsForeignKeyViolation(err):
		return errs.Invalid("unknown buyer")
	default:
		return fmt.Errorf("insert lead: %w", err)
	}
}

func (p *Postgres) GetLead(ctx context.Context, id string) (models.Lead, error) {
	var l models.Lead
	var status string
	err := p.db.QueryRowContext(ctx, `
		SELECT id, listing_id, buyer_id, message, status,
		       COALESCE(city, ''), COALESCE(region, ''), COALESCE(brand, ''),
		       COALESCE(model, ''), COALESCE(lead_type, ''), created_at
		FROM leads WHERE id = $1`, id).Scan(
		&l.ID, &l.ListingID, &l.BuyerID, &l.Message, &status,
		&l.Attributes.City, &l.Attributes.Region, &l.Attributes.Brand,
		&l.Attributes.Model, &l.Attributes.LeadType, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Lead{}, errs.ErrLeadNotFound
	}
	if err != nil {
		return models.Lead{}, fmt.Errorf("get lead: %w", err)
	}
	l.Status = models.LeadStatus(status)
	return l, nil
}

// FreezeLeadAttributes writes the derived attributes once; later calls are no-ops.
func (p *Postgres) FreezeLeadAttributes(ctx context.Context, leadID string, a models.LeadAttributes) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE leads
		SET city = NULLIF($2, ''), region = NULLIF($3, ''), brand = NULLIF($4, ''),
		    model = NULLIF($5, ''), lead_type = NULLIF($6, ''), updated_at = NOW()
		WHERE id = $1 AND city IS NULL AND brand IS NULL AND lead_type IS NULL`,
		leadID, a.City, a.Region, a.Brand, a.Model, a.LeadType)
	if err != nil {
		return fmt.Errorf("freeze lead attributes: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateLeadStatus(ctx context.Context, leadID string, from, to models.LeadStatus) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE leads SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`, leadID, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("update lead status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update lead status: %w", err)
	}
	return n == 1, nil
}

func (p *Postgres) GetListing(ctx context.Context, id string) (models.Listing, error) {
	var l models.Listing
	err := p.db.QueryRowContext(ctx, `
		SELECT id, seller_id, title, city, make, model, COALESCE(specs->>'lead_type', '')
		FROM listings WHERE id = $1`, id).Scan(
		&l.ID, &l.SellerID, &l.Title, &l.City, &l.Make, &l.Model, &l.LeadType)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Listing{}, errs.ErrListingNotFound
	}
	if err != nil {
		return models.Listing{}, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (p *Postgres) ResolveRegion(ctx context.Context, city string) (string, error) {
	if city == "" {
		return "", nil
	}
	var region string
	err := p.db.QueryRowContext(ctx, `
		SELECT region FROM city_region_map WHERE city = $1 AND is_active`, city).Scan(&region)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve region: %w", err)
	}
	return region, nil
}

func (p *Postgres) GetProfile(ctx context.Context, id string) (models.Profile, error) {
	var pr models.Profile
	err := p.db.QueryRowContext(ctx, `
		SELECT p.id, p.full_name, p.email, p.phone, p.role, COALESCE(d.business_name, '')
		FROM profiles p LEFT JOIN dealers d ON d.profile_id = p.id
		WHERE p.id = $1`, id).Scan(
		&pr.ID, &pr.FullName, &pr.Email, &pr.Phone, &pr.Role, &pr.BusinessName)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, errs.ErrNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return pr, nil
}

func (p *Postgres) InsertNotification(ctx context.Context, n models.Notification) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type)
		VALUES ($1, $2, $3, $4, $5)`, uuid.NewString(), n.UserID, n.Title, n.Message, n.Type)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Unlocks.

func (p *Postgres) FindUnlock(ctx context.Context, leadID, dealerID string) (models.UnlockEvent, bool, error) {
	ev := models.UnlockEvent{LeadID: leadID, DealerID: dealerID}
	err := p.db.QueryRowContext(ctx, `
		SELECT cost_credits, unlocked_at FROM unlock_events
		WHERE lead_id = $1 AND dealer_id = $2`, leadID, dealerID).Scan(&ev.CostCredits, &ev.UnlockedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UnlockEvent{}, false, nil
	}
	if err != nil {
		return models.UnlockEvent{}, false, fmt.Errorf("find unlock: %w", err)
	}
	return ev, true, nil
}

func (p *Postgres) InsertUnlock(ctx context.Context, ev models.UnlockEvent) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO unlock_events (lead_id, dealer_id, cost_credits, unlocked_at)
		VALUES ($1, $2, $3, $4)`, ev.LeadID, ev.DealerID, ev.CostCredits, ev.UnlockedAt)
	if database.IsUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert unlock: %w", err)
	}
	return nil
}

func (p *Postgres) UnlockPrice(ctx context.Context) (int64, bool, error) {
	var raw string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM platform_config WHERE key = $1`, unlockPriceKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read unlock price: %w", err)
	}
	return parseUnlockPrice(raw)
}

// ListDealerLeads pages through leads allocated to or unlocked by the
// dealer. total is the match count before LIMIT/OFFSET.
func (p *Postgres) ListDealerLeads(ctx context.Context, q models.DealerLeadQuery) ([]models.DealerLead, int, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT l.id, l.listing_id, l.buyer_id, l.message, l.status,
		       COALESCE(l.city, ''), COALESCE(l.region, ''), COALESCE(l.brand, ''),
		       COALESCE(l.model, ''), COALESCE(l.lead_type, ''), l.created_at,
		       COALESCE(li.title, ''), a.allocated_at, u.unlocked_at,
		       COUNT(*) OVER ()
		FROM leads l
		LEFT JOIN (
			SELECT lead_id, MIN(allocated_at) AS allocated_at
			FROM lead_allocations WHERE dealer_id = $1 GROUP BY lead_id
		) a ON a.lead_id = l.id
		LEFT JOIN unlock_events u ON u.lead_id = l.id AND u.dealer_id = $1
		LEFT JOIN listings li ON li.id = l.listing_id
		WHERE (a.lead_id IS NOT NULL OR u.lead_id IS NOT NULL)
		  AND ($2::text = '' OR l.status = $2)
		  AND (NOT $3::boolean OR u.lead_id IS NOT NULL)
		ORDER BY l.created_at DESC, l.id
		LIMIT $4 OFFSET $5`,
		q.DealerID, string(q.Status), q.UnlockedOnly, limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list dealer leads: %w", err)
	}
	defer rows.Close()

	out := []models.DealerLead{}
	total := 0
	for rows.Next() {
		var d models.DealerLead
		var status string
		var allocatedAt, unlockedAt sql.NullTime
		if err := rows.Scan(&d.Lead.ID, &d.Lead.ListingID, &d.Lead.BuyerID, &d.Lead.Message, &status,
			&d.Lead.Attributes.City, &d.Lead.Attributes.Region, &d.Lead.Attributes.Brand,
			&d.Lead.Attributes.Model, &d.Lead.Attributes.LeadType, &d.Lead.CreatedAt,
			&d.ListingTitle, &allocatedAt, &unlockedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("scan dealer lead: %w", err)
		}
		d.Lead.Status = models.LeadStatus(status)
		if allocatedAt.Valid {
			d.AllocatedAt = &allocatedAt.Time
		}
		if unlockedAt.Valid {
			d.UnlockedAt = &unlockedAt.Time
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list dealer leads: %w", err)
	}
	if len(out) == 0 && q.Offset > 0 {
		// Past the last page the window count is lost; count separately.
		if err := p.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM leads l
			WHERE (EXISTS (SELECT 1 FROM lead_allocations a WHERE a.lead_id = l.id AND a.dealer_id = $1)
			       OR EXISTS (SELECT 1 FROM unlock_events u WHERE u.lead_id = l.id AND u.dealer_id = $1))
			  AND ($2::text = '' OR l.status = $2)
			  AND (NOT $3::boolean OR EXISTS (SELECT 1 FROM unlock_events u WHERE u.lead_id = l.id AND u.dealer_id = $1))`,
			q.DealerID, string(q.Status), q.UnlockedOnly).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count dealer leads: %w", err)
		}
	}
	return out, total, nil
}

// Ledger.

func (p *Postgres) GetBalance(ctx context.Context, dealerID string) (int64, error) {
	var balance int64
	err := p.db.QueryRowContext(ctx, `SELECT credits_balance FROM dealers WHERE profile_id = $1`, dealerID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errs.ErrDealerNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func (p *Postgres) CompareAndSwapBalance(ctx context.Context, dealerID string, expected, next int64, entry models.LedgerEntry) (bool, error) {
	swapped := false
	err := database.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE dealers SET credits_balance = $3, updated_at = NOW()
			WHERE profile_id = $1 AND credits_balance = $2`, dealerID, expected, next)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO credit_ledger_entries (id, dealer_id, amount, balance_after, reason, reference_id, created_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
			entry.ID, dealerID, entry.Amount, entry.BalanceAfter, entry.Reason, entry.ReferenceID, entry.CreatedAt); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if err != nil {
		if database.IsCheckViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("swap balance: %w", err)
	}
	return swapped, nil
}

func (p *Postgres) RecordReconciliation(ctx context.Context, ev models.ReconciliationEvent) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO reconciliation_events (id, dealer_id, amount, reason, reference_id, error_message, status, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`,
		ev.ID, ev.DealerID, ev.Amount, ev.Reason, ev.ReferenceID, ev.ErrorMessage, ev.Status, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reconciliation event: %w", err)
	}
	return nil
}

const reconciliationColumns = `id, dealer_id, amount, reason, COALESCE(reference_id, ''), error_message,
	status, COALESCE(resolution_note, ''), created_at, resolved_at`

func scanReconciliation(row interface{ Scan(...interface{}) error }) (models.ReconciliationEvent, error) {
	var ev models.ReconciliationEvent
	var resolvedAt sql.NullTime
	err := row.Scan(&ev.ID, &ev.DealerID, &ev.Amount, &ev.Reason, &ev.ReferenceID, &ev.ErrorMessage,
		&ev.Status, &ev.ResolutionNote, &ev.CreatedAt, &resolvedAt)
	if resolvedAt.Valid {
		ev.ResolvedAt = &resolvedAt.Time
	}
	return ev, err
}

func (p *Postgres) ListReconciliations(ctx context.Context, status string, limit int) ([]models.ReconciliationEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+reconciliationColumns+`
		FROM reconciliation_events
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at
		LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list reconciliations: %w", err)
	}
	defer rows.Close()

	var out []models.ReconciliationEvent
	for rows.Next() {
		ev, err := scanReconciliation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reconciliation: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *Postgres) ResolveReconciliation(ctx context.Context, id, note string, at time.Time) (models.ReconciliationEvent, error) {
	ev, err := scanReconciliation(p.db.QueryRowContext(ctx, `
		UPDATE reconciliation_events
		SET status = $2, resolution_note = $3, resolved_at = $4
		WHERE id = $1 AND status = $5
		RETURNING `+reconciliationColumns,
		id, models.ReconciliationResolved, note, at, models.ReconciliationOpen))
	if err == nil {
		return ev, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.ReconciliationEvent{}, fmt.Errorf("resolve reconciliation: %w", err)
	}
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM reconciliation_events WHERE id = $1)`, id).Scan(&exists); err != nil {
		return models.ReconciliationEvent{}, fmt.Errorf("resolve reconciliation: %w", err)
	}
	if exists {
		return models.ReconciliationEvent{}, errs.ErrAlreadyExists
	}
	return models.ReconciliationEvent{}, errs.ErrNotFound
}

// Payments.

func (p *Postgres) ClaimPayment(ctx context.Context, tx models.PaymentTransaction) (bool, error) {
	var id string
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO payment_transactions (id, dealer_id, order_id, payment_id, amount_paise, credits, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) DO UPDATE
		SET status = EXCLUDED.status, payment_id = EXCLUDED.payment_id
		WHERE payment_transactions.status = $8
		RETURNING id`,
		tx.ID, tx.DealerID, tx.OrderID, tx.PaymentID, tx.AmountPaise, tx.Credits, models.PaymentProcessing, models.PaymentFailed).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim payment: %w", err)
	}
	return true, nil
}

func (p *Postgres) CompletePayment(ctx context.Context, orderID, status string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE payment_transactions SET status = $2 WHERE order_id = $1`, orderID, status)
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Allocation.

func (p *Postgres) RecordAllocationFailure(ctx context.Context, f models.AllocationFailure) error {
	payload, err := json.Marshal(f.Attributes)
	if err != nil {
		return fmt.Errorf("marshal allocation payload: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO lead_allocation_failures (id, lead_id, source, payload, error_message)
		VALUES ($1, $2, $3, $4, $5)`, uuid.NewString(), f.LeadID, f.Source, payload, f.ErrorMessage)
	if err != nil {
		return fmt.Errorf("insert allocation failure: %w", err)
	}
	return nil
}
