package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dopahiyaa/api_leads/internal/pricing"
)

// LoadRuleset reads the pricing singleton plus active rules and tiers in
// insertion order.
func (p *Postgres) LoadRuleset(ctx context.Context) (pricing.Ruleset, error) {
	rs := pricing.Ruleset{Config: pricing.DefaultConfig()}
	cfg := &rs.Config

	err := p.db.QueryRowContext(ctx, `
		SELECT base_lead_price, filtered_lead_surcharge, filtered_lead_multiplier, min_purchase_qty,
		       filter_city_enabled, filter_region_enabled, filter_brand_enabled,
		       filter_model_enabled, filter_lead_type_enabled, filter_date_range_enabled
		FROM pricing_config WHERE id = 1`).Scan(
		&cfg.BaseLeadPrice, &cfg.FilteredSurcharge, &cfg.FilteredMultiplier, &cfg.MinPurchaseQty,
		&cfg.Toggles.City, &cfg.Toggles.Region, &cfg.Toggles.Brand,
		&cfg.Toggles.Model, &cfg.Toggles.LeadType, &cfg.Toggles.DateRange)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return pricing.Ruleset{}, fmt.Errorf("load pricing config: %w", err)
	}

	if rs.Rules, err = p.loadRules(ctx); err != nil {
		return pricing.Ruleset{}, err
	}
	if rs.Tiers, err = p.loadTiers(ctx); err != nil {
		return pricing.Ruleset{}, err
	}
	return rs, nil
}

func (p *Postgres) loadRules(ctx context.Context) ([]pricing.Rule, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, condition_type, condition_value, adjustment_type, adjustment_value, priority
		FROM pricing_rules WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load pricing rules: %w", err)
	}
	defer rows.Close()

	var out []pricing.Rule
	for rows.Next() {
		var r pricing.Rule
		var cond, adj string
		if err := rows.Scan(&r.ID, &r.Name, &cond, &r.ConditionValue, &adj, &r.AdjustmentValue, &r.Priority); err != nil {
			return nil, fmt.Errorf("scan pricing rule: %w", err)
		}
		if r.ConditionType, err = pricing.ParseConditionType(cond); err != nil {
			p.logger.WithField("rule_id", r.ID).WithError(err).Warn("Skipping pricing rule")
			continue
		}
		if r.AdjustmentType, err = pricing.ParseAdjustmentType(adj); err != nil {
			p.logger.WithField("rule_id", r.ID).WithError(err).Warn("Skipping pricing rule")
			continue
		}
		r.IsActive = true
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) loadTiers(ctx context.Context) ([]pricing.BulkTier, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, min_quantity, max_quantity, discount_type, discount_value, priority
		FROM bulk_discount_tiers WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load bulk discount tiers: %w", err)
	}
	defer rows.Close()

	var out []pricing.BulkTier
	for rows.Next() {
		var t pricing.BulkTier
		var maxQty sql.NullInt64
		var kind string
		if err := rows.Scan(&t.ID, &t.Name, &t.MinQuantity, &maxQty, &kind, &t.DiscountValue, &t.Priority); err != nil {
			return nil, fmt.Errorf("scan bulk discount tier: %w", err)
		}
		if t.DiscountType, err = pricing.ParseDiscountType(kind); err != nil {
			p.logger.WithField("tier_id", t.ID).WithError(err).Warn("Skipping bulk discount tier")
			continue
		}
		if maxQty.Valid {
			v := int(maxQty.Int64)
			t.MaxQuantity = &v
		}
		t.IsActive = true
		out = append(out, t)
	}
	return out, rows.Err()
}
