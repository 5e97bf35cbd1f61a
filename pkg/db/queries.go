// Package db persists decisions, investments, market snapshots and strategy
// logs to SQLite for audit and history queries.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ----------------------------------------
// Decisions
// ----------------------------------------

// InsertDecision stores one decision audit row.
func (d *Database) InsertDecision(ctx context.Context, r DecisionRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO decisions (id, symbol, product_id, should_invest, amount,
			expected_return, risk_score, score, strength, reasons, warnings, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Symbol, r.ProductID, r.ShouldInvest, r.Amount,
		r.ExpectedReturn, r.RiskScore, r.Score, r.Strength, r.Reasons, r.Warnings, r.Metadata)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// ListDecisions returns the most recent decisions, optionally filtered by
// symbol (empty matches all).
func (d *Database) ListDecisions(ctx context.Context, symbol string, limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, product_id, should_invest, amount, expected_return,
		       risk_score, score, strength,
		       COALESCE(reasons, ''), COALESCE(warnings, ''), COALESCE(metadata, ''), created_at
		FROM decisions
		WHERE (? = '' OR symbol = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		if err := rows.Scan(&r.ID, &r.Symbol, &r.ProductID, &r.ShouldInvest, &r.Amount,
			&r.ExpectedReturn, &r.RiskScore, &r.Score, &r.Strength,
			&r.Reasons, &r.Warnings, &r.Metadata, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetDecision returns one decision by id.
func (d *Database) GetDecision(ctx context.Context, id string) (*DecisionRecord, error) {
	var r DecisionRecord
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, symbol, product_id, should_invest, amount, expected_return,
		       risk_score, score, strength,
		       COALESCE(reasons, ''), COALESCE(warnings, ''), COALESCE(metadata, ''), created_at
		FROM decisions WHERE id = ?
	`, id).Scan(&r.ID, &r.Symbol, &r.ProductID, &r.ShouldInvest, &r.Amount,
		&r.ExpectedReturn, &r.RiskScore, &r.Score, &r.Strength,
		&r.Reasons, &r.Warnings, &r.Metadata, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get decision: %w", err)
	}
	return &r, nil
}

// ----------------------------------------
// Investments
// ----------------------------------------

// CreateInvestment stores a new investment row.
func (d *Database) CreateInvestment(ctx context.Context, inv Investment) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO investments (id, decision_id, product_id, symbol, asset, currency,
			product_type, strike_price, apy, term_days, amount, status, settlement_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.DecisionID, inv.ProductID, inv.Symbol, inv.Asset, inv.Currency,
		inv.ProductType, inv.StrikePrice, inv.APY, inv.TermDays, inv.Amount, inv.Status, inv.SettlementDate)
	if err != nil {
		return fmt.Errorf("insert investment: %w", err)
	}
	return nil
}

// UpdateInvestmentStatus moves an investment through its lifecycle.
func (d *Database) UpdateInvestmentStatus(ctx context.Context, id, status string) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE investments SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, id)
	if err != nil {
		return fmt.Errorf("update investment status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListInvestments returns investments, optionally filtered by status.
func (d *Database) ListInvestments(ctx context.Context, status string, limit int) ([]Investment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, COALESCE(decision_id, ''), product_id, symbol, asset, currency,
		       product_type, strike_price, apy, term_days, amount, status,
		       COALESCE(settlement_date, created_at), created_at, updated_at
		FROM investments
		WHERE (? = '' OR status = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`, status, status, limit)
	if err != nil {
		return nil, fmt.Errorf("query investments: %w", err)
	}
	defer rows.Close()

	var out []Investment
	for rows.Next() {
		var inv Investment
		if err := rows.Scan(&inv.ID, &inv.DecisionID, &inv.ProductID, &inv.Symbol, &inv.Asset,
			&inv.Currency, &inv.ProductType, &inv.StrikePrice, &inv.APY, &inv.TermDays,
			&inv.Amount, &inv.Status, &inv.SettlementDate, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan investment: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ----------------------------------------
// Market snapshots
// ----------------------------------------

// InsertSnapshot stores one snapshot summary row.
func (d *Database) InsertSnapshot(ctx context.Context, s SnapshotRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO market_snapshots (symbol, current_price, price_change_24h,
			trend_direction, trend_strength, recommendation, rsi,
			volatility_ratio, risk_level, support, resistance, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.Symbol, s.CurrentPrice, s.PriceChange24h,
		s.TrendDirection, s.TrendStrength, s.Recommendation, s.RSI,
		s.VolatilityRatio, s.RiskLevel, s.Support, s.Resistance, s.Data)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent stored snapshot for a symbol.
func (d *Database) LatestSnapshot(ctx context.Context, symbol string) (*SnapshotRecord, error) {
	var s SnapshotRecord
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, symbol, current_price, price_change_24h,
		       COALESCE(trend_direction, ''), COALESCE(trend_strength, ''),
		       COALESCE(recommendation, ''), COALESCE(rsi, 0),
		       COALESCE(volatility_ratio, 0), COALESCE(risk_level, ''),
		       COALESCE(support, 0), COALESCE(resistance, 0), COALESCE(data, ''), created_at
		FROM market_snapshots
		WHERE symbol = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, symbol).Scan(&s.ID, &s.Symbol, &s.CurrentPrice, &s.PriceChange24h,
		&s.TrendDirection, &s.TrendStrength, &s.Recommendation, &s.RSI,
		&s.VolatilityRatio, &s.RiskLevel, &s.Support, &s.Resistance, &s.Data, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return &s, nil
}

// ----------------------------------------
// Strategy logs
// ----------------------------------------

// InsertStrategyLog records one strategy signal.
func (d *Database) InsertStrategyLog(ctx context.Context, l StrategyLog) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO strategy_logs (strategy_name, symbol, product_id, strength, confidence, reasons)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.StrategyName, l.Symbol, l.ProductID, l.Strength, l.Confidence, l.Reasons)
	if err != nil {
		return fmt.Errorf("insert strategy log: %w", err)
	}
	return nil
}

// ListStrategyLogs returns recent logs for one strategy (empty matches all).
func (d *Database) ListStrategyLogs(ctx context.Context, strategyName string, limit int) ([]StrategyLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, strategy_name, symbol, COALESCE(product_id, ''),
		       COALESCE(strength, ''), COALESCE(confidence, 0), COALESCE(reasons, ''), created_at
		FROM strategy_logs
		WHERE (? = '' OR strategy_name = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`, strategyName, strategyName, limit)
	if err != nil {
		return nil, fmt.Errorf("query strategy logs: %w", err)
	}
	defer rows.Close()

	var out []StrategyLog
	for rows.Next() {
		var l StrategyLog
		if err := rows.Scan(&l.ID, &l.StrategyName, &l.Symbol, &l.ProductID,
			&l.Strength, &l.Confidence, &l.Reasons, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan strategy log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ----------------------------------------
// Retention
// ----------------------------------------

// PruneBefore deletes snapshot and strategy log rows older than cutoff and
// returns the number of rows removed. Decisions and investments are kept.
func (d *Database) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"market_snapshots", "strategy_logs"} {
		// CURRENT_TIMESTAMP stores UTC text, compare in the same format
		res, err := d.DB.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE created_at < ?", cutoff.UTC().Format("2006-01-02 15:04:05"))
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
