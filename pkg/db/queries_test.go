package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestDecisionRoundTrip(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	rec := DecisionRecord{
		ID:             "DI_test_1",
		Symbol:         "BTCUSDT",
		ProductID:      "BTC-BL-1",
		ShouldInvest:   true,
		Amount:         200,
		ExpectedReturn: 0.004,
		RiskScore:      0.2,
		Score:          0.86,
		Strength:       "STRONG_BUY",
		Reasons:        `["favorable risk-reward ratio"]`,
	}
	if err := d.InsertDecision(ctx, rec); err != nil {
		t.Fatalf("InsertDecision: %v", err)
	}

	got, err := d.GetDecision(ctx, "DI_test_1")
	if err != nil {
		t.Fatalf("GetDecision: %v", err)
	}
	if got.Symbol != rec.Symbol || got.Amount != rec.Amount || !got.ShouldInvest {
		t.Fatalf("got %+v, expected round-tripped record", got)
	}

	if _, err := d.GetDecision(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, expected ErrNotFound", err)
	}
}

func TestListDecisionsFilter(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	for i, sym := range []string{"BTCUSDT", "ETHUSDT", "BTCUSDT"} {
		rec := DecisionRecord{
			ID:        "DI_" + sym + "_" + string(rune('a'+i)),
			Symbol:    sym,
			ProductID: "p",
			Strength:  "NEUTRAL",
		}
		if err := d.InsertDecision(ctx, rec); err != nil {
			t.Fatalf("InsertDecision: %v", err)
		}
	}

	all, err := d.ListDecisions(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d decisions, expected 3", len(all))
	}

	btc, err := d.ListDecisions(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("ListDecisions filtered: %v", err)
	}
	if len(btc) != 2 {
		t.Fatalf("got %d BTCUSDT decisions, expected 2", len(btc))
	}
}

func TestInvestmentLifecycle(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	inv := Investment{
		ID:             "inv-1",
		DecisionID:     "DI_x",
		ProductID:      "BTC-BL-1",
		Symbol:         "BTCUSDT",
		Asset:          "BTC",
		Currency:       "USDT",
		ProductType:    "BUY_LOW",
		StrikePrice:    90250,
		APY:            0.25,
		TermDays:       7,
		Amount:         200,
		Status:         "PENDING",
		SettlementDate: time.Now().UTC().Add(7 * 24 * time.Hour),
	}
	if err := d.CreateInvestment(ctx, inv); err != nil {
		t.Fatalf("CreateInvestment: %v", err)
	}

	if err := d.UpdateInvestmentStatus(ctx, "inv-1", "ACTIVE"); err != nil {
		t.Fatalf("UpdateInvestmentStatus: %v", err)
	}
	if err := d.UpdateInvestmentStatus(ctx, "missing", "ACTIVE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, expected ErrNotFound", err)
	}

	active, err := d.ListInvestments(ctx, "ACTIVE", 10)
	if err != nil {
		t.Fatalf("ListInvestments: %v", err)
	}
	if len(active) != 1 || active[0].ID != "inv-1" {
		t.Fatalf("active=%+v, expected the updated investment", active)
	}
}

func TestSnapshotLatest(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	for _, price := range []float64{94000, 95000} {
		rec := SnapshotRecord{
			Symbol:         "BTCUSDT",
			CurrentPrice:   price,
			TrendDirection: "SIDEWAYS",
			RiskLevel:      "LOW",
		}
		if err := d.InsertSnapshot(ctx, rec); err != nil {
			t.Fatalf("InsertSnapshot: %v", err)
		}
	}

	got, err := d.LatestSnapshot(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if got.CurrentPrice != 95000 {
		t.Fatalf("price=%v, expected the most recent snapshot", got.CurrentPrice)
	}

	if _, err := d.LatestSnapshot(ctx, "DOGEUSDT"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, expected ErrNotFound", err)
	}
}

func TestPruneBefore(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	if err := d.InsertSnapshot(ctx, SnapshotRecord{Symbol: "BTCUSDT", CurrentPrice: 1}); err != nil {
		t.Fatalf("InsertSnapshot: %v", err)
	}
	if err := d.InsertStrategyLog(ctx, StrategyLog{StrategyName: "s", Symbol: "BTCUSDT"}); err != nil {
		t.Fatalf("InsertStrategyLog: %v", err)
	}

	// cutoff in the past removes nothing
	n, err := d.PruneBefore(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if n != 0 {
		t.Fatalf("pruned %d rows with a past cutoff, expected 0", n)
	}

	// cutoff in the future removes both
	n, err = d.PruneBefore(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if n != 2 {
		t.Fatalf("pruned %d rows, expected 2", n)
	}
}

func TestStrategyConfigUpsert(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO strategy_configs (name, strategy_type, weight, is_active, parameters)
		VALUES ('primary', 'dual_investment', 1.0, 1, '{}')
	`)
	if err != nil {
		t.Fatalf("insert strategy config: %v", err)
	}

	logs, err := d.ListStrategyLogs(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListStrategyLogs: %v", err)
	}
	if len(logs) != 0 {
		t.Fatalf("got %d logs, expected none", len(logs))
	}
}
