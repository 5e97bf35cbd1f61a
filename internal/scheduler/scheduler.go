package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"dualinvest-core/internal/engine"
	"dualinvest-core/pkg/db"
)

// Scheduler drives periodic evaluation cycles and database retention.
type Scheduler struct {
	Cron    *cron.Cron
	Engine  *engine.Engine
	DB      *db.Database
	Symbols []string
	TopN    int
	Ctx     context.Context

	// Retention window for snapshots and strategy logs.
	Retention time.Duration
}

// New creates a scheduler for the given symbols.
func New(ctx context.Context, eng *engine.Engine, database *db.Database, symbols []string, topN int, retention time.Duration) *Scheduler {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Engine:    eng,
		DB:        database,
		Symbols:   symbols,
		TopN:      topN,
		Ctx:       ctx,
		Retention: retention,
	}
}

// RegisterAll registers the evaluation cycle and the nightly prune.
func (s *Scheduler) RegisterAll(evaluationCron string) error {
	if _, err := s.Cron.AddFunc(evaluationCron, s.evaluationCycle); err != nil {
		return fmt.Errorf("register evaluation cycle: %w", err)
	}
	// Retention prune: every day 03:10
	if _, err := s.Cron.AddFunc("0 10 3 * * *", s.prune); err != nil {
		return fmt.Errorf("register prune task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// RunCycleNow executes the evaluation cycle immediately (manual trigger /
// run-on-start).
func (s *Scheduler) RunCycleNow() {
	s.evaluationCycle()
}

func (s *Scheduler) evaluationCycle() {
	for _, symbol := range s.Symbols {
		if s.Ctx.Err() != nil {
			return
		}

		ctx, cancel := context.WithTimeout(s.Ctx, 2*time.Minute)
		ranked, _, err := s.Engine.BestProducts(ctx, symbol, s.TopN)
		cancel()
		if err != nil {
			log.Printf("[WARN] evaluation cycle for %s: %v", symbol, err)
			continue
		}

		invest := 0
		for _, r := range ranked {
			if r.Result.Decision.ShouldInvest {
				invest++
			}
		}
		log.Printf("[INFO] evaluated %s: %d candidates ranked, %d actionable", symbol, len(ranked), invest)
	}
}

func (s *Scheduler) prune() {
	if s.DB == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.Ctx, time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.Retention)
	n, err := s.DB.PruneBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[WARN] retention prune: %v", err)
		return
	}
	log.Printf("[INFO] retention prune removed %d rows older than %s", n, cutoff.Format(time.RFC3339))
}
