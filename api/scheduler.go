/*
scheduler.go - Periodic balance audit

PURPOSE:
  Periodically re-derives every party's cached balance from its
  transaction log and reports (or repairs) drift. Commands keep the cache
  exact on their own; the sweep catches edits made outside the service,
  such as manual database fixes.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - One sweep covers every owner; a failing party does not stop it
  - Repair mode rebuilds drifted balances through ledger.RepairBalance,
    one unit of work per party
  - The last report is kept for inspection

CONFIGURATION:
  - audit.interval: How often to sweep (0 disables the scheduler)
  - audit.repair:   Rebuild drifted balances instead of only logging them

USAGE:
  scheduler := NewAuditScheduler(svc, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: AuditParty/RepairParty (per-party, on demand)
  - ledger/audit.go: SweepBalances
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/ledger-engine/ledger"
)

// AuditScheduler runs balance sweeps in the background.
type AuditScheduler struct {
	Service       *ledger.Service
	Logger        *zap.Logger
	CheckInterval time.Duration
	Repair        bool
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	reportMu   sync.Mutex
	lastReport *ledger.SweepReport
	lastRun    time.Time
}

// NewAuditScheduler creates a scheduler that sweeps hourly in report-only mode.
func NewAuditScheduler(svc *ledger.Service, log *zap.Logger) *AuditScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditScheduler{
		Service:       svc,
		Logger:        log.Named("audit"),
		CheckInterval: time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler. The first sweep runs immediately.
func (as *AuditScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled || as.CheckInterval <= 0 {
		as.Logger.Info("balance audit disabled")
		return
	}
	if as.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	as.cancel = cancel
	as.stop = make(chan struct{})
	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run(ctx)

	as.Logger.Info("balance audit started",
		zap.Duration("interval", as.CheckInterval),
		zap.Bool("repair", as.Repair),
	)
}

// Stop stops the scheduler and waits for a running sweep to return.
func (as *AuditScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker == nil {
		return
	}
	as.ticker.Stop()
	as.cancel()
	close(as.stop)
	as.wg.Wait()
	as.ticker = nil
	as.Logger.Info("balance audit stopped")
}

func (as *AuditScheduler) run(ctx context.Context) {
	defer as.wg.Done()

	as.sweep(ctx)

	for {
		select {
		case <-as.ticker.C:
			as.sweep(ctx)
		case <-as.stop:
			return
		}
	}
}

func (as *AuditScheduler) sweep(ctx context.Context) *ledger.SweepReport {
	start := time.Now()
	report, err := as.Service.SweepBalances(ctx, as.Repair)
	if err != nil {
		as.Logger.Error("balance sweep aborted", zap.Error(err))
		if report == nil {
			return nil
		}
	}

	as.reportMu.Lock()
	as.lastReport = report
	as.lastRun = start
	as.reportMu.Unlock()

	fields := []zap.Field{
		zap.Int("checked", report.Checked),
		zap.Int("drifted", report.Drifted),
		zap.Int("repaired", report.Repaired),
		zap.Int("failed", report.Failed),
		zap.Duration("took", time.Since(start)),
	}
	if report.Drifted > 0 || report.Failed > 0 {
		as.Logger.Warn("balance sweep completed", fields...)
	} else {
		as.Logger.Debug("balance sweep completed", fields...)
	}
	return report
}

// RunNow runs one sweep synchronously (for testing/admin).
func (as *AuditScheduler) RunNow(ctx context.Context) *ledger.SweepReport {
	return as.sweep(ctx)
}

// LastReport returns the most recent sweep report and when it started.
func (as *AuditScheduler) LastReport() (*ledger.SweepReport, time.Time) {
	as.reportMu.Lock()
	defer as.reportMu.Unlock()
	return as.lastReport, as.lastRun
}
