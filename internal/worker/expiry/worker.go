package expiryworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/salon-booking/internal/appointments"
	"github.com/wolfman30/salon-booking/pkg/logging"
)

type sweeper interface {
	ExpireStalePending(ctx context.Context) (appointments.SweepResult, error)
	ExpireAuthorizations(ctx context.Context) (appointments.SweepResult, error)
	CompletePast(ctx context.Context) (appointments.SweepResult, error)
}

// Report is the outcome of one pass, keyed by sweep name.
type Report map[string]appointments.SweepResult

// Applied sums the transitions written across sweeps.
func (r Report) Applied() int {
	total := 0
	for _, res := range r {
		total += res.Applied
	}
	return total
}

// Worker runs the time-driven transitions: pending requests the stylist never
// answered, payment authorizations that never completed, and confirmed
// appointments whose time has passed.
type Worker struct {
	sweeper  sweeper
	logger   *logging.Logger
	interval time.Duration
}

func New(s sweeper, logger *logging.Logger) *Worker {
	if s == nil {
		panic("expiryworker: sweeper required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{sweeper: s, logger: logger, interval: time.Minute}
}

func (w *Worker) WithInterval(d time.Duration) *Worker {
	if d > 0 {
		w.interval = d
	}
	return w
}

// Run sweeps immediately and then on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pass(ctx)
		}
	}
}

func (w *Worker) pass(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("expiry: sweep pass failed", "error", err)
	}
}

// RunOnce runs every sweep once. A failing sweep does not stop the others.
func (w *Worker) RunOnce(ctx context.Context) (Report, error) {
	sweeps := []struct {
		name string
		run  func(context.Context) (appointments.SweepResult, error)
	}{
		{"expire_pending", w.sweeper.ExpireStalePending},
		{"expire_authorization", w.sweeper.ExpireAuthorizations},
		{"complete_past", w.sweeper.CompletePast},
	}

	report := Report{}
	var errs []error
	for _, s := range sweeps {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := s.run(ctx)
		report[s.name] = res
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		if res.Scanned > 0 {
			w.logger.Info("expiry: sweep finished", "sweep", s.name,
				"scanned", res.Scanned, "applied", res.Applied, "skipped", res.Skipped, "failed", res.Failed)
		}
	}
	return report, errors.Join(errs...)
}
