package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"walter-bridge/internal/metrics"
)

const (
	DefaultPollInterval = 750 * time.Millisecond
	DefaultMaxWait      = 25 * time.Second

	cancelTimeout = 5 * time.Second
)

type RunnerConfig struct {
	PollInterval time.Duration
	// MaxWait bounds the time from run submission to a terminal status.
	MaxWait time.Duration
	// CancelOnTimeout asks the service to cancel a run the bridge gave up on.
	CancelOnTimeout bool
}

// Runner executes one assistant turn on an existing thread.
type Runner struct {
	api     ThreadAPI
	cfg     RunnerConfig
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewRunner(api ThreadAPI, cfg RunnerConfig, logger *zap.Logger, m *metrics.Collector) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{api: api, cfg: cfg, logger: logger, metrics: m}
}

// Run appends text to the thread, waits for the assistant to finish and
// returns its reply.
func (r *Runner) Run(ctx context.Context, threadID, text string) (string, error) {
	if err := r.api.AddMessage(ctx, threadID, text); err != nil {
		return "", fmt.Errorf("add message: %w", err)
	}
	started := time.Now()
	run, err := r.api.CreateRun(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	log := r.logger.With(zap.String("thread_id", threadID), zap.String("run_id", run.RunID))
	log.Debug("run submitted", zap.String("status", string(run.Status)))

	run, err = r.Wait(ctx, run)
	if errors.Is(err, ErrRunTimedOut) {
		r.metrics.ObserveRun("timeout", time.Since(started))
		log.Warn("run timed out", zap.String("last_status", string(run.Status)), zap.Duration("max_wait", r.cfg.MaxWait))
		if r.cfg.CancelOnTimeout {
			r.cancel(ctx, run, log)
		}
		return "", err
	}
	if err != nil {
		return "", err
	}
	r.metrics.ObserveRun(string(run.Status), time.Since(started))

	if run.Status != RunCompleted {
		log.Warn("run did not complete", zap.String("status", string(run.Status)), zap.String("last_error", run.LastError))
		return "", &RunFailedError{RunID: run.RunID, Status: run.Status, Message: run.LastError}
	}

	msgs, err := r.api.ListMessages(ctx, threadID, run.RunID)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	reply, ok := ExtractReply(msgs)
	if !ok {
		log.Warn("run completed without a text reply", zap.Int("messages", len(msgs)))
		return "", ErrNoReply
	}
	return reply, nil
}

// Wait polls the run until it reaches a terminal status or MaxWait elapses.
// It returns ErrRunTimedOut with the last observed handle when the budget runs
// out, and the context error when the caller gives up first.
func (r *Runner) Wait(ctx context.Context, run RunHandle) (RunHandle, error) {
	budget, cancel := context.WithTimeout(ctx, r.cfg.MaxWait)
	defer cancel()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for !run.Status.Terminal() {
		select {
		case <-budget.Done():
			return run, r.waitErr(ctx)
		case <-ticker.C:
		}

		next, err := r.api.GetRun(budget, run.ThreadID, run.RunID)
		if err != nil {
			if budget.Err() != nil {
				return run, r.waitErr(ctx)
			}
			return run, fmt.Errorf("retrieve run: %w", err)
		}
		if next.Status.rank() < run.Status.rank() {
			r.logger.Debug("ignoring stale run status",
				zap.String("run_id", run.RunID),
				zap.String("current", string(run.Status)),
				zap.String("received", string(next.Status)))
			continue
		}
		run = next
	}
	return run, nil
}

func (r *Runner) waitErr(parent context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return ErrRunTimedOut
}

func (r *Runner) cancel(ctx context.Context, run RunHandle, log *zap.Logger) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := r.api.CancelRun(cctx, run.ThreadID, run.RunID); err != nil {
		log.Warn("cancel timed out run", zap.Error(err))
		return
	}
	log.Info("cancelled timed out run")
}
