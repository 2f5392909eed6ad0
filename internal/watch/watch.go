// Package watch runs the per-stage reconciliation watchers: long-lived
// polling loops that pick up records whose handoff needs verification,
// ask the receiving party what arrived, and persist the outcome.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"reconagent/internal/domain"
	"reconagent/internal/ports"
	"reconagent/internal/verify"
)

// Candidate is one record selected by a stage adapter for verification.
type Candidate struct {
	ID         string
	TrackingID string
	// Committed is derived from the assigned-asset list length at
	// selection time.
	Committed int
	Receiver  string
	Sender    string
	Prompt    string
}

// StageAdapter binds the generic watcher loop to one handoff stage.
type StageAdapter interface {
	Stage() domain.Stage
	// Candidates returns records in the stage's ready state that carry
	// no verification outcome yet. Ledger filtering is the watcher's job.
	Candidates(ctx context.Context) ([]Candidate, error)
	SaveOutcome(ctx context.Context, id string, v domain.HandoffVerification) error
}

// Watcher polls one stage on a fixed interval. Candidates are processed
// strictly sequentially: each one blocks on a human round trip over the
// shared channel, and interleaved prompts would be worse than latency.
type Watcher struct {
	adapter     StageAdapter
	ledger      ports.Ledger
	channel     ports.Channel
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// Options tunes a watcher; zero values fall back to defaults.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
}

const (
	defaultInterval    = 30 * time.Second
	defaultMaxAttempts = 3
)

func New(adapter StageAdapter, ledger ports.Ledger, channel ports.Channel, opts Options, logger *slog.Logger) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		adapter:     adapter,
		ledger:      ledger,
		channel:     channel,
		interval:    opts.Interval,
		maxAttempts: opts.MaxAttempts,
		logger:      logger.With("stage", string(adapter.Stage())),
	}
}

// Run polls until the context is cancelled. Cancellation is only
// honored between cycles; a candidate mid-flight finishes first.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watcher started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			w.RunCycle(ctx)
		}
	}
}

// RunCycle performs one poll. Failures are contained: a failing
// candidate is logged and left unmarked for the next cycle, and a
// failing listing aborts only this cycle.
func (w *Watcher) RunCycle(ctx context.Context) {
	candidates, err := w.adapter.Candidates(ctx)
	if err != nil {
		w.logger.Error("list candidates", "error", err)
		return
	}

	for _, cand := range candidates {
		done, err := w.ledger.Contains(ctx, cand.ID, w.adapter.Stage())
		if err != nil {
			w.logger.Error("ledger lookup", "record", cand.ID, "error", err)
			continue
		}
		if done {
			continue
		}

		if err := w.process(ctx, cand); err != nil {
			w.logger.Error("process candidate", "record", cand.ID, "error", err)
		}
	}
}

// process runs the full per-record pipeline. The ledger entry is
// written last, after the outcome is durable and messages are out, so a
// crash anywhere earlier re-runs the record instead of losing it. The
// accepted tradeoff is a repeated prompt, never a silent loss.
func (w *Watcher) process(ctx context.Context, cand Candidate) error {
	if cand.Committed == 0 {
		w.logger.Warn("no committed quantity, skipping verification", "record", cand.ID, "tracking", cand.TrackingID)
		return w.mark(ctx, cand.ID)
	}

	reported, err := w.askQuantity(ctx, cand.Prompt)
	if err != nil {
		return fmt.Errorf("obtain reported quantity for %s: %w", cand.TrackingID, err)
	}

	res := verify.Verify(cand.Committed, reported)
	verification := domain.HandoffVerification{
		Stage:      w.adapter.Stage(),
		TrackingID: cand.TrackingID,
		Committed:  cand.Committed,
		Received:   reported,
		Mismatch:   res.Mismatch,
		Outcome:    res.Outcome,
		VerifiedAt: time.Now().UTC(),
	}

	if err := w.adapter.SaveOutcome(ctx, cand.ID, verification); err != nil {
		return fmt.Errorf("persist outcome for %s: %w", cand.ID, err)
	}

	// Dispatch is best effort once the outcome is durable.
	if res.Outcome == domain.OutcomeMismatch {
		if err := w.channel.Send(ctx, mismatchAlert(cand, reported, res.Mismatch), true); err != nil {
			w.logger.Error("send mismatch alert", "record", cand.ID, "error", err)
		}
	} else {
		if err := w.channel.Send(ctx, verifiedMessage(cand, reported), false); err != nil {
			w.logger.Error("send confirmation", "record", cand.ID, "error", err)
		}
	}

	return w.mark(ctx, cand.ID)
}

func (w *Watcher) mark(ctx context.Context, id string) error {
	if err := w.ledger.Mark(ctx, id, w.adapter.Stage()); err != nil {
		// A lost mark means the record is re-verified next cycle and the
		// alert may repeat. Duplicates are acceptable; losing the failure
		// silently is not.
		w.logger.Error("ledger mark failed", "record", id, "error", err)
		return fmt.Errorf("mark %s: %w", id, err)
	}
	return nil
}

// askQuantity prompts over the channel and re-prompts on non-integer
// replies, up to maxAttempts, then gives up with ErrInvalidQuantity.
// A reply that never arrives surfaces the channel's ErrChannelTimeout.
func (w *Watcher) askQuantity(ctx context.Context, prompt string) (int, error) {
	for attempt := 0; attempt < w.maxAttempts; attempt++ {
		if err := w.channel.Send(ctx, prompt, false); err != nil {
			return 0, fmt.Errorf("send prompt: %w", err)
		}

		reply, err := w.channel.AwaitReply(ctx)
		if err != nil {
			return 0, fmt.Errorf("await reply: %w", err)
		}

		n, convErr := strconv.Atoi(strings.TrimSpace(reply))
		if convErr == nil {
			return n, nil
		}

		// No retry message on the last attempt; nobody will read it.
		if attempt == w.maxAttempts-1 {
			break
		}
		if err := w.channel.Send(ctx, "Invalid input. Please enter a whole number.", false); err != nil {
			return 0, fmt.Errorf("send retry prompt: %w", err)
		}
	}
	return 0, domain.ErrInvalidQuantity
}

func mismatchAlert(cand Candidate, reported, mismatch int) string {
	var b strings.Builder
	b.WriteString("COMMITMENT vs DELIVERY MISMATCH ALERT\n\n")
	fmt.Fprintf(&b, "Tracking ID: %s\n", cand.TrackingID)
	fmt.Fprintf(&b, "Receiver: %s\n", cand.Receiver)
	fmt.Fprintf(&b, "Sender: %s\n", cand.Sender)
	fmt.Fprintf(&b, "Committed Quantity: %d\n", cand.Committed)
	fmt.Fprintf(&b, "Received Quantity: %d\n", reported)
	fmt.Fprintf(&b, "Mismatch: %d units\n\n", mismatch)
	b.WriteString("Please investigate this discrepancy and take appropriate action.")
	return b.String()
}

func verifiedMessage(cand Candidate, reported int) string {
	return fmt.Sprintf(
		"Thank you %s! The received quantity (%d) matches the committed quantity (%d). Delivery %s has been verified.",
		cand.Receiver, reported, cand.Committed, cand.TrackingID,
	)
}
