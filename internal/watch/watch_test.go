package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"reconagent/internal/domain"
)

type sentMsg struct {
	text   string
	system bool
}

type fakeChannel struct {
	sent    []sentMsg
	replies []string
	idx     int
}

func (f *fakeChannel) Send(_ context.Context, text string, system bool) error {
	f.sent = append(f.sent, sentMsg{text: text, system: system})
	return nil
}

func (f *fakeChannel) AwaitReply(_ context.Context) (string, error) {
	if f.idx >= len(f.replies) {
		return "", domain.ErrChannelTimeout
	}
	reply := f.replies[f.idx]
	f.idx++
	return reply, nil
}

func (f *fakeChannel) alerts() int {
	n := 0
	for _, m := range f.sent {
		if m.system && strings.Contains(m.text, "MISMATCH ALERT") {
			n++
		}
	}
	return n
}

type fakeLedger struct {
	marked   map[string]bool
	failMark bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{marked: map[string]bool{}}
}

func (f *fakeLedger) key(id string, stage domain.Stage) string {
	return id + "/" + string(stage)
}

func (f *fakeLedger) Contains(_ context.Context, id string, stage domain.Stage) (bool, error) {
	return f.marked[f.key(id, stage)], nil
}

func (f *fakeLedger) Mark(_ context.Context, id string, stage domain.Stage) error {
	if f.failMark {
		return errors.New("durable write failed")
	}
	f.marked[f.key(id, stage)] = true
	return nil
}

type fakeAdapter struct {
	candidates []Candidate
	saved      map[string]domain.HandoffVerification
	failSaves  map[string]int
}

func newFakeAdapter(candidates ...Candidate) *fakeAdapter {
	return &fakeAdapter{
		candidates: candidates,
		saved:      map[string]domain.HandoffVerification{},
		failSaves:  map[string]int{},
	}
}

func (f *fakeAdapter) Stage() domain.Stage { return domain.StageDonorToPartner }

func (f *fakeAdapter) Candidates(_ context.Context) ([]Candidate, error) {
	return f.candidates, nil
}

func (f *fakeAdapter) SaveOutcome(_ context.Context, id string, v domain.HandoffVerification) error {
	if f.failSaves[id] > 0 {
		f.failSaves[id]--
		return errors.New("store unavailable")
	}
	f.saved[id] = v
	return nil
}

func candidate(id string, committed int) Candidate {
	return Candidate{
		ID:         id,
		TrackingID: "TRK-" + id,
		Committed:  committed,
		Receiver:   "Acme Partner",
		Sender:     "Globex Donor",
		Prompt:     fmt.Sprintf("How many units did you receive? (Committed: %d)", committed),
	}
}

func newTestWatcher(adapter StageAdapter, ledger *fakeLedger, ch *fakeChannel, attempts int) *Watcher {
	return New(adapter, ledger, ch, Options{Interval: time.Minute, MaxAttempts: attempts}, nil)
}

func TestWatcherVerifiedFlow(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(candidate("d1", 5))
	ledger := newFakeLedger()
	ch := &fakeChannel{replies: []string{"5"}}

	w := newTestWatcher(adapter, ledger, ch, 3)
	w.RunCycle(context.Background())

	v, ok := adapter.saved["d1"]
	if !ok {
		t.Fatal("expected outcome to be persisted")
	}
	if v.Outcome != domain.OutcomeVerified || v.Mismatch != 0 {
		t.Fatalf("unexpected verification: %+v", v)
	}
	if v.Committed != 5 || v.Received != 5 {
		t.Fatalf("unexpected quantities: %+v", v)
	}
	if !ledger.marked["d1/donor_to_partner"] {
		t.Fatal("expected ledger mark")
	}
	if ch.alerts() != 0 {
		t.Fatal("verified delivery must not raise an alert")
	}

	var confirmed bool
	for _, m := range ch.sent {
		if !m.system && strings.Contains(m.text, "matches the committed quantity") {
			confirmed = true
		}
	}
	if !confirmed {
		t.Fatal("expected confirmation message")
	}
}

func TestWatcherMismatchAlertExactlyOnce(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(candidate("d1", 5))
	ledger := newFakeLedger()
	ch := &fakeChannel{replies: []string{"3"}}

	w := newTestWatcher(adapter, ledger, ch, 3)
	w.RunCycle(context.Background())

	v := adapter.saved["d1"]
	if v.Outcome != domain.OutcomeMismatch || v.Mismatch != 2 {
		t.Fatalf("expected mismatch of 2, got %+v", v)
	}
	if got := ch.alerts(); got != 1 {
		t.Fatalf("expected exactly one alert, got %d", got)
	}

	// A later cycle must not re-verify a marked record.
	w.RunCycle(context.Background())
	if got := ch.alerts(); got != 1 {
		t.Fatalf("marked record re-alerted, alerts = %d", got)
	}
}

func TestWatcherLedgerIdempotence(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(candidate("d1", 5))
	ledger := newFakeLedger()
	ledger.marked["d1/donor_to_partner"] = true
	ch := &fakeChannel{replies: []string{"5"}}

	w := newTestWatcher(adapter, ledger, ch, 3)
	w.RunCycle(context.Background())

	if len(adapter.saved) != 0 {
		t.Fatal("ledgered record must not be re-verified")
	}
	if len(ch.sent) != 0 {
		t.Fatal("ledgered record must not be prompted")
	}
}

func TestWatcherContinuesPastFailingCandidate(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(candidate("d1", 2), candidate("d2", 2), candidate("d3", 2))
	adapter.failSaves["d2"] = 1
	ledger := newFakeLedger()
	ch := &fakeChannel{replies: []string{"2", "2", "2", "2"}}

	w := newTestWatcher(adapter, ledger, ch, 3)
	w.RunCycle(context.Background())

	if _, ok := adapter.saved["d3"]; !ok {
		t.Fatal("candidate after the failing one must still be processed")
	}
	if ledger.marked["d2/donor_to_partner"] {
		t.Fatal("failed candidate must stay unmarked")
	}

	// Next cycle retries the failed candidate only.
	w.RunCycle(context.Background())
	if _, ok := adapter.saved["d2"]; !ok {
		t.Fatal("failed candidate must be retried on the next cycle")
	}
	if !ledger.marked["d2/donor_to_partner"] {
		t.Fatal("retried candidate must end up marked")
	}
}

func TestWatcherRepromptsOnInvalidInput(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(candidate("d1", 4))
	ledger := newFakeLedger()
	ch := &fakeChannel{replies: []string{"four", " 4 "}}

	w := newTestWatcher(adapter, ledger, ch, 3)
	w.RunCycle(context.Background())

	v, ok := adapter.saved["d1"]
	if !ok {
		t.Fatal("expected outcome after re-prompt")
	}
	if v.Outcome != domain.OutcomeVerified {
		t.Fatalf("expected verified, got %+v", v)
	}

	var reprompted bool
	for _, m := range ch.sent {
		if strings.Contains(m.text, "Invalid input") {
			reprompted = true
		}
	}
	if !reprompted {
		t.Fatal("expected an invalid-input re-prompt")
	}
}

func TestWatcherGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(candidate("d1", 4))
	ledger := newFakeLedger()
	ch := &fakeChannel{replies: []string{"nope", "still nope"}}

	w := newTestWatcher(adapter, ledger, ch, 2)
	w.RunCycle(context.Background())

	if len(adapter.saved) != 0 {
		t.Fatal("no outcome may be persisted without a valid reply")
	}
	if ledger.marked["d1/donor_to_partner"] {
		t.Fatal("timed-out candidate must stay unmarked for retry")
	}

	// The final invalid reply gets no retry message; only the attempt
	// in between does.
	retries := 0
	for _, m := range ch.sent {
		if strings.Contains(m.text, "Invalid input") {
			retries++
		}
	}
	if retries != 1 {
		t.Fatalf("expected 1 retry message, got %d", retries)
	}
}

func TestWatcherZeroCommittedSkipsPrompt(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(candidate("d1", 0))
	ledger := newFakeLedger()
	ch := &fakeChannel{}

	w := newTestWatcher(adapter, ledger, ch, 3)
	w.RunCycle(context.Background())

	if len(ch.sent) != 0 {
		t.Fatal("zero-committed candidate must not be prompted")
	}
	if !ledger.marked["d1/donor_to_partner"] {
		t.Fatal("zero-committed candidate is marked so it is not re-warned forever")
	}
}

func TestWatcherMarkFailureLeavesCandidateRetryable(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(candidate("d1", 3))
	ledger := newFakeLedger()
	ledger.failMark = true
	ch := &fakeChannel{replies: []string{"3", "3"}}

	w := newTestWatcher(adapter, ledger, ch, 3)
	w.RunCycle(context.Background())

	if _, ok := adapter.saved["d1"]; !ok {
		t.Fatal("outcome persists even when the mark fails")
	}
	if ledger.marked["d1/donor_to_partner"] {
		t.Fatal("mark must not be recorded on write failure")
	}

	// The record is re-verified next cycle; the duplicate prompt is the
	// accepted cost of never losing a mismatch.
	ledger.failMark = false
	w.RunCycle(context.Background())
	if !ledger.marked["d1/donor_to_partner"] {
		t.Fatal("expected successful mark on retry")
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	adapter := newFakeAdapter()
	reg.Register(adapter)

	got, err := reg.Resolve(domain.StageDonorToPartner)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got != StageAdapter(adapter) {
		t.Fatal("resolved adapter mismatch")
	}

	if _, err := reg.Resolve(domain.StagePartnerToBeneficiary); err == nil {
		t.Fatal("expected error for unregistered stage")
	}

	if n := len(reg.All()); n != 1 {
		t.Fatalf("expected 1 adapter, got %d", n)
	}
}
