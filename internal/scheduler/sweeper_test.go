package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provenance/internal/evidence"
	"provenance/internal/ledger"
	"provenance/internal/policy"
	"provenance/pkg/domain"
	"provenance/pkg/platform/clock"
)

type recordingHandler struct {
	signals []Signal
	err     error
}

func (h *recordingHandler) Handle(_ context.Context, signal Signal) error {
	if h.err != nil {
		return h.err
	}
	h.signals = append(h.signals, signal)
	return nil
}

func (h *recordingHandler) kinds() map[SignalKind][]domain.EvidenceID {
	out := make(map[SignalKind][]domain.EvidenceID)
	for _, s := range h.signals {
		out[s.Kind] = append(out[s.Kind], s.RecordID)
	}
	return out
}

func seedRecord(t *testing.T, store *ledger.MemoryStore, state evidence.State, freezeAt *time.Time, retentionUntil time.Time) domain.EvidenceID {
	t.Helper()
	record := &evidence.EvidenceRecord{
		ID:             domain.NewEvidenceID(),
		SubmitterID:    "submitter-1",
		EvidenceType:   evidence.TypeDocument,
		DataHash:       "hash-1",
		State:          state,
		FreezeAt:       freezeAt,
		CreatedAt:      time.Now(),
		RetentionUntil: retentionUntil,
	}
	require.NoError(t, store.Create(context.Background(), record))
	return record.ID
}

func TestSweepMintEligibility(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	fake := clock.NewFake(now)
	store := ledger.NewMemoryStore()
	handler := &recordingHandler{}

	farRetention := now.Add(policy.RetentionPeriod)

	elapsed := now.Add(-policy.FreezeWindow - time.Hour)
	boundary := now.Add(-policy.FreezeWindow)
	fresh := now.Add(-time.Hour)

	eligible := seedRecord(t, store, evidence.StateFrozen, &elapsed, farRetention)
	atBoundary := seedRecord(t, store, evidence.StateFrozen, &boundary, farRetention)
	seedRecord(t, store, evidence.StateFrozen, &fresh, farRetention)
	seedRecord(t, store, evidence.StateDraft, nil, farRetention)
	seedRecord(t, store, evidence.StateMinted, &elapsed, farRetention)

	sweeper := NewSweeper(store, handler, WithClock(fake))
	handled, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, handled)

	minted := handler.kinds()[SignalMintEligible]
	assert.ElementsMatch(t, []domain.EvidenceID{eligible, atBoundary}, minted)
}

func TestSweepPurgeEligibility(t *testing.T) {
	now := time.Date(2033, 3, 1, 0, 0, 0, 0, time.UTC)
	fake := clock.NewFake(now)
	store := ledger.NewMemoryStore()
	handler := &recordingHandler{}

	expired := seedRecord(t, store, evidence.StateSettled, nil, now.Add(-time.Hour))
	atBoundary := seedRecord(t, store, evidence.StateSettled, nil, now)
	seedRecord(t, store, evidence.StateSettled, nil, now.Add(time.Hour))

	sweeper := NewSweeper(store, handler, WithClock(fake))
	handled, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, handled)

	purgeable := handler.kinds()[SignalPurgeEligible]
	assert.ElementsMatch(t, []domain.EvidenceID{expired, atBoundary}, purgeable)
}

func TestSweepExcludesDisputedFromPurge(t *testing.T) {
	now := time.Date(2033, 3, 1, 0, 0, 0, 0, time.UTC)
	fake := clock.NewFake(now)
	store := ledger.NewMemoryStore()

	disputed := seedRecord(t, store, evidence.StateDisputed, nil, now.Add(-time.Hour))

	handler := &recordingHandler{}
	sweeper := NewSweeper(store, handler, WithClock(fake))
	handled, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, handled)

	// Operator override surfaces the disputed record.
	override := &recordingHandler{}
	sweeper = NewSweeper(store, override, WithClock(fake), WithIncludeDisputed())
	handled, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)
	assert.Equal(t, disputed, override.signals[0].RecordID)
	assert.Equal(t, SignalPurgeEligible, override.signals[0].Kind)
}

func TestSweepCustomFreezeWindow(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	fake := clock.NewFake(now)
	store := ledger.NewMemoryStore()
	handler := &recordingHandler{}

	frozeTwoHoursAgo := now.Add(-2 * time.Hour)
	id := seedRecord(t, store, evidence.StateFrozen, &frozeTwoHoursAgo, now.Add(policy.RetentionPeriod))

	sweeper := NewSweeper(store, handler, WithClock(fake), WithFreezeWindow(time.Hour))
	handled, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)
	assert.Equal(t, id, handler.signals[0].RecordID)
	assert.Equal(t, frozeTwoHoursAgo.Add(time.Hour), handler.signals[0].Due)
}

func TestSweepHandlerErrorAborts(t *testing.T) {
	now := time.Date(2033, 3, 1, 0, 0, 0, 0, time.UTC)
	fake := clock.NewFake(now)
	store := ledger.NewMemoryStore()

	seedRecord(t, store, evidence.StateSettled, nil, now.Add(-time.Hour))
	seedRecord(t, store, evidence.StateSettled, nil, now.Add(-time.Hour))

	boom := errors.New("sink down")
	sweeper := NewSweeper(store, &recordingHandler{err: boom}, WithClock(fake))
	handled, err := sweeper.Sweep(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, handled)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := ledger.NewMemoryStore()
	sweeper := NewSweeper(store, &recordingHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}
