//go:build integration

package ledger

import (
	"context"
	_ "embed"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provenance/internal/evidence"
	"provenance/pkg/domain"
	"provenance/pkg/platform/sentinel"
	"provenance/pkg/testutil/containers"
)

//go:embed schema.sql
var schemaSQL string

func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pg := containers.NewPostgresContainer(t)
	_, err := pg.DB.Exec(schemaSQL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.DB.Close() })

	return NewPostgresStore(pg.DB)
}

func TestPostgresRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupPostgresStore(t)

	score := 72.5
	level := evidence.CompliancePartial
	now := time.Now().UTC().Truncate(time.Microsecond)
	record := &evidence.EvidenceRecord{
		ID:           domain.NewEvidenceID(),
		SubmitterID:  "submitter-1",
		EvidenceType: evidence.TypePhoto,
		DataHash:     "hash-1",
		Metadata: evidence.Metadata{
			{Key: "serial_number", Value: "SN-1"},
			{Key: "serial_number", Value: "SN-2"},
		},
		LinkedEvidence:  []domain.EvidenceID{domain.NewEvidenceID()},
		State:           evidence.StateDraft,
		TrustScore:      &score,
		ComplianceLevel: &level,
		CreatedAt:       now,
		RetentionUntil:  now.Add(24 * time.Hour),
	}

	require.NoError(t, store.Create(ctx, record))

	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)

	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.Metadata, got.Metadata)
	assert.Equal(t, record.LinkedEvidence, got.LinkedEvidence)
	assert.Equal(t, score, *got.TrustScore)
	assert.Equal(t, level, *got.ComplianceLevel)
	assert.Nil(t, got.FreezeAt)
	assert.Equal(t, int64(1), got.Version)
}

func TestPostgresCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	store := setupPostgresStore(t)

	record := &evidence.EvidenceRecord{
		ID:             domain.NewEvidenceID(),
		SubmitterID:    "submitter-1",
		EvidenceType:   evidence.TypeDocument,
		DataHash:       "hash-1",
		State:          evidence.StateDraft,
		CreatedAt:      time.Now(),
		RetentionUntil: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Create(ctx, record))
	assert.ErrorIs(t, store.Create(ctx, record), sentinel.ErrConflict)
}

func TestPostgresCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := setupPostgresStore(t)

	record := &evidence.EvidenceRecord{
		ID:             domain.NewEvidenceID(),
		SubmitterID:    "submitter-1",
		EvidenceType:   evidence.TypeDocument,
		DataHash:       "hash-1",
		State:          evidence.StateDraft,
		CreatedAt:      time.Now(),
		RetentionUntil: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Create(ctx, record))

	frozen := time.Now().UTC().Truncate(time.Microsecond)
	updated, err := store.CompareAndSwap(ctx, record.ID, 1, func(r *evidence.EvidenceRecord) error {
		r.State = evidence.StateFrozen
		r.FreezeAt = &frozen
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, evidence.StateFrozen, updated.State)
	assert.Equal(t, int64(2), updated.Version)

	// Stale writer loses.
	_, err = store.CompareAndSwap(ctx, record.ID, 1, func(r *evidence.EvidenceRecord) error {
		r.State = evidence.StateDisputed
		return nil
	})
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, evidence.StateFrozen, got.State)
	require.NotNil(t, got.FreezeAt)
	assert.WithinDuration(t, frozen, *got.FreezeAt, time.Millisecond)
}

func TestPostgresCompareAndSwapUnknown(t *testing.T) {
	ctx := context.Background()
	store := setupPostgresStore(t)

	_, err := store.CompareAndSwap(ctx, domain.NewEvidenceID(), 1, func(*evidence.EvidenceRecord) error {
		return nil
	})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresScan(t *testing.T) {
	ctx := context.Background()
	store := setupPostgresStore(t)

	for i := 0; i < 3; i++ {
		record := &evidence.EvidenceRecord{
			ID:             domain.NewEvidenceID(),
			SubmitterID:    "submitter-1",
			EvidenceType:   evidence.TypeDocument,
			DataHash:       "hash-1",
			State:          evidence.StateDraft,
			CreatedAt:      time.Now(),
			RetentionUntil: time.Now().Add(time.Hour),
		}
		require.NoError(t, store.Create(ctx, record))
	}

	frozen := &evidence.EvidenceRecord{
		ID:             domain.NewEvidenceID(),
		SubmitterID:    "submitter-1",
		EvidenceType:   evidence.TypeDocument,
		DataHash:       "hash-1",
		State:          evidence.StateFrozen,
		CreatedAt:      time.Now(),
		RetentionUntil: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Create(ctx, frozen))

	matches, err := store.Scan(ctx, func(r *evidence.EvidenceRecord) bool {
		return r.State == evidence.StateFrozen
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, frozen.ID, matches[0].ID)
}
