package chain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provenance/pkg/domain"
	"provenance/pkg/platform/sentinel"
)

func TestAnchorIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client := NewMemoryClient()
	id := domain.NewEvidenceID()

	first, err := client.Anchor(ctx, id, "hash-1")
	require.NoError(t, err)

	second, err := client.Anchor(ctx, id, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetAnchor(t *testing.T) {
	ctx := context.Background()
	client := NewMemoryClient()
	id := domain.NewEvidenceID()

	_, err := client.GetAnchor(ctx, id)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	anchored, err := client.Anchor(ctx, id, "hash-1")
	require.NoError(t, err)

	found, err := client.GetAnchor(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, anchored, found)
	assert.Equal(t, "hash-1", found.DataHash)
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }

	client := NewMemoryClient(WithConfirmDelay(10*time.Minute), WithNow(clock))
	id := domain.NewEvidenceID()

	anchor, err := client.Anchor(ctx, id, "hash-1")
	require.NoError(t, err)

	final, err := client.Confirm(ctx, anchor.Reference)
	require.NoError(t, err)
	assert.False(t, final, "anchor should not be final before the delay")

	now = now.Add(10 * time.Minute)
	final, err = client.Confirm(ctx, anchor.Reference)
	require.NoError(t, err)
	assert.True(t, final)

	final, err = client.Confirm(ctx, "anchor:unknown")
	require.NoError(t, err)
	assert.False(t, final)
}

func TestReferenceIsDeterministic(t *testing.T) {
	id := domain.NewEvidenceID()
	assert.Equal(t, referenceFor(id, "h"), referenceFor(id, "h"))
	assert.NotEqual(t, referenceFor(id, "h"), referenceFor(id, "other"))
}
