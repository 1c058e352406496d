//go:build integration

package attestation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provenance/pkg/domain"
	"provenance/pkg/platform/sentinel"
	"provenance/pkg/testutil/containers"
)

func TestRedisTokenStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	store := NewRedisTokenStore(rc.Client)
	id := domain.NewEvidenceID()

	_, err := store.Find(ctx, id)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, store.Save(ctx, id, "token-1"))

	token, err := store.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
}
