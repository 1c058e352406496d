package attestation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
	"provenance/pkg/platform/sentinel"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "provenance-test"
)

type failingStore struct{}

func (failingStore) Save(context.Context, domain.EvidenceID, string) error {
	return errors.New("store down")
}

func (failingStore) Find(context.Context, domain.EvidenceID) (string, error) {
	return "", errors.New("store down")
}

func newVerifier(t *testing.T) (*Verifier, *MemoryTokenStore) {
	t.Helper()
	store := NewMemoryTokenStore()
	return NewVerifier(testKey, testIssuer, store, nil), store
}

func TestRegisterAndVerify(t *testing.T) {
	ctx := context.Background()
	v, _ := newVerifier(t)
	id := domain.NewEvidenceID()

	token, err := Issue(testKey, testIssuer, id, "submitter-1", time.Hour)
	require.NoError(t, err)

	require.NoError(t, v.Register(ctx, id, token))

	verified, err := v.VerifyAttestation(ctx, id)
	require.NoError(t, err)
	assert.True(t, verified)
}

func TestVerifyWithoutRegistration(t *testing.T) {
	v, _ := newVerifier(t)

	verified, err := v.VerifyAttestation(context.Background(), domain.NewEvidenceID())
	require.NoError(t, err)
	assert.False(t, verified)
}

func TestRegisterRejectsInvalidTokens(t *testing.T) {
	ctx := context.Background()
	v, _ := newVerifier(t)
	id := domain.NewEvidenceID()
	other := domain.NewEvidenceID()

	wrongKey, err := Issue("some-other-key", testIssuer, id, "submitter-1", time.Hour)
	require.NoError(t, err)

	wrongSubject, err := Issue(testKey, testIssuer, other, "submitter-1", time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := Issue(testKey, "someone-else", id, "submitter-1", time.Hour)
	require.NoError(t, err)

	expired, err := Issue(testKey, testIssuer, id, "submitter-1", -time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.jwt"},
		{name: "wrong key", token: wrongKey},
		{name: "wrong subject", token: wrongSubject},
		{name: "wrong issuer", token: wrongIssuer},
		{name: "expired", token: expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Register(ctx, id, tt.token)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestVerifyStoredTokenExpiresLater(t *testing.T) {
	ctx := context.Background()
	v, store := newVerifier(t)
	id := domain.NewEvidenceID()

	// Token valid at registration but already expired by verification time.
	expired, err := Issue(testKey, testIssuer, id, "submitter-1", -time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, id, expired))

	verified, err := v.VerifyAttestation(ctx, id)
	require.NoError(t, err)
	assert.False(t, verified, "expired attestation must verify negative, not error")
}

func TestVerifyStoreOutageIsAnError(t *testing.T) {
	v := NewVerifier(testKey, testIssuer, failingStore{}, nil)

	_, err := v.VerifyAttestation(context.Background(), domain.NewEvidenceID())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeExternalService))
}

func TestMemoryTokenStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()
	id := domain.NewEvidenceID()

	_, err := store.Find(ctx, id)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, store.Save(ctx, id, "token-1"))

	token, err := store.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
}
