package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "provenance/pkg/domain-errors"
)

func TestNewEvidenceID(t *testing.T) {
	a := NewEvidenceID()
	b := NewEvidenceID()

	assert.False(t, a.IsZero())
	assert.NotEqual(t, a, b)
}

func TestParseEvidenceID(t *testing.T) {
	valid := NewEvidenceID()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "valid", raw: valid.String()},
		{name: "empty", raw: "", wantErr: true},
		{name: "malformed", raw: "not-a-uuid", wantErr: true},
		{name: "nil uuid", raw: "00000000-0000-0000-0000-000000000000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseEvidenceID(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, valid, parsed)
		})
	}
}

func TestEvidenceIDJSONRoundTrip(t *testing.T) {
	id := NewEvidenceID()

	data, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded EvidenceID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded)
}
