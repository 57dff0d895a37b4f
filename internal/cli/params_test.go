package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Accumulus/internal/accumulator"
)

func TestParamsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	want := testGenesis()

	require.NoError(t, SaveParams(path, want, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, 0, want.Params.N.Cmp(got.Params.N))
	assert.Equal(t, 0, want.Params.G.Cmp(got.Params.G))
	require.NotNil(t, got.Trapdoor)
	assert.Equal(t, 0, want.Trapdoor.Phi.Cmp(got.Trapdoor.Phi))
	assert.Equal(t, "test", got.Attestation)

	// Refuses to replace without force.
	require.Error(t, SaveParams(path, want, false))
	require.NoError(t, SaveParams(path, want, true))
}

func TestPublicParamsHaveNoTrapdoor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "public.yaml")
	g := testGenesis()

	require.NoError(t, SaveParams(path, accumulator.Genesis{Params: g.Params, Attestation: g.Attestation}, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "phi")

	got, err := LoadParams(path)
	require.NoError(t, err)
	assert.Nil(t, got.Trapdoor)
}

func TestLoadParamsRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not yaml", "n: [unclosed"},
		{"bad hex n", "n: xyz\ng: \"10001\"\n"},
		{"bad hex phi", "n: \"3b9aca07\"\ng: \"10001\"\nphi: nope\n"},
		{"missing g", "n: \"ddf7c8a6f0b4e3\"\n"},
		{"generator one", "n: \"ddf7c8a6f0b4e3\"\ng: \"1\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "params.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))

			_, err := LoadParams(path)
			require.Error(t, err)
		})
	}
}

func TestLoadParamsMissingFile(t *testing.T) {
	_, err := LoadParams(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
