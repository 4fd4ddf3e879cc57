package secrets_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankfoundry/shopseo/pkg/secrets"
)

func newSealer(t *testing.T) *secrets.Sealer {
	t.Helper()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	s, err := secrets.NewSealer(key)
	require.NoError(t, err)
	return s
}

func TestSealer_RoundTrip(t *testing.T) {
	t.Parallel()

	s := newSealer(t)
	for _, plain := range []string{"", "shpat_0123456789abcdef", "токен 🌍"} {
		sealed, err := s.Seal("demo.myshopify.com", plain)
		require.NoError(t, err)
		if plain != "" {
			assert.NotContains(t, sealed, plain)
		}

		opened, err := s.Open("demo.myshopify.com", sealed)
		require.NoError(t, err)
		assert.Equal(t, plain, opened)
	}
}

func TestSealer_ScopeIsolation(t *testing.T) {
	t.Parallel()

	s := newSealer(t)
	sealed, err := s.Seal("a.myshopify.com", "shpat_secret")
	require.NoError(t, err)

	_, err = s.Open("b.myshopify.com", sealed)
	assert.ErrorIs(t, err, secrets.ErrDecryptionFailed)
}

func TestSealer_NonceIsRandom(t *testing.T) {
	t.Parallel()

	s := newSealer(t)
	a, err := s.Seal("demo.myshopify.com", "same")
	require.NoError(t, err)
	b, err := s.Seal("demo.myshopify.com", "same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSealer_Errors(t *testing.T) {
	t.Parallel()

	_, err := secrets.NewSealer([]byte("short"))
	assert.ErrorIs(t, err, secrets.ErrInvalidKey)

	_, err = secrets.NewSealerFromConfig(secrets.Config{MasterKey: "%%%"})
	assert.ErrorIs(t, err, secrets.ErrInvalidKey)

	s := newSealer(t)
	_, err = s.Seal("", "x")
	assert.ErrorIs(t, err, secrets.ErrEmptyScope)

	_, err = s.Open("demo.myshopify.com", "not base64!")
	assert.ErrorIs(t, err, secrets.ErrInvalidCiphertext)

	_, err = s.Open("demo.myshopify.com", base64.StdEncoding.EncodeToString([]byte("x")))
	assert.ErrorIs(t, err, secrets.ErrInvalidCiphertext)
}

func TestNewSealerFromConfig(t *testing.T) {
	t.Parallel()

	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	s, err := secrets.NewSealerFromConfig(secrets.Config{MasterKey: base64.StdEncoding.EncodeToString(key)})
	require.NoError(t, err)

	sealed, err := s.Seal("demo.myshopify.com", "tok")
	require.NoError(t, err)
	opened, err := s.Open("demo.myshopify.com", sealed)
	require.NoError(t, err)
	assert.Equal(t, "tok", opened)
}
