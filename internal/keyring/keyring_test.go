package keyring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestSecretLifecycle(t *testing.T) {
	keyring.MockInit()

	has, err := HasSecret("key:login")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = GetSecret("key:login")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, SetSecret("key:login", "payload"))

	has, err = HasSecret("key:login")
	require.NoError(t, err)
	assert.True(t, has)

	secret, err := GetSecret("key:login")
	require.NoError(t, err)
	assert.Equal(t, "payload", secret)

	require.NoError(t, DeleteSecret("key:login"))
	assert.ErrorIs(t, DeleteSecret("key:login"), ErrNotFound)
}

func TestUnreachableKeyring(t *testing.T) {
	keyring.MockInitWithError(assert.AnError)

	has, err := HasSecret("key:login")
	assert.False(t, has)
	assert.ErrorIs(t, err, assert.AnError)
}
