package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPasswordConfigDefaults(t *testing.T) {
	t.Setenv("BCRYPT_COST", "")
	t.Setenv("PASSWORD_PEPPER", "")

	cfg, err := NewPasswordConfig()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Empty(t, cfg.Pepper)
}

func TestNewPasswordConfigErrors(t *testing.T) {
	t.Run("non-numeric cost", func(t *testing.T) {
		t.Setenv("BCRYPT_COST", "high")
		_, err := NewPasswordConfig()
		assert.Error(t, err)
	})

	t.Run("cost below range", func(t *testing.T) {
		t.Setenv("BCRYPT_COST", "4")
		_, err := NewPasswordConfig()
		assert.Error(t, err)
	})

	t.Run("cost above range", func(t *testing.T) {
		t.Setenv("BCRYPT_COST", "20")
		_, err := NewPasswordConfig()
		assert.Error(t, err)
	})
}

func TestHashAndVerifyPassword(t *testing.T) {
	cfg := &PasswordConfig{BcryptCost: 10}

	hash, err := cfg.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, cfg.VerifyPassword("correct horse battery staple", hash))
	assert.False(t, cfg.VerifyPassword("wrong password", hash))
}

func TestVerifyPasswordPepper(t *testing.T) {
	peppered := &PasswordConfig{BcryptCost: 10, Pepper: "global-secret"}
	plain := &PasswordConfig{BcryptCost: 10}

	hash, err := peppered.HashPassword("hunter2")
	require.NoError(t, err)

	assert.True(t, peppered.VerifyPassword("hunter2", hash))
	assert.False(t, plain.VerifyPassword("hunter2", hash), "hash without pepper must not verify")
}
