package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	manager := NewJWTManager("test-secret", 1)

	tokenString, err := manager.GenerateToken("admin")
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := manager.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	tokenString, err := NewJWTManager("secret-a", 1).GenerateToken("admin")
	require.NoError(t, err)

	_, err = NewJWTManager("secret-b", 1).VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	_, err := NewJWTManager("secret", 1).VerifyToken("not.a.token")
	assert.Error(t, err)
}
