package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "provenance/pkg/domain-errors"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("test-signing-key", "provenance", "provenance-api")

	token, err := svc.GenerateAccessToken("alice", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.ReviewerID)
}

func TestValidateExpiredToken(t *testing.T) {
	svc := NewJWTService("test-signing-key", "provenance", "provenance-api")

	token, err := svc.GenerateAccessToken("alice", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
}

func TestValidateRejectsWrongKey(t *testing.T) {
	issuer := NewJWTService("key-one", "provenance", "provenance-api")
	verifier := NewJWTService("key-two", "provenance", "provenance-api")

	token, err := issuer.GenerateAccessToken("alice", time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
}

func TestValidateGarbage(t *testing.T) {
	svc := NewJWTService("test-signing-key", "provenance", "provenance-api")
	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
}
