package serverutils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyToken(t *testing.T) {
	principal := uuid.New()

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{
			name:  "valid token with sub claim",
			token: signToken(t, jwt.MapClaims{"sub": principal.String(), "exp": time.Now().Add(time.Hour).Unix()}, testSecret),
		},
		{
			name:  "valid token with legacy user_id claim",
			token: signToken(t, jwt.MapClaims{"user_id": principal.String(), "exp": time.Now().Add(time.Hour).Unix()}, testSecret),
		},
		{
			name:    "expired token",
			token:   signToken(t, jwt.MapClaims{"sub": principal.String(), "exp": time.Now().Add(-time.Hour).Unix()}, testSecret),
			wantErr: true,
		},
		{
			name:    "wrong secret",
			token:   signToken(t, jwt.MapClaims{"sub": principal.String(), "exp": time.Now().Add(time.Hour).Unix()}, "other-secret"),
			wantErr: true,
		},
		{
			name:    "missing principal claim",
			token:   signToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, testSecret),
			wantErr: true,
		},
		{
			name:    "principal is not a uuid",
			token:   signToken(t, jwt.MapClaims{"sub": "bob", "exp": time.Now().Add(time.Hour).Unix()}, testSecret),
			wantErr: true,
		},
		{
			name:    "garbage token",
			token:   "not.a.jwt",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := VerifyToken(tt.token, testSecret)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, principal, got)
		})
	}
}

func TestVerifyTokenRejectsUnsignedAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": uuid.New().String()})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = VerifyToken(signed, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
