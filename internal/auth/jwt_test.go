package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
)

var secret = []byte("test-secret")

func signed(t *testing.T, claims jwt.MapClaims, key []byte) context.Context {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

func TestJWT(t *testing.T) {
	j := NewJWT(JWTConfig{Secret: secret, Issuer: "gqlplug", Roles: map[string]Level{"editor": Admin}})
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		ctx     context.Context
		level   Level
		subject string
		wantErr bool
	}{
		{"anonymous", context.Background(), Public, "", false},
		{"level claim", signed(t, jwt.MapClaims{"sub": "u1", "iss": "gqlplug", "level": "USER3", "exp": exp}, secret), User3, "u1", false},
		{"role claim", signed(t, jwt.MapClaims{"sub": "u2", "iss": "gqlplug", "role": "editor", "exp": exp}, secret), Admin, "u2", false},
		{"no claims", signed(t, jwt.MapClaims{"sub": "u3", "iss": "gqlplug"}, secret), Public, "u3", false},
		{"wrong key", signed(t, jwt.MapClaims{"sub": "u1", "iss": "gqlplug"}, []byte("other")), Public, "", true},
		{"wrong issuer", signed(t, jwt.MapClaims{"sub": "u1", "iss": "evil"}, secret), Public, "", true},
		{"expired", signed(t, jwt.MapClaims{"sub": "u1", "iss": "gqlplug", "exp": time.Now().Add(-time.Hour).Unix()}, secret), Public, "", true},
		{"unknown role", signed(t, jwt.MapClaims{"sub": "u1", "iss": "gqlplug", "role": "pirate"}, secret), Public, "u1", true},
		{"not bearer", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic abc")), Public, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := j.Level(tt.ctx)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidToken)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.level, l)
			}
			sub, err := j.Subject(tt.ctx)
			if err == nil {
				assert.Equal(t, tt.subject, sub)
			}
		})
	}
}
