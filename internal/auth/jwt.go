package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"

	apierr "github.com/hanpama/gqlplug/internal/apierr"
)

// ErrInvalidToken is returned for a bearer token that fails verification.
var ErrInvalidToken = apierr.Extended("Invalid token", map[string]any{"code": "UNAUTHENTICATED"})

// JWTConfig configures JWT.
type JWTConfig struct {
	// Secret verifies HMAC signatures.
	Secret   []byte
	Issuer   string
	Audience string
	// Header is the incoming metadata key carrying "Bearer <token>".
	// Default: "authorization".
	Header string
	// LevelClaim holds an AuthorizationLevel name. Default: "level".
	LevelClaim string
	// RoleClaim holds a role name looked up in Roles. Default: "role".
	RoleClaim string
	Roles     map[string]Level
}

// JWT derives the requester level and session subject from a bearer token
// found in the incoming request metadata. Requests without a token are
// anonymous.
type JWT struct {
	cfg    JWTConfig
	parser *jwt.Parser
}

func NewJWT(cfg JWTConfig) *JWT {
	if cfg.Header == "" {
		cfg.Header = "authorization"
	}
	cfg.Header = strings.ToLower(cfg.Header)
	if cfg.LevelClaim == "" {
		cfg.LevelClaim = "level"
	}
	if cfg.RoleClaim == "" {
		cfg.RoleClaim = "role"
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &JWT{cfg: cfg, parser: jwt.NewParser(opts...)}
}

func (j *JWT) claims(ctx context.Context) (jwt.MapClaims, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, nil
	}
	values := md.Get(j.cfg.Header)
	if len(values) == 0 {
		return nil, nil
	}
	token, found := strings.CutPrefix(values[0], "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	claims := jwt.MapClaims{}
	_, err := j.parser.ParseWithClaims(strings.TrimSpace(token), claims, func(*jwt.Token) (any, error) {
		return j.cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// Level is an Extractor.
func (j *JWT) Level(ctx context.Context) (Level, error) {
	claims, err := j.claims(ctx)
	if err != nil || claims == nil {
		return Public, err
	}
	if name, ok := claims[j.cfg.LevelClaim].(string); ok {
		l, err := ParseLevel(name)
		if err != nil {
			return Public, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		return l, nil
	}
	if role, ok := claims[j.cfg.RoleClaim].(string); ok {
		l, ok := j.cfg.Roles[role]
		if !ok {
			return Public, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
		}
		return l, nil
	}
	return Public, nil
}

// Subject returns the token's sub claim, "" for anonymous requests. It is
// suitable as a cache session extractor.
func (j *JWT) Subject(ctx context.Context) (string, error) {
	claims, err := j.claims(ctx)
	if err != nil || claims == nil {
		return "", err
	}
	return claims.GetSubject()
}
