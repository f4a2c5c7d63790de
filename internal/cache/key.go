package cache

import (
	"crypto/sha256"
	"encoding/hex"

	jsoniter "github.com/json-iterator/go"
)

// SessionMode partitions cache entries by who may read them.
type SessionMode string

const (
	// NoSession entries were computed for an anonymous request.
	NoSession SessionMode = "no-session"
	// SessionPrivate entries belong to one session only.
	SessionPrivate SessionMode = "session-private"
	// SessionPublic entries were computed with a session present but are
	// shareable among sessioned callers.
	SessionPublic SessionMode = "session-public"
)

// codec encodes key payloads and cached results. Map members are sorted,
// so equal values always encode to equal bytes.
var codec = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	UseNumber:              true,
	ValidateJsonRawMessage: true,
}.Froze()

// KeyInput is everything a cache key is derived from.
type KeyInput struct {
	Source        string         `json:"source"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
	Extra         map[string]any `json:"extra"`
	SessionID     string         `json:"sessionId"`
	Mode          SessionMode    `json:"mode"`
}

// WithMode returns a copy of in tagged with mode. The session ID is dropped
// for NoSession.
func (in KeyInput) WithMode(mode SessionMode) KeyInput {
	in.Mode = mode
	if mode == NoSession {
		in.SessionID = ""
	}
	return in
}

// Key returns the hex sha256 of the canonical JSON form of in.
func Key(in KeyInput) (string, error) {
	if in.Variables == nil {
		in.Variables = map[string]any{}
	}
	if in.Extra == nil {
		in.Extra = map[string]any{}
	}
	b, err := codec.Marshal(in)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
