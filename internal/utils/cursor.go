package utils

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

var ErrBadCursor = errors.New("malformed pagination cursor")

// EncodeCursor packs a keyset position into an opaque URL-safe string.
func EncodeCursor(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor unpacks a cursor produced by EncodeCursor.
func DecodeCursor(s string, dest any) error {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return ErrBadCursor
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return ErrBadCursor
	}
	return nil
}
