package posts

import (
	"encoding/base64"
	"strconv"
	"time"
)

// EncodeCursor turns a post's creation time into an opaque page token.
func EncodeCursor(createdAt time.Time) string {
	micros := strconv.FormatInt(createdAt.UnixMicro(), 10)
	return base64.RawURLEncoding.EncodeToString([]byte(micros))
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(cursor string) (time.Time, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, ErrInvalidCursor
	}
	micros, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || micros <= 0 {
		return time.Time{}, ErrInvalidCursor
	}
	return time.UnixMicro(micros).UTC(), nil
}
