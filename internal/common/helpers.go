package common

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Epsilon is the tolerance used when comparing accumulated float scores.
const Epsilon = 1e-9

// Clamp01 limits v to the closed interval [0, 1].
func Clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Round2 rounds to two decimal places for display.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatPoints renders a signed point delta, e.g. "+20.00" or "-10.00".
func FormatPoints(v float64) string {
	return fmt.Sprintf("%+.2f", v)
}

// NowUTC returns the current time truncated to microseconds, the precision
// PostgreSQL keeps for timestamptz.
func NowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// EncodeCursor builds an opaque pagination cursor from a timestamp and id.
func EncodeCursor(at time.Time, id string) string {
	raw := strconv.FormatInt(at.UnixMicro(), 10) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor is the inverse of EncodeCursor. An empty cursor yields zero
// values; anything else that does not decode fails with ErrInvalidCursor.
func DecodeCursor(cursor string) (time.Time, string, error) {
	if cursor == "" {
		return time.Time{}, "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	at, rawID, ok := strings.Cut(string(raw), "|")
	if !ok {
		return time.Time{}, "", fmt.Errorf("%w: missing separator", ErrInvalidCursor)
	}
	micros, err := strconv.ParseInt(at, 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: bad time: %v", ErrInvalidCursor, err)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: bad id: %v", ErrInvalidCursor, err)
	}
	return time.UnixMicro(micros).UTC(), id.String(), nil
}
