package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissing  = errors.New("signature missing")
	ErrMismatch = errors.New("signature mismatch")
	ErrStale    = errors.New("timestamp outside tolerance")
	ErrNoSecret = errors.New("signing secret is not configured")
)

// Sign returns hex(hmac-sha256(secret, parts...)).
func Sign(secret []byte, parts ...[]byte) string {
	mac := hmac.New(sha256.New, secret)
	for _, p := range parts {
		mac.Write(p)
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal compares two hex digests in constant time.
func Equal(expected, got string) bool {
	a, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(got)))
	if err != nil {
		return false
	}
	b, err := hex.DecodeString(expected)
	if err != nil {
		return false
	}
	return hmac.Equal(a, b)
}

// CheckSkew rejects unix timestamps further than tolerance from now in either direction.
func CheckSkew(unix int64, now time.Time, tolerance time.Duration) error {
	ts := time.Unix(unix, 0)
	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return ErrStale
	}
	return nil
}

// VerifyTimestamped checks the X-Signature scheme: hex(hmac(secret, body+timestamp)).
func VerifyTimestamped(secret, body []byte, timestamp, sig string, now time.Time, tolerance time.Duration) error {
	if len(secret) == 0 {
		return ErrNoSecret
	}
	if sig == "" || timestamp == "" {
		return ErrMissing
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrStale
	}
	if err := CheckSkew(unix, now, tolerance); err != nil {
		return err
	}
	if !Equal(Sign(secret, body, []byte(timestamp)), sig) {
		return ErrMismatch
	}
	return nil
}

// SortedQuery renders fields as k1=v1&k2=v2 with keys in lexical order.
func SortedQuery(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	return b.String()
}
