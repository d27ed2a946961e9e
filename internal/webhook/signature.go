package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" on every delivery.
const SignatureHeader = "Trackdrop-Signature"

var (
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrSignatureExpired   = errors.New("signature timestamp outside tolerance")
)

// Sign returns the hex HMAC-SHA256 of "<unix>.<payload>".
func Sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func FormatHeader(payload []byte, secret string, ts time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), Sign(payload, secret, ts))
}

// ParseHeader extracts the timestamp and every v1 signature from a header value.
func ParseHeader(header string) (time.Time, []string, error) {
	var (
		ts   time.Time
		sigs []string
	)
	for _, part := range strings.Split(header, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			unix, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return time.Time{}, nil, fmt.Errorf("%w: bad timestamp %q", ErrMalformedSignature, val)
			}
			ts = time.Unix(unix, 0)
		case "v1":
			sigs = append(sigs, val)
		}
	}
	if ts.IsZero() {
		return time.Time{}, nil, fmt.Errorf("%w: missing timestamp", ErrMalformedSignature)
	}
	if len(sigs) == 0 {
		return time.Time{}, nil, fmt.Errorf("%w: missing signature", ErrMalformedSignature)
	}
	return ts, sigs, nil
}

// Verify checks a received header against payload. Receivers use it with the
// shared secret; a tolerance of zero disables the age check.
func Verify(header string, payload []byte, secret string, tolerance time.Duration, now time.Time) error {
	ts, sigs, err := ParseHeader(header)
	if err != nil {
		return err
	}
	if tolerance > 0 {
		age := now.Sub(ts)
		if age > tolerance || age < -tolerance {
			return ErrSignatureExpired
		}
	}

	want := []byte(Sign(payload, secret, ts))
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), want) {
			return nil
		}
	}
	return ErrSignatureMismatch
}
