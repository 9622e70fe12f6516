package payos

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidSignature is returned when a payload signature does not match.
var ErrInvalidSignature = errors.New("payos: invalid signature")

// PaymentRequestSignatureData is the exact string PayOS expects to be signed
// when a payment link is created.
func PaymentRequestSignatureData(amount int64, cancelURL, description string, orderCode int64, returnURL string) string {
	return fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		amount, cancelURL, description, orderCode, returnURL)
}

// Sign returns the lowercase hex HMAC-SHA256 of data under the checksum key.
func Sign(checksumKey, data string) string {
	mac := hmac.New(sha256.New, []byte(checksumKey))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// CanonicalData renders a JSON object as sorted key=value pairs joined by '&'.
// Nulls become empty strings, nested objects and arrays are JSON encoded and
// numbers are kept exactly as they appeared on the wire.
func CanonicalData(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return "", fmt.Errorf("decode signed data: %w", err)
	}
	if fields == nil {
		return "", errors.New("signed data must be a JSON object")
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		value, err := canonicalValue(fields[k])
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", k, err)
		}
		parts = append(parts, k+"="+value)
	}
	return strings.Join(parts, "&"), nil
}

func canonicalValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	}
}

// SignData signs the canonical form of a JSON object.
func SignData(checksumKey string, raw json.RawMessage) (string, error) {
	canonical, err := CanonicalData(raw)
	if err != nil {
		return "", err
	}
	return Sign(checksumKey, canonical), nil
}

// VerifyData checks signature against the canonical form of raw in constant time.
func VerifyData(checksumKey string, raw json.RawMessage, signature string) error {
	expected, err := SignData(checksumKey, raw)
	if err != nil {
		return err
	}
	given := strings.ToLower(strings.TrimSpace(signature))
	if given == "" || !hmac.Equal([]byte(expected), []byte(given)) {
		return ErrInvalidSignature
	}
	return nil
}
