package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// maxSafeInteger is the largest integer every IEEE-754 double represents exactly.
const maxSafeInteger = 1 << 53

// Keyer generates deterministic cache keys from accessor parameters.
//
// Contract:
// - Determinism: same inputs must produce same key, regardless of map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key generates a cache key from an accessor name and its parameters.
	Key(name string, params any) (string, error)
}

// DefaultKeyer generates SHA-256 based cache keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key converts params with FromAny and derives the key.
func (k *DefaultKeyer) Key(name string, params any) (string, error) {
	v, err := FromAny(params)
	if err != nil {
		return "", err
	}
	return DeriveKey(name, v)
}

// DeriveKey returns the canonical key for (name, params).
// Format: <name>:<hex SHA-256 of the canonical form>
//
// The digest is fixed width and never contains ':', so the name is always
// recoverable from the key and distinct pairs cannot concatenate to the
// same string.
func DeriveKey(name string, params Value) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	canonical, err := Canonical(params)
	if err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize params for %q: %w", name, err)
	}
	sum := sha256.Sum256(canonical)
	return name + ":" + hex.EncodeToString(sum[:]), nil
}

// Canonical renders v as key-sorted compact JSON.
//
// Map fields holding Absent are omitted, so a missing field and an
// undefined one encode identically. Absent elsewhere encodes as null.
// Numbers follow the ECMAScript rendering used by JSON.stringify, so a
// JavaScript or RFC 8785 implementation derives the same keys.
func Canonical(v Value) ([]byte, error) {
	buf := make([]byte, 0, 64)
	return appendCanonical(buf, v)
}

func appendCanonical(buf []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindAbsent, KindNull:
		return append(buf, "null"...), nil
	case KindBool:
		return strconv.AppendBool(buf, v.b), nil
	case KindNumber:
		return appendNumber(buf, v)
	case KindString:
		return appendString(buf, v.s)
	case KindList:
		buf = append(buf, '[')
		for i, item := range v.list {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = appendCanonical(buf, item); err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
		}
		return append(buf, ']'), nil
	case KindMap:
		buf = append(buf, '{')
		first := true
		for _, k := range v.Keys() {
			field := v.m[k]
			if field.kind == KindAbsent {
				continue
			}
			if !first {
				buf = append(buf, ',')
			}
			first = false
			var err error
			if buf, err = appendString(buf, k); err != nil {
				return nil, err
			}
			buf = append(buf, ':')
			if buf, err = appendCanonical(buf, field); err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
		}
		return append(buf, '}'), nil
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnsupportedValue, v.kind)
	}
}

// appendNumber writes integral values as integers so that Int(1) and
// Float(1.0) canonicalize identically.
func appendNumber(buf []byte, v Value) ([]byte, error) {
	if v.isInt {
		return strconv.AppendInt(buf, v.i, 10), nil
	}
	f := v.f
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: non-finite number", ErrUnsupportedValue)
	}
	if f == math.Trunc(f) && math.Abs(f) < maxSafeInteger {
		// -0 and 0 are the same parameter.
		return strconv.AppendInt(buf, int64(f), 10), nil
	}
	return appendECMAScriptFloat(buf, f), nil
}

// appendECMAScriptFloat formats f the way ECMAScript Number.prototype.toString
// does (and so RFC 8785): shortest round-trip digits, plain notation for
// 1e-6 <= |f| < 1e21, otherwise exponent notation without padding zeros.
func appendECMAScriptFloat(buf []byte, f float64) []byte {
	format := byte('f')
	if abs := math.Abs(f); abs < 1e-6 || abs >= 1e21 {
		format = 'e'
	}
	buf = strconv.AppendFloat(buf, f, format, -1, 64)
	if format == 'e' {
		// 1e-07 becomes 1e-7.
		n := len(buf)
		if n >= 4 && buf[n-4] == 'e' && buf[n-3] == '-' && buf[n-2] == '0' {
			buf[n-2] = buf[n-1]
			buf = buf[:n-1]
		}
	}
	return buf
}

const hexDigits = "0123456789abcdef"

// appendString quotes s escaping only what JSON requires: quote, backslash
// and control characters.
func appendString(buf []byte, s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("%w: invalid UTF-8 string", ErrUnsupportedValue)
	}
	buf = append(buf, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			buf = append(buf, '\\', '"')
		case c == '\\':
			buf = append(buf, '\\', '\\')
		case c == '\n':
			buf = append(buf, '\\', 'n')
		case c == '\r':
			buf = append(buf, '\\', 'r')
		case c == '\t':
			buf = append(buf, '\\', 't')
		case c == '\b':
			buf = append(buf, '\\', 'b')
		case c == '\f':
			buf = append(buf, '\\', 'f')
		case c < 0x20:
			buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		default:
			buf = append(buf, c)
		}
	}
	return append(buf, '"'), nil
}

// Ensure DefaultKeyer implements Keyer
var _ Keyer = (*DefaultKeyer)(nil)
