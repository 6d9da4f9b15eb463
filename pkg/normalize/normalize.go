// Package normalize implements the shared field normalizers every schema
// in this module calls before canonicalizing and hashing (spec §4.2,
// component C2). Each function either returns a normalized value or a
// typed *errs.E whose Code identifies the rule that failed; normalize
// failures are always fatal to the current call, never partial.
package normalize

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/nooterra/trustcore/pkg/errs"
)

var (
	identifierRe = regexp.MustCompile(`^[A-Za-z0-9:_.\-/]+$`)
	hexSHA256Re  = regexp.MustCompile(`^[0-9a-f]{64}$`)
	currencyRe   = regexp.MustCompile(`^[A-Z][A-Z0-9_]{2,11}$`)
)

// MaxSafeInt mirrors the IEEE-754 double safe-integer bound (2^53 - 1),
// the ceiling every amount/seq/length field in the wire format respects
// so a JSON-number round trip through another conformant implementation
// never loses precision.
const MaxSafeInt int64 = 1<<53 - 1

// NonEmptyString trims surrounding whitespace, rejects the empty result,
// and enforces maxLen (0 means unbounded).
func NonEmptyString(field, v string, maxLen int) (string, error) {
	t := strings.TrimSpace(v)
	if t == "" {
		return "", errs.New("FIELD_EMPTY", field+" must be a non-empty string")
	}
	if maxLen > 0 && len(t) > maxLen {
		return "", errs.New("FIELD_TOO_LONG", field+" exceeds maximum length")
	}
	return t, nil
}

// Identifier normalizes a bounded identifier against the default
// identifier grammar `^[A-Za-z0-9:_.\-/]+$` (spec §3). Callers needing a
// tighter per-record variant should use IdentifierMatching instead.
func Identifier(field, v string, maxLen int) (string, error) {
	return IdentifierMatching(field, v, maxLen, identifierRe)
}

// IdentifierMatching normalizes an identifier against a caller-supplied
// tighter regex, per spec §3's "or a tighter variant per record".
func IdentifierMatching(field, v string, maxLen int, re *regexp.Regexp) (string, error) {
	t, err := NonEmptyString(field, v, maxLen)
	if err != nil {
		return "", err
	}
	if !re.MatchString(t) {
		return "", errs.New("FIELD_FORMAT_INVALID", field+" does not match the required identifier format")
	}
	return t, nil
}

// Timestamp parses v as an ISO-8601 date-time and re-serializes it to
// the platform's canonical RFC3339Nano form (spec §3, §4.2).
func Timestamp(field, v string) (string, error) {
	t, err := parseISO8601(v)
	if err != nil {
		return "", errs.Wrap("TIMESTAMP_INVALID", field+" is not a valid ISO-8601 date-time", err)
	}
	return t.UTC().Format(time.RFC3339Nano), nil
}

func parseISO8601(v string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z0700",
	}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// HexSHA256 lowercases and validates a 64-char hex SHA-256 digest.
func HexSHA256(field, v string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(v))
	if !hexSHA256Re.MatchString(t) {
		return "", errs.New("HEX_SHA256_INVALID", field+" must be a 64-character lowercase hex SHA-256 digest")
	}
	return t, nil
}

// Currency validates an uppercase currency-like code, defaulting to USD
// when v is empty (spec §3).
func Currency(field, v string) (string, error) {
	if v == "" {
		return "USD", nil
	}
	t := strings.ToUpper(strings.TrimSpace(v))
	if !currencyRe.MatchString(t) {
		return "", errs.New("CURRENCY_INVALID", field+" is not a valid currency code")
	}
	return t, nil
}

// PositiveSafeInt validates v is a strictly positive, IEEE-754-safe
// integer.
func PositiveSafeInt(field string, v int64) (int64, error) {
	if v <= 0 {
		return 0, errs.New("INT_NOT_POSITIVE", field+" must be a positive integer")
	}
	if v > MaxSafeInt {
		return 0, errs.New("INT_NOT_SAFE", field+" exceeds the safe integer range")
	}
	return v, nil
}

// NonNegativeSafeInt validates v is a non-negative, IEEE-754-safe
// integer.
func NonNegativeSafeInt(field string, v int64) (int64, error) {
	if v < 0 {
		return 0, errs.New("INT_NEGATIVE", field+" must not be negative")
	}
	if v > MaxSafeInt {
		return 0, errs.New("INT_NOT_SAFE", field+" exceeds the safe integer range")
	}
	return v, nil
}

// PlainObject rejects arrays and non-string-keyed maps reaching a field
// documented as a plain object (spec §4.2's "plain-object check").
func PlainObject(field string, v interface{}) (map[string]interface{}, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, errs.New("NOT_PLAIN_OBJECT", field+" must be a plain object, not an array or foreign type")
	}
	return m, nil
}

// AllowListEnum validates v is a member of the closed allowed set.
func AllowListEnum(field, v string, allowed ...string) (string, error) {
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", errs.New("ENUM_INVALID", field+" is not one of the allowed values")
}

// DedupedSortedList removes duplicates from items and returns them
// sorted by code-point (spec §4.1 property (c): "deduped and sorted by
// code-point"). An empty result is returned as an empty (not nil) slice
// so canonical encoding always serializes `[]`.
func DedupedSortedList(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

// NonEmptySortedSet is DedupedSortedList plus a non-empty check, used
// for fields like AuthorityGrant.v1's allowedRiskClasses (spec §3:
// "non-empty, sorted, deduped").
func NonEmptySortedSet(field string, items []string) ([]string, error) {
	out := DedupedSortedList(items)
	if len(out) == 0 {
		return nil, errs.New("SET_EMPTY", field+" must contain at least one element")
	}
	return out, nil
}

// SubsetOf validates every element of items is a member of universe,
// used for fields documented with the ⊆ operator (e.g. scope.allowedRiskClasses).
func SubsetOf(field string, items []string, universe ...string) error {
	allowed := make(map[string]struct{}, len(universe))
	for _, u := range universe {
		allowed[u] = struct{}{}
	}
	for _, it := range items {
		if _, ok := allowed[it]; !ok {
			return errs.New("SET_NOT_SUBSET", field+" contains a value outside the allowed universe")
		}
	}
	return nil
}
