package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nooterra/trustcore/pkg/errs"
)

func TestNonEmptyString_TrimsAndRejectsEmpty(t *testing.T) {
	v, err := NonEmptyString("name", "  hi  ", 0)
	require.NoError(t, err)
	require.Equal(t, "hi", v)

	_, err = NonEmptyString("name", "   ", 0)
	require.Equal(t, "FIELD_EMPTY", errs.CodeOf(err))
}

func TestNonEmptyString_MaxLen(t *testing.T) {
	_, err := NonEmptyString("name", "abcdef", 3)
	require.Equal(t, "FIELD_TOO_LONG", errs.CodeOf(err))
}

func TestIdentifier_RejectsBadChars(t *testing.T) {
	_, err := Identifier("agentId", "abc def", 0)
	require.Equal(t, "FIELD_FORMAT_INVALID", errs.CodeOf(err))

	v, err := Identifier("agentId", "agent:123_abc-x/y", 0)
	require.NoError(t, err)
	require.Equal(t, "agent:123_abc-x/y", v)
}

func TestTimestamp_NormalizesToRFC3339Nano(t *testing.T) {
	v, err := Timestamp("createdAt", "2026-01-02T03:04:05Z")
	require.NoError(t, err)
	require.Equal(t, "2026-01-02T03:04:05Z", v)

	_, err = Timestamp("createdAt", "not-a-date")
	require.Equal(t, "TIMESTAMP_INVALID", errs.CodeOf(err))
}

func TestHexSHA256_LowercasesAndValidates(t *testing.T) {
	hash := "AB" + repeat("0", 62)
	v, err := HexSHA256("artifactHash", hash)
	require.NoError(t, err)
	require.Equal(t, "ab"+repeat("0", 62), v)

	_, err = HexSHA256("artifactHash", "zz")
	require.Equal(t, "HEX_SHA256_INVALID", errs.CodeOf(err))
}

func TestCurrency_DefaultsToUSD(t *testing.T) {
	v, err := Currency("currency", "")
	require.NoError(t, err)
	require.Equal(t, "USD", v)

	v, err = Currency("currency", "eur")
	require.NoError(t, err)
	require.Equal(t, "EUR", v)

	_, err = Currency("currency", "U")
	require.Equal(t, "CURRENCY_INVALID", errs.CodeOf(err))
}

func TestPositiveSafeInt(t *testing.T) {
	_, err := PositiveSafeInt("amountCents", 0)
	require.Equal(t, "INT_NOT_POSITIVE", errs.CodeOf(err))

	_, err = PositiveSafeInt("amountCents", MaxSafeInt+1)
	require.Equal(t, "INT_NOT_SAFE", errs.CodeOf(err))

	v, err := PositiveSafeInt("amountCents", 500)
	require.NoError(t, err)
	require.Equal(t, int64(500), v)
}

func TestNonNegativeSafeInt(t *testing.T) {
	v, err := NonNegativeSafeInt("maxTotalCents", 0)
	require.NoError(t, err)
	require.Equal(t, int64(0), v)

	_, err = NonNegativeSafeInt("maxTotalCents", -1)
	require.Equal(t, "INT_NEGATIVE", errs.CodeOf(err))
}

func TestPlainObject_RejectsArrays(t *testing.T) {
	_, err := PlainObject("metadata", []interface{}{1, 2})
	require.Equal(t, "NOT_PLAIN_OBJECT", errs.CodeOf(err))

	m, err := PlainObject("metadata", map[string]interface{}{"a": 1})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"a": 1}, m)

	m, err = PlainObject("metadata", nil)
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestAllowListEnum(t *testing.T) {
	v, err := AllowListEnum("status", "success", "success", "failed")
	require.NoError(t, err)
	require.Equal(t, "success", v)

	_, err = AllowListEnum("status", "pending", "success", "failed")
	require.Equal(t, "ENUM_INVALID", errs.CodeOf(err))
}

func TestDedupedSortedList(t *testing.T) {
	out := DedupedSortedList([]string{"b", "a", "b", "c", "a"})
	require.Equal(t, []string{"a", "b", "c"}, out)

	out = DedupedSortedList(nil)
	require.NotNil(t, out)
	require.Empty(t, out)
}

func TestNonEmptySortedSet(t *testing.T) {
	_, err := NonEmptySortedSet("allowedRiskClasses", nil)
	require.Equal(t, "SET_EMPTY", errs.CodeOf(err))

	out, err := NonEmptySortedSet("allowedRiskClasses", []string{"compute", "read", "read"})
	require.NoError(t, err)
	require.Equal(t, []string{"compute", "read"}, out)
}

func TestSubsetOf(t *testing.T) {
	err := SubsetOf("allowedRiskClasses", []string{"read", "compute"}, "read", "compute", "action", "financial")
	require.NoError(t, err)

	err = SubsetOf("allowedRiskClasses", []string{"read", "exotic"}, "read", "compute", "action", "financial")
	require.Equal(t, "SET_NOT_SUBSET", errs.CodeOf(err))
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
