package filecheck

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listing = `fn add(a: u64, b: u64) -> u64 {
entry(v0: u64, v1: u64):
    v2 = add u64 v0, v1
    v3 = mul u64 v2, v0
    ret u64 v3
}
fn zero() -> u64 {
entry():
    v0 = const u64 0
    ret u64 v0
}
`

func TestCheckInOrder(t *testing.T) {
	assert.NoError(t, Match(`
check: fn add
check: ret u64
check: fn zero
`, listing))

	err := Match(`
check: fn zero
check: fn add
`, listing)
	var mm *Mismatch
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, "fn add", mm.Directive.Pattern)
	assert.Equal(t, "no match", mm.Reason)
}

func TestNextAndSameLine(t *testing.T) {
	assert.NoError(t, Match(`
check: fn add
nextln: entry(
sameln: v1: u64
nextln: add u64
`, listing))

	err := Match(`
check: fn add
nextln: v2 = add
`, listing)
	var mm *Mismatch
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, Next, mm.Directive.Kind)
	assert.Equal(t, 1, mm.InputLine)

	assert.Error(t, Match(`
check: v2 = add
sameln: v0, v1
sameln: v0
`, listing))
}

func TestNotBetweenMatches(t *testing.T) {
	assert.NoError(t, Match(`
check: fn zero
not: add
check: ret
`, listing))

	err := Match(`
check: fn add
not: mul
check: ret
`, listing)
	var mm *Mismatch
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, "excluded pattern found", mm.Reason)
	assert.Equal(t, 3, mm.InputLine)

	// a trailing not covers the rest of the input
	assert.Error(t, Match(`
check: fn add
not: const
`, listing))
	assert.NoError(t, Match(`
check: fn zero
not: mul
`, listing))
}

func TestUnordered(t *testing.T) {
	assert.NoError(t, Match(`
check: fn add
unordered: mul u64
unordered: add u64
check: ret u64 v3
`, listing))

	// both members may not claim the same line
	assert.Error(t, Match("check: a\nunordered: x\nunordered: x", "a x\nb"))
	assert.NoError(t, Match("check: a\nunordered: x\nunordered: x", "a x\nb x"))
}

func TestCapturesAndRegexes(t *testing.T) {
	assert.NoError(t, Match(`
regex: V=v[0-9]+
check: $(sum=v[0-9]+) = add u64 $(V), $(V)
check: mul u64 $(sum), v0
`, listing))

	assert.Error(t, Match(`
check: $(sum=v[0-9]+) = add
check: ret u64 $(sum)
`, listing))

	assert.NoError(t, Match(`check: = const u64 $(n=(0|1)) ret`, "v0 = const u64 0 ret"))
}

func TestBlankRuns(t *testing.T) {
	assert.NoError(t, Match("check: movi $r16 1", "0003  movi   $r16\t1"))
	assert.Error(t, Match("check: movi $r16 1", "movi$r16 1"))
}

func TestParseErrors(t *testing.T) {
	for _, text := range []string{
		"",
		"bogus: x",
		"check:",
		"nextln: x",
		"regex: 1x=y",
		"regex: x=(",
		"no directive here",
	} {
		_, err := Parse(text)
		assert.Error(t, err, text)
	}

	assert.Error(t, Match("check: $(x", "x"))
	assert.Error(t, Match("check: $(undefined)", "x"))
	assert.Error(t, Match("check: $(a=x) $(a=y)", "x y"))
}
