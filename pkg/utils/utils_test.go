package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSplitLines is a function.
func TestSplitLines(t *testing.T) {
	type scenario struct {
		multilineString string
		expected        []string
	}

	scenarios := []scenario{
		{
			"",
			[]string{},
		},
		{
			"\n",
			[]string{},
		},
		{
			"hello world !\nhello universe !\n",
			[]string{
				"hello world !",
				"hello universe !",
			},
		},
	}

	for _, s := range scenarios {
		assert.EqualValues(t, s.expected, SplitLines(s.multilineString))
	}
}

// TestWithPadding is a function.
func TestWithPadding(t *testing.T) {
	type scenario struct {
		str      string
		padding  int
		expected string
	}

	scenarios := []scenario{
		{
			"hello world !",
			1,
			"hello world !",
		},
		{
			"hello world !",
			14,
			"hello world ! ",
		},
	}

	for _, s := range scenarios {
		assert.EqualValues(t, s.expected, WithPadding(s.str, s.padding))
	}
}

// TestEsc1 is a function.
func TestEsc1(t *testing.T) {
	type scenario struct {
		value    string
		expected string
	}

	scenarios := []scenario{
		{
			"no-quotes-here",
			"no-quotes-here",
		},
		{
			"it's",
			`it'\''s`,
		},
		{
			"''",
			`'\'''\''`,
		},
	}

	for _, s := range scenarios {
		assert.EqualValues(t, s.expected, Esc1(s.value))
	}
}

// TestQuoted is a function.
func TestQuoted(t *testing.T) {
	type scenario struct {
		value    string
		expected string
	}

	scenarios := []scenario{
		{
			"",
			"''",
		},
		{
			"hello",
			"'hello'",
		},
		{
			"it's",
			`'it'\''s'`,
		},
	}

	for _, s := range scenarios {
		assert.EqualValues(t, s.expected, Quoted(s.value))
	}
}

// TestMax is a function.
func TestMax(t *testing.T) {
	assert.Equal(t, 5, Max(5, 3))
	assert.Equal(t, 5, Max(3, 5))
	assert.Equal(t, 5, Max(5, 5))
}

// TestDecolorise is a function.
func TestDecolorise(t *testing.T) {
	assert.Equal(t, "hello", Decolorise("\x1B[31mhello\x1B[0m"))
	assert.Equal(t, "plain", Decolorise("plain"))
}

func TestSafeTruncate(t *testing.T) {
	assert.Equal(t, "abcdefg", SafeTruncate("abcdefghijklmnop", 7))
	assert.Equal(t, "short", SafeTruncate("short", 7))
}
