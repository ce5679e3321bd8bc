// Package utils holds small string and display helpers shared by the host
// and hostcontext packages and main.
package utils

import (
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// SplitLines takes a multiline string and splits it on newlines, stripping
// \r's along the way.
func SplitLines(multilineString string) []string {
	multilineString = strings.Replace(multilineString, "\r", "", -1)
	if multilineString == "" || multilineString == "\n" {
		return make([]string, 0)
	}
	lines := strings.Split(multilineString, "\n")
	if lines[len(lines)-1] == "" {
		return lines[:len(lines)-1]
	}
	return lines
}

// WithPadding pads a string with spaces up to the given display width.
func WithPadding(str string, padding int) string {
	uncoloredStr := Decolorise(str)
	if padding < runewidth.StringWidth(uncoloredStr) {
		return str
	}
	return str + strings.Repeat(" ", padding-runewidth.StringWidth(uncoloredStr))
}

// ColoredString takes a string and a colour attribute and returns a colored
// string with that attribute.
func ColoredString(str string, colorAttribute color.Attribute) string {
	if colorAttribute == color.FgWhite {
		return str
	}
	colour := color.New(colorAttribute)
	return colour.SprintFunc()(str)
}

var ansiEscape = regexp.MustCompile(`\x1B\[([0-9]{1,2}(;[0-9]{1,2})?)?[mK]`)

// Decolorise strips a string of ANSI color escapes.
func Decolorise(str string) string {
	return ansiEscape.ReplaceAllString(str, "")
}

// Max returns the maximum of two integers.
func Max(x, y int) int {
	if x > y {
		return x
	}
	return y
}

// Esc1 escapes a string for inclusion inside single shell quotes, by
// replacing every `'` with `'\''`: close the quote, emit an escaped
// quote, reopen the quote.
func Esc1(value string) string {
	return strings.Replace(value, "'", `'\''`, -1)
}

// Quoted wraps value in single quotes, escaping embedded quotes via Esc1.
// If value is empty, it still returns a pair of empty quotes so the shell
// sees an explicit empty argument.
func Quoted(value string) string {
	return "'" + Esc1(value) + "'"
}

// SafeTruncate truncates str to at most limit bytes.
func SafeTruncate(str string, limit int) string {
	if len(str) > limit {
		return str[0:limit]
	}
	return str
}
