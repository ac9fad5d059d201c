// Package sanitizer normalises free-text input before validation.
package sanitizer

import (
	"regexp"
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var reSerialSeparators = regexp.MustCompile(`[\s_]+`)

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// CollapseWhitespace trims s and folds every whitespace run into one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SanitizeName is used for item, reservation and request titles.
func SanitizeName(input string) string {
	return Pipeline{stripControl, CollapseWhitespace}.Apply(input)
}

// SanitizeText keeps line breaks but drops control characters and
// surrounding whitespace.
func SanitizeText(input string) string {
	return Pipeline{stripControl, strings.TrimSpace}.Apply(input)
}

// SanitizeSerial upper-cases a serial number and joins separators with '-'.
func SanitizeSerial(input string) string {
	p := Pipeline{
		stripControl,
		strings.TrimSpace,
		strings.ToUpper,
		func(s string) string { return reSerialSeparators.ReplaceAllString(s, "-") },
	}
	return p.Apply(input)
}
