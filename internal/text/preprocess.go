// Package text provides the text normalization shared by the linguistic frontend, the
// reference conditioning builder and the result cache key.
package text

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// NumberBaseTen represents the base for decimal number system.
	NumberBaseTen = 10
	// NumberBaseTwenty represents the boundary for teen numbers.
	NumberBaseTwenty = 20
	// NumberBaseHundred represents the base for hundreds.
	NumberBaseHundred = 100
	// NumberBaseThousand represents the base for thousands.
	NumberBaseThousand = 1000
	// MaxNumberForWords represents the maximum number that can be converted to words.
	MaxNumberForWords = 999999
)

// DefaultTerminal is appended to text that lacks a sentence-terminal mark.
const DefaultTerminal = "."

const (
	numberRegexPattern     = `\d+`
	whitespaceRegexPattern = `\s+`
)

// terminalMarks end a sentence for the frontend and the chunker.
var terminalMarks = map[rune]struct{}{
	'。': {}, '.': {}, '!': {}, '?': {}, '！': {}, '？': {},
}

// Preprocessor normalizes free text before phoneme conversion.
type Preprocessor struct {
	numberPattern        *regexp.Regexp
	whitespacePattern    *regexp.Regexp
	abbreviationReplacer *strings.Replacer
	punctuationReplacer  *strings.Replacer
}

// NewPreprocessor creates a preprocessor with compiled patterns and replacers.
func NewPreprocessor() *Preprocessor {
	abbreviations := []string{
		"Mr.", "Mister",
		"Mrs.", "Misses",
		"Ms.", "Miss",
		"Dr.", "Doctor",
		"St.", "Saint",
		"Co.", "Company",
		"Ltd.", "Limited",
		"Corp.", "Corporation",
		"Inc.", "Incorporated",
	}

	return &Preprocessor{
		numberPattern:        regexp.MustCompile(numberRegexPattern),
		whitespacePattern:    regexp.MustCompile(whitespaceRegexPattern),
		abbreviationReplacer: strings.NewReplacer(abbreviations...),
		punctuationReplacer: strings.NewReplacer(
			"—", "-", "–", "-", "‒", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize applies NFC, abbreviation and number expansion, quote and dash folding,
// whitespace collapsing and removal of repeated punctuation. It does not add a
// terminal mark.
func (p *Preprocessor) Normalize(input string) string {
	if input == "" {
		return input
	}

	normalized := norm.NFC.String(input)
	normalized = p.abbreviationReplacer.Replace(normalized)
	normalized = p.normalizeNumbers(normalized)
	normalized = p.punctuationReplacer.Replace(normalized)
	normalized = p.whitespacePattern.ReplaceAllString(normalized, " ")
	normalized = collapsePunctuation(normalized)

	return strings.TrimSpace(normalized)
}

// Canonical is the normalization used for cache keys: NFC with surrounding whitespace
// removed. It is stable across releases; changing it invalidates every cached entry.
func Canonical(input string) string {
	return strings.TrimSpace(norm.NFC.String(input))
}

// EnsureTerminal trims text and appends DefaultTerminal unless it already ends with a
// sentence-terminal mark. The frontend drops the final token of unterminated input.
func EnsureTerminal(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	last, _ := utf8.DecodeLastRuneInString(trimmed)
	if IsTerminalMark(last) {
		return trimmed
	}

	return trimmed + DefaultTerminal
}

// IsTerminalMark reports whether r ends a sentence.
func IsTerminalMark(r rune) bool {
	_, ok := terminalMarks[r]

	return ok
}

func (p *Preprocessor) normalizeNumbers(input string) string {
	return p.numberPattern.ReplaceAllStringFunc(input, func(s string) string {
		num, err := strconv.Atoi(s)
		if err != nil {
			return s
		}

		return integerToWords(num)
	})
}

// collapsePunctuation keeps the first of a run of punctuation marks.
func collapsePunctuation(input string) string {
	var (
		builder      strings.Builder
		lastWasPunct bool
	)

	builder.Grow(len(input))

	for _, char := range input {
		isPunct := unicode.IsPunct(char)
		if !isPunct || !lastWasPunct {
			builder.WriteRune(char)
		}

		lastWasPunct = isPunct
	}

	return builder.String()
}

type numberConverter struct {
	ones  []string
	teens []string
	tens  []string
}

func newNumberConverter() *numberConverter {
	return &numberConverter{
		ones: []string{
			"", "one", "two", "three", "four", "five",
			"six", "seven", "eight", "nine",
		},
		teens: []string{
			"ten", "eleven", "twelve", "thirteen", "fourteen",
			"fifteen", "sixteen", "seventeen", "eighteen", "nineteen",
		},
		tens: []string{
			"", "", "twenty", "thirty", "forty", "fifty",
			"sixty", "seventy", "eighty", "ninety",
		},
	}
}

func (nc *numberConverter) underHundred(num int) string {
	switch {
	case num < NumberBaseTen:
		return nc.ones[num]
	case num < NumberBaseTwenty:
		return nc.teens[num-NumberBaseTen]
	}

	result := nc.tens[num/NumberBaseTen]
	if num%NumberBaseTen > 0 {
		result += " " + nc.ones[num%NumberBaseTen]
	}

	return result
}

func (nc *numberConverter) underThousand(num int) []string {
	var parts []string

	if hundreds := num / NumberBaseHundred; hundreds > 0 {
		parts = append(parts, nc.ones[hundreds]+" hundred")
	}

	if rest := num % NumberBaseHundred; rest > 0 {
		parts = append(parts, nc.underHundred(rest))
	}

	return parts
}

// integerToWords spells out 0..MaxNumberForWords in English; other values are
// returned as digits.
func integerToWords(number int) string {
	if number < 0 || number > MaxNumberForWords {
		return strconv.Itoa(number)
	}

	if number == 0 {
		return "zero"
	}

	converter := newNumberConverter()

	var parts []string

	if thousands := number / NumberBaseThousand; thousands > 0 {
		parts = append(parts, converter.underThousand(thousands)...)
		parts = append(parts, "thousand")
	}

	parts = append(parts, converter.underThousand(number%NumberBaseThousand)...)

	return strings.Join(parts, " ")
}
