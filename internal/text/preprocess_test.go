package text_test

import (
	"testing"

	"github.com/book-expert/sovits-service/internal/text"
	"github.com/stretchr/testify/assert"
)

// preprocessorTestCase defines a standard test case for the preprocessor.
type preprocessorTestCase struct {
	name     string
	input    string
	expected string
}

// runPreprocessorTests is a helper function to run table-driven tests for a given
// processing function.
func runPreprocessorTests(
	t *testing.T,
	tests []preprocessorTestCase,
	processFunc func(input string) string,
) {
	t.Helper()

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, processFunc(testCase.input))
		})
	}
}

func TestPreprocessor_Normalize_EmptyInput(t *testing.T) {
	t.Parallel()

	assert.Empty(t, text.NewPreprocessor().Normalize(""))
}

func TestPreprocessor_Normalize_AbbreviationExpansion(t *testing.T) {
	t.Parallel()

	preprocessor := text.NewPreprocessor()
	tests := []preprocessorTestCase{
		{name: "Mr expansion", input: "Mr. Smith", expected: "Mister Smith"},
		{name: "Dr expansion", input: "Dr. Johnson", expected: "Doctor Johnson"},
		{name: "Multiple abbreviations", input: "Mr. and Mrs. Smith", expected: "Mister and Misses Smith"},
		{name: "Inc. expansion", input: "Future Tech Inc.", expected: "Future Tech Incorporated"},
	}

	runPreprocessorTests(t, tests, preprocessor.Normalize)
}

func TestPreprocessor_Normalize_NumberNormalization(t *testing.T) {
	t.Parallel()

	preprocessor := text.NewPreprocessor()
	tests := []preprocessorTestCase{
		{name: "Single digit number", input: "There are 3 cars.", expected: "There are three cars."},
		{name: "Teen number", input: "I have 17 friends.", expected: "I have seventeen friends."},
		{name: "Two-digit number", input: "The answer is 42.", expected: "The answer is forty two."},
		{name: "Hundred number", input: "He has 100 dollars.", expected: "He has one hundred dollars."},
		{
			name:     "Thousand number",
			input:    "About 5000 people attended.",
			expected: "About five thousand people attended.",
		},
		{
			name:     "Maximum number",
			input:    "The max value is 999999.",
			expected: "The max value is nine hundred ninety nine thousand nine hundred ninety nine.",
		},
		{name: "Number over the limit", input: "A million is 1000000.", expected: "A million is 1000000."},
		{name: "Zero", input: "0", expected: "zero"},
	}

	runPreprocessorTests(t, tests, preprocessor.Normalize)
}

func TestPreprocessor_Normalize_WhitespaceAndPunctuation(t *testing.T) {
	t.Parallel()

	preprocessor := text.NewPreprocessor()
	tests := []preprocessorTestCase{
		{name: "Multiple spaces", input: "Hello   world", expected: "Hello world"},
		{name: "Tabs and newlines", input: "Line one\nand\tline two.", expected: "Line one and line two."},
		{name: "Smart quotes", input: "He said “yes”", expected: `He said "yes"`},
		{name: "Em dash", input: "wait — what", expected: "wait - what"},
		{name: "Excessive punctuation", input: "Hello!!! How are you??", expected: "Hello! How are you?"},
		{name: "Repeated CJK terminal", input: "你好。。", expected: "你好。"},
		{name: "NFC composition", input: "cafe\u0301", expected: "caf\u00e9"},
	}

	runPreprocessorTests(t, tests, preprocessor.Normalize)
}

func TestEnsureTerminal(t *testing.T) {
	t.Parallel()

	tests := []preprocessorTestCase{
		{name: "adds period", input: "hello world", expected: "hello world."},
		{name: "keeps period", input: "hello world.", expected: "hello world."},
		{name: "keeps ideographic full stop", input: "你好。", expected: "你好。"},
		{name: "keeps fullwidth question", input: "你好？", expected: "你好？"},
		{name: "comma is not terminal", input: "你好，", expected: "你好，."},
		{name: "trims before checking", input: "  hi!  ", expected: "hi!"},
		{name: "empty stays empty", input: "   ", expected: ""},
	}

	runPreprocessorTests(t, tests, text.EnsureTerminal)
}

func TestCanonical(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "caf\u00e9", text.Canonical("  cafe\u0301\n"))
	assert.Equal(t, text.Canonical("caf\u00e9"), text.Canonical("cafe\u0301"))
}

func TestIsTerminalMark(t *testing.T) {
	t.Parallel()

	for _, mark := range []rune{'。', '.', '!', '?', '！', '？'} {
		assert.True(t, text.IsTerminalMark(mark), string(mark))
	}

	for _, mark := range []rune{',', '，', 'a', ' '} {
		assert.False(t, text.IsTerminalMark(mark), string(mark))
	}
}
