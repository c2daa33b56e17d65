// Package chunking splits request text into chunks small enough for one synthesis call.
//
// Text is cut at sentence ends and packed greedily into chunks of at most MaxRunes runes.
// A sentence longer than the limit is cut at clause marks, then between words (Latin
// runs) or characters (CJK). A single word longer than the limit is emitted whole.
package chunking

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxRunes is the chunk size used when none is configured.
const DefaultMaxRunes = 50

var sentenceEnds = map[rune]struct{}{
	'。': {}, '！': {}, '？': {}, '.': {}, '!': {}, '?': {}, '；': {}, ';': {}, '…': {},
}

var clauseMarks = map[rune]struct{}{
	'，': {}, ',': {}, '、': {}, '：': {}, ':': {},
}

var closingMarks = map[rune]struct{}{
	'"': {}, '\'': {}, '”': {}, '’': {}, '」': {}, '』': {}, '）': {}, ')': {}, '】': {}, '》': {}, ']': {},
}

// Splitter cuts text into ordered chunks.
type Splitter struct {
	maxRunes int
}

// New creates a Splitter. A non-positive maxRunes selects DefaultMaxRunes.
func New(maxRunes int) *Splitter {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}

	return &Splitter{maxRunes: maxRunes}
}

// MaxRunes returns the chunk size limit.
func (s *Splitter) MaxRunes() int {
	return s.maxRunes
}

// Split returns the trimmed, non-empty chunks of text in order.
func (s *Splitter) Split(text string) []string {
	pieces := make([]string, 0)

	for _, sentence := range cutAfter(text, isSentenceEnd) {
		if runeLen(sentence) <= s.maxRunes {
			pieces = append(pieces, sentence)

			continue
		}

		for _, clause := range cutAfter(sentence, isClauseMark) {
			if runeLen(clause) <= s.maxRunes {
				pieces = append(pieces, clause)

				continue
			}

			pieces = append(pieces, atomicUnits(clause)...)
		}
	}

	return s.pack(pieces)
}

// IsBareTerminal reports whether chunk holds nothing but sentence-ending punctuation.
func IsBareTerminal(chunk string) bool {
	trimmed := strings.TrimSpace(chunk)
	if trimmed == "" {
		return false
	}

	for _, r := range trimmed {
		if _, ok := sentenceEnds[r]; !ok {
			return false
		}
	}

	return true
}

func (s *Splitter) pack(pieces []string) []string {
	chunks := make([]string, 0)

	var current strings.Builder

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		current.Reset()
	}

	for _, piece := range pieces {
		candidate := strings.TrimSpace(current.String() + piece)
		if utf8.RuneCountInString(candidate) <= s.maxRunes {
			current.WriteString(piece)

			continue
		}

		flush()
		current.WriteString(strings.TrimLeftFunc(piece, unicode.IsSpace))
	}

	flush()

	return chunks
}

// cutAfter splits text after every boundary rune found by isBoundary, keeping the
// boundary and any closing quotes or further boundary runes with the preceding piece.
func cutAfter(text string, isBoundary func(runes []rune, i int) bool) []string {
	runes := []rune(text)
	pieces := make([]string, 0)
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isBoundary(runes, i) {
			continue
		}

		end := i + 1
		for end < len(runes) && (isBoundary(runes, end) || isClosing(runes[end])) {
			end++
		}

		pieces = append(pieces, string(runes[start:end]))
		start = end
		i = end - 1
	}

	if start < len(runes) {
		pieces = append(pieces, string(runes[start:]))
	}

	return pieces
}

// atomicUnits splits text into units that are never cut: each CJK character, each run
// of other non-space characters, and each whitespace run.
func atomicUnits(text string) []string {
	units := make([]string, 0)

	var current strings.Builder

	currentKind := unitNone

	for _, r := range text {
		kind := classify(r)
		if kind == unitCJK || kind != currentKind {
			if current.Len() > 0 {
				units = append(units, current.String())
				current.Reset()
			}
		}

		current.WriteRune(r)
		currentKind = kind
	}

	if current.Len() > 0 {
		units = append(units, current.String())
	}

	return units
}

type unitKind int

const (
	unitNone unitKind = iota
	unitSpace
	unitCJK
	unitWord
)

func classify(r rune) unitKind {
	switch {
	case unicode.IsSpace(r):
		return unitSpace
	case isCJK(r):
		return unitCJK
	default:
		return unitWord
	}
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) ||
		isFullWidthPunct(r)
}

func isFullWidthPunct(r rune) bool {
	return (r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFFEF)
}

func isSentenceEnd(runes []rune, i int) bool {
	r := runes[i]
	if _, ok := sentenceEnds[r]; !ok {
		return false
	}

	// A period inside a token ("3.14", "example.com") does not end a sentence.
	if r == '.' && i+1 < len(runes) {
		next := runes[i+1]

		return !unicode.IsLetter(next) && !unicode.IsDigit(next)
	}

	return true
}

func isClauseMark(runes []rune, i int) bool {
	_, ok := clauseMarks[runes[i]]

	return ok
}

func isClosing(r rune) bool {
	_, ok := closingMarks[r]

	return ok
}

func runeLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
