// Package frontend provides a dictionary-driven linguistic frontend: text is normalized,
// split into words and characters, looked up in word dictionaries and mapped to phoneme
// ids through a symbol table.
package frontend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/book-expert/sovits-service/internal/core"
	"github.com/book-expert/sovits-service/internal/text"
)

// Dictionary file names inside the dictionary directory.
const (
	ChineseDictFile = "zh_word_dict.json"
	EnglishDictFile = "en_word_dict.json"
)

// DefaultFeatureDim is the feature width used when none is configured.
const DefaultFeatureDim = 1024

// maxWordRunes bounds the longest Chinese dictionary match.
const maxWordRunes = 4

var (
	// ErrNoPhonemes indicates text that produced no known phoneme.
	ErrNoPhonemes = errors.New("text produced no phonemes")
	// ErrSymbolsPathEmpty indicates a missing symbol table path.
	ErrSymbolsPathEmpty = errors.New("symbols path cannot be empty")
)

// fullWidthPunct folds CJK punctuation into the ASCII marks of the symbol table.
var fullWidthPunct = map[rune]string{
	'，': ",", '。': ".", '！': "!", '？': "?", '、': ",", '；': ",", '：': ",", ';': ",", ':': ",",
}

// Resources holds the symbol table and word dictionaries. It is read-only after loading.
type Resources struct {
	Symbols map[string]int64
	Chinese map[string][]string
	English map[string][]string
}

// LoadResources reads the symbol table and the word dictionaries in dictDir. A missing
// dictionary file yields an empty dictionary; a missing symbol table is an error.
func LoadResources(symbolsPath, dictDir string) (*Resources, error) {
	if symbolsPath == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrConfig, ErrSymbolsPathEmpty)
	}

	var res Resources

	err := readJSON(symbolsPath, &res.Symbols)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load symbols: %w", core.ErrConfig, err)
	}

	res.Chinese, err = loadDict(dictDir, ChineseDictFile)
	if err != nil {
		return nil, err
	}

	res.English, err = loadDict(dictDir, EnglishDictFile)
	if err != nil {
		return nil, err
	}

	return &res, nil
}

func loadDict(dir, name string) (map[string][]string, error) {
	dict := make(map[string][]string)
	if dir == "" {
		return dict, nil
	}

	err := readJSON(filepath.Join(dir, name), &dict)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return dict, nil
		}

		return nil, fmt.Errorf("%w: failed to load %s: %w", core.ErrConfig, name, err)
	}

	return dict, nil
}

func readJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	err = json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return nil
}

// Dictionary implements core.Frontend over Resources.
type Dictionary struct {
	res          *Resources
	preprocessor *text.Preprocessor
	featureDim   int
}

// NewDictionary creates a frontend. A non-positive featureDim selects DefaultFeatureDim.
func NewDictionary(res *Resources, featureDim int) *Dictionary {
	if featureDim <= 0 {
		featureDim = DefaultFeatureDim
	}

	return &Dictionary{
		res:          res,
		preprocessor: text.NewPreprocessor(),
		featureDim:   featureDim,
	}
}

// Analyze returns phoneme ids shaped [1, n] and zero features shaped [n, featureDim].
func (d *Dictionary) Analyze(ctx context.Context, input string) (core.IntTensor, core.Tensor, error) {
	if ctx.Err() != nil {
		return core.IntTensor{}, core.Tensor{}, ctx.Err()
	}

	ids := make([]int64, 0)

	for _, phone := range d.Phones(input) {
		id, ok := d.res.Symbols[phone]
		if !ok {
			continue
		}

		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return core.IntTensor{}, core.Tensor{}, fmt.Errorf("%w: %w: %q", core.ErrFrontend, ErrNoPhonemes, input)
	}

	count := int64(len(ids))

	return core.IntTensor{Shape: []int64{1, count}, Data: ids},
		core.Tensor{Shape: []int64{count, int64(d.featureDim)}, Data: make([]float32, len(ids)*d.featureDim)},
		nil
}

// Phones returns the phone strings for input before symbol lookup.
func (d *Dictionary) Phones(input string) []string {
	runes := []rune(d.preprocessor.Normalize(input))
	phones := make([]string, 0, len(runes))

	for i := 0; i < len(runes); {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.Is(unicode.Han, r):
			word, size := d.longestChinese(runes[i:])
			phones = append(phones, word...)
			i += size
		case isWordRune(r):
			end := i
			for end < len(runes) && isWordRune(runes[end]) {
				end++
			}

			phones = append(phones, d.english(string(runes[i:end]))...)
			i = end
		default:
			phones = append(phones, punctuation(r))
			i++
		}
	}

	return phones
}

// longestChinese matches the longest dictionary word at the start of runes. An unknown
// character consumes one rune and yields no phones.
func (d *Dictionary) longestChinese(runes []rune) ([]string, int) {
	limit := min(maxWordRunes, len(runes))

	for size := limit; size > 0; size-- {
		if phones, ok := d.res.Chinese[string(runes[:size])]; ok {
			return phones, size
		}
	}

	return nil, 1
}

// english looks a word up as written, then lower case, then spells it letter by letter.
func (d *Dictionary) english(word string) []string {
	for _, candidate := range []string{word, strings.ToLower(word), strings.ToUpper(word)} {
		if phones, ok := d.res.English[candidate]; ok {
			return phones
		}
	}

	phones := make([]string, 0)

	for _, letter := range strings.ToLower(word) {
		if spelled, ok := d.res.English[string(letter)]; ok {
			phones = append(phones, spelled...)
		}
	}

	return phones
}

func isWordRune(r rune) bool {
	return (unicode.IsLetter(r) && !unicode.Is(unicode.Han, r)) || r == '\''
}

func punctuation(r rune) string {
	if folded, ok := fullWidthPunct[r]; ok {
		return folded
	}

	return string(r)
}
