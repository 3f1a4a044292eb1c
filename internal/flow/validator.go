package flow

import (
	"fmt"
	"strings"
)

// WordCounter counts words in an already trimmed, non-empty response.
type WordCounter func(trimmed string) int

// CountFields counts whitespace-delimited tokens. Runs of spaces collapse.
// Punctuation-only tokens count as words; tokenization is not locale-aware.
func CountFields(trimmed string) int {
	return len(strings.Fields(trimmed))
}

// CountSingleSpace splits on every single space, so "a  b" is three words.
// It matches how earlier collected data was validated.
func CountSingleSpace(trimmed string) int {
	return len(strings.Split(trimmed, " "))
}

// Tokenizer names accepted in configuration.
const (
	TokenizerFields      = "fields"
	TokenizerSingleSpace = "single_space"
)

// CounterByName maps a configured tokenizer name to its counter.
func CounterByName(name string) (WordCounter, error) {
	switch name {
	case "", TokenizerFields:
		return CountFields, nil
	case TokenizerSingleSpace:
		return CountSingleSpace, nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}

// Validator checks a candidate response against a word limit.
type Validator struct {
	count WordCounter
}

// NewValidator builds a validator; a nil counter means CountFields.
func NewValidator(count WordCounter) Validator {
	if count == nil {
		count = CountFields
	}
	return Validator{count: count}
}

// Validate is false for blank responses and for responses over wordLimit.
func (v Validator) Validate(response string, wordLimit int) bool {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return false
	}
	count := v.count
	if count == nil {
		count = CountFields
	}
	return count(trimmed) <= wordLimit
}

// Validate uses the default whitespace tokenization.
func Validate(response string, wordLimit int) bool {
	return NewValidator(nil).Validate(response, wordLimit)
}
