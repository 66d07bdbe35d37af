package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedOutput means the model text could not be decoded into the expected shape.
var ErrMalformedOutput = errors.New("malformed model output")

var (
	openingFence = regexp.MustCompile("(?m)^```(?:json)?\n?")
	closingFence = regexp.MustCompile("(?m)\n?```$")
)

// StripFences removes one leading ```/```json fence and one trailing ``` fence.
func StripFences(text string) string {
	cleaned := replaceFirst(openingFence, text)
	cleaned = replaceFirst(closingFence, cleaned)
	return strings.TrimSpace(cleaned)
}

func replaceFirst(re *regexp.Regexp, text string) string {
	loc := re.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return text[:loc[0]] + text[loc[1]:]
}

// DecodeJSON strips fences from text and strictly decodes the remainder into T.
func DecodeJSON[T any](text string) (T, error) {
	var out T
	cleaned := StripFences(text)
	if cleaned == "" {
		return out, fmt.Errorf("%w: empty text", ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return out, nil
}
