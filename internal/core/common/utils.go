package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoJSON is returned when a response contains no JSON object or array.
var ErrNoJSON = errors.New("no JSON found in response")

// ParseJSON cleans and unmarshals a JSON string into a type T.
// It handles common LLM quirks like surrounding markdown, extra text and
// slightly malformed JSON (trailing commas, single quotes, missing brackets).
func ParseJSON[T any](response string) (T, error) {
	var zero T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return zero, err
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err == nil {
		return result, nil
	}

	repaired, err := jsonrepair.JSONRepair(jsonStr)
	if err != nil {
		return zero, fmt.Errorf("json repair failed: %w\nData: %s", err, jsonStr)
	}
	if err := json.Unmarshal([]byte(repaired), &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JSON: %w\nData: %s", err, repaired)
	}

	return result, nil
}

// ExtractJSON returns the span from the first '{' or '[' to the last
// matching closer. A missing closer is tolerated so repair can add it.
func ExtractJSON(response string) (string, error) {
	start := strings.IndexAny(response, "{[")
	if start == -1 {
		return "", ErrNoJSON
	}

	closer := byte('}')
	if response[start] == '[' {
		closer = ']'
	}

	end := strings.LastIndexByte(response, closer)
	if end < start {
		return strings.TrimSpace(response[start:]), nil
	}
	return response[start : end+1], nil
}
