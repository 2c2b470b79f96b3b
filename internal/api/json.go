package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON returns the outermost JSON object or array embedded in a
// model response. Markdown fences and surrounding prose are ignored.
func ExtractJSON(response string) (string, error) {
	objStart := strings.Index(response, "{")
	arrStart := strings.Index(response, "[")

	start, closer := objStart, "}"
	if start == -1 || (arrStart != -1 && arrStart < objStart) {
		start, closer = arrStart, "]"
	}
	if start == -1 {
		return "", fmt.Errorf("no valid JSON found in response: %s", truncate(response, 200))
	}

	end := strings.LastIndex(response, closer)
	if end <= start {
		return "", fmt.Errorf("no valid JSON found in response: %s", truncate(response, 200))
	}
	return response[start : end+1], nil
}

// DecodeJSON extracts JSON from a response and unmarshals it into target.
func DecodeJSON(response string, target interface{}) error {
	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return fmt.Errorf("parse JSON: %w (response: %s)", err, truncate(jsonStr, 200))
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
