package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeArgs parses a JSON arguments object into dst.
func decodeArgs(args string, dst any) error {
	trimmed := strings.TrimSpace(args)
	if trimmed == "" {
		trimmed = "{}"
	}
	if err := json.Unmarshal([]byte(trimmed), dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func stringParam(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
