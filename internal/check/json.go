package check

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/surge/internal/http"
)

// ExtractJSON extracts a value from a JSON document using a JSONPath
// expression such as "$.users[0].name".
func ExtractJSON(doc, path string) (string, error) {
	if doc == "" {
		return "", fmt.Errorf("empty JSON string")
	}
	if path == "" {
		return "", fmt.Errorf("empty JSONPath expression")
	}

	result := gjson.Get(doc, toGjsonPath(path))
	if !result.Exists() {
		return "", fmt.Errorf("path not found: %s", path)
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// JSONPath passes when the value at path equals expected.
func JSONPath(path, expected string) Predicate {
	return Func(func(resp *http.Response) bool {
		if resp == nil {
			return false
		}
		value, err := ExtractJSON(resp.BodyString(), path)
		return err == nil && value == expected
	})
}

// JSONSchema compiles schema and returns a predicate validating response
// bodies against it. A body that is not JSON fails with an evaluation error.
func JSONSchema(schema string) (Predicate, error) {
	if strings.TrimSpace(schema) == "" {
		return nil, fmt.Errorf("schema assertion requires a schema document")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	return func(resp *http.Response) (bool, error) {
		if resp == nil {
			return false, nil
		}

		var doc interface{}
		if err := json.Unmarshal(resp.Body, &doc); err != nil {
			return false, fmt.Errorf("invalid JSON: %w", err)
		}
		return compiled.Validate(doc) == nil, nil
	}, nil
}

// toGjsonPath converts a JSONPath expression to gjson syntax:
// "$.users[0].name" becomes "users.0.name".
func toGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	// $['name'] and $["name"]
	for _, quote := range []string{"'", `"`} {
		path = strings.ReplaceAll(path, "["+quote, ".")
		path = strings.ReplaceAll(path, quote+"]", "")
	}

	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	return strings.TrimPrefix(path, ".")
}
