// Package jsonpath reads values out of JSON response bodies using a small
// JSONPath subset translated to gjson paths.
package jsonpath

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Bool reports whether path resolves to JSON true in the document.
//
// Anything else yields false: an empty or unparsable document, an empty
// path, a missing path or a non-boolean value.
func Bool(json string, path string) bool {
	result, ok := lookup(json, path)
	return ok && result.Type == gjson.True
}

// lookup resolves path in json, reporting whether it exists.
func lookup(json string, path string) (gjson.Result, bool) {
	if json == "" || path == "" || !gjson.Valid(json) {
		return gjson.Result{}, false
	}
	result := gjson.Get(json, convertToGjsonPath(path))
	return result, result.Exists()
}

// convertToGjsonPath converts a JSONPath expression to a gjson path.
//
//	JSONPath: $.data[0].count
//	gjson:    data.0.count
func convertToGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	// ['name'] and ["name"]
	for _, q := range []string{"'", "\""} {
		path = strings.ReplaceAll(path, "["+q, ".")
		path = strings.ReplaceAll(path, q+"]", "")
	}

	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	return strings.TrimPrefix(path, ".")
}
