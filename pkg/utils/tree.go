package utils

import (
	"strconv"
	"strings"
)

// Tree helpers for the schema-varying provider documents. Every accessor is
// defensive: a missing key or unexpected type yields the zero value.

// TreeMap returns the sub-object at key, or nil
func TreeMap(tree map[string]interface{}, key string) map[string]interface{} {
	if tree == nil {
		return nil
	}
	sub, _ := tree[key].(map[string]interface{})
	return sub
}

// TreeSlice returns the array at key, or nil
func TreeSlice(tree map[string]interface{}, key string) []interface{} {
	if tree == nil {
		return nil
	}
	sub, _ := tree[key].([]interface{})
	return sub
}

// TreeString returns the string at key. Numbers are formatted, since the
// provider flips between "123" and 123 across feed versions.
func TreeString(tree map[string]interface{}, key string) string {
	if tree == nil {
		return ""
	}
	switch v := tree[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// TreeInt returns the integer at key, accepting numbers and numeric strings
func TreeInt(tree map[string]interface{}, key string) int {
	if tree == nil {
		return 0
	}
	switch v := tree[key].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return 0
}

// TreeBool returns the boolean at key, accepting bools, "true"/"Y" strings
// and 0/1 numbers
func TreeBool(tree map[string]interface{}, key string) bool {
	if tree == nil {
		return false
	}
	switch v := tree[key].(type) {
	case bool:
		return v
	case string:
		t := strings.ToLower(strings.TrimSpace(v))
		return t == "true" || t == "y" || t == "yes" || t == "1"
	case float64:
		return v != 0
	}
	return false
}

// TreeIntList returns the integers at key, accepting an array of numbers or
// numeric strings, or a single comma-separated string
func TreeIntList(tree map[string]interface{}, key string) []int {
	if tree == nil {
		return nil
	}
	var out []int
	switch v := tree[key].(type) {
	case []interface{}:
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				out = append(out, int(n))
			case string:
				if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
					out = append(out, parsed)
				}
			}
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if parsed, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				out = append(out, parsed)
			}
		}
	}
	return out
}
