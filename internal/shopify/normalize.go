package shopify

import (
	"encoding/json"
	"fmt"
)

// mutationResultKeys are the data keys whose userErrors arrays are checked
// during validation.
var mutationResultKeys = []string{"productCreate", "productUpdate", "publishablePublish"}

// Validate checks a parsed response envelope for errors, collecting every
// entry found in the top-level errors list and in userErrors arrays under
// known mutation result keys. It returns the data block on success.
func Validate(resp map[string]interface{}) (map[string]interface{}, error) {
	var messages []string

	if errList, ok := resp["errors"].([]interface{}); ok {
		for _, e := range errList {
			messages = append(messages, describeError(e))
		}
	}

	data, _ := resp["data"].(map[string]interface{})
	for _, key := range mutationResultKeys {
		result, ok := data[key].(map[string]interface{})
		if !ok {
			continue
		}
		userErrors, ok := result["userErrors"].([]interface{})
		if !ok {
			continue
		}
		for _, e := range userErrors {
			messages = append(messages, describeError(e))
		}
	}

	if len(messages) > 0 {
		return nil, &ProtocolError{Messages: messages}
	}
	if data == nil {
		return nil, &ProtocolError{Messages: []string{"response carries no data block"}}
	}
	return data, nil
}

func describeError(e interface{}) string {
	entry, ok := e.(map[string]interface{})
	if !ok {
		return fmt.Sprintf("%v", e)
	}
	msg := fmt.Sprintf("(Message: %v)", entry["message"])
	if ext, ok := entry["extensions"]; ok {
		msg += fmt.Sprintf(" (Extension: %v)", ext)
	}
	if field, ok := entry["field"]; ok {
		msg += fmt.Sprintf(" (Field: %v)", field)
	}
	return msg
}

// Flatten unwraps single-key wrapper objects and converts every
// {edges: [{node: ...}]} shape into a plain list of node values, recursing
// into nested edge/node structures. Already-flat input passes through
// unchanged, so reconcilers can work against plain records regardless of how
// deeply the API nests pagination wrappers.
func Flatten(v interface{}) interface{} {
	// Peel wrapper objects: a single-key map whose value is itself a
	// container is just nesting, not data.
	for {
		m, ok := v.(map[string]interface{})
		if !ok || len(m) != 1 {
			break
		}
		var inner interface{}
		for _, val := range m {
			inner = val
		}
		switch inner.(type) {
		case map[string]interface{}, []interface{}:
			v = inner
		default:
			return flattenValue(v)
		}
	}
	return flattenValue(v)
}

// flattenValue rewrites edge/node wrappers anywhere inside v.
func flattenValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if edges, ok := val["edges"].([]interface{}); ok {
			nodes := make([]interface{}, 0, len(edges))
			for _, e := range edges {
				edge, ok := e.(map[string]interface{})
				if !ok {
					continue
				}
				nodes = append(nodes, flattenValue(edge["node"]))
			}
			return nodes
		}
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = flattenValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = flattenValue(inner)
		}
		return out
	default:
		return v
	}
}

// Decode round-trips a flattened value through JSON into a typed result
// struct. Fields the struct does not declare are ignored.
func Decode(v interface{}, out interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode normalized value: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode normalized value: %w", err)
	}
	return nil
}
