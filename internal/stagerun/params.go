package stagerun

import (
	"fmt"
	"net/url"
	"sort"
)

// formatValue renders a parameter value the way CLAMS apps expect on their
// command line and querystring. Booleans keep their capitalized form.
func formatValue(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "True"
		}
		return "False"
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// cliParams flattens a stage parameter mapping into CLI flags. Scalar
// entries become "--key value" pairs; one level of nesting becomes repeated
// "--key subkey:value" pairs. A bare "--" terminates the flag list so
// repeated map values are delimited from the positional arguments.
func cliParams(params map[string]any) []string {
	if len(params) == 0 {
		return nil
	}
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var args []string
	for _, key := range keys {
		switch value := params[key].(type) {
		case map[string]any:
			subkeys := make([]string, 0, len(value))
			for subkey := range value {
				subkeys = append(subkeys, subkey)
			}
			sort.Strings(subkeys)
			for _, subkey := range subkeys {
				args = append(args, "--"+key, subkey+":"+formatValue(value[subkey]))
			}
		default:
			args = append(args, "--"+key, formatValue(value))
		}
	}
	return append(args, "--")
}

// queryParams renders a stage parameter mapping as a querystring, leading
// "?" included. Nested values are rejected at configuration load, so only
// scalars arrive here.
func queryParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, key := range keys {
		values.Set(key, formatValue(params[key]))
	}
	return "?" + values.Encode()
}
