package opendata

import (
	"fmt"
	"net/url"
	"strconv"
)

// Params are the query parameters of one search call. Values are scalars or
// slices; slices expand to repeated keys.
type Params map[string]any

// Merge returns a copy of p with extra applied last. Keys in extra replace
// keys in p, including dataset, rows and start.
func (p Params) Merge(extra Params) Params {
	out := make(Params, len(p)+len(extra))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (p Params) Values() url.Values {
	values := url.Values{}
	for key, v := range p {
		switch vv := v.(type) {
		case []string:
			values[key] = append(values[key], vv...)
		case []int:
			for _, i := range vv {
				values.Add(key, strconv.Itoa(i))
			}
		case []any:
			for _, item := range vv {
				values.Add(key, formatScalar(item))
			}
		default:
			values.Set(key, formatScalar(v))
		}
	}
	return values
}

// Encode renders p as a query string with keys sorted.
func (p Params) Encode() string {
	return p.Values().Encode()
}

func formatScalar(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case int:
		return strconv.Itoa(vv)
	case int64:
		return strconv.FormatInt(vv, 10)
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(vv)
	case fmt.Stringer:
		return vv.String()
	default:
		return fmt.Sprint(vv)
	}
}
