package opendata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Page is one parsed response of the records search endpoint.
type Page struct {
	NHits   int      `json:"nhits"`
	Records []Record `json:"records"`

	// Raw is the response body as received. Snapshots persist this, not the
	// decoded view.
	Raw json.RawMessage `json:"-"`
}

type Record struct {
	DatasetID       string `json:"datasetid"`
	RecordID        string `json:"recordid"`
	Fields          Fields `json:"fields"`
	RecordTimestamp string `json:"record_timestamp"`
}

// Kind is the closed set of value shapes a record field can hold.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindOther // objects, arrays, booleans
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	default:
		return "other"
	}
}

type Value struct {
	kind Kind
	raw  json.RawMessage
}

func StringValue(s string) Value {
	raw, _ := json.Marshal(s)
	return Value{kind: KindString, raw: raw}
}

func NumberValue(n float64) Value {
	return Value{kind: KindNumber, raw: json.RawMessage(strconv.FormatFloat(n, 'f', -1, 64))}
}

func NullValue() Value {
	return Value{kind: KindNull, raw: json.RawMessage("null")}
}

// RawValue classifies an already encoded JSON value.
func RawValue(raw json.RawMessage) Value {
	trimmed := bytes.TrimSpace(raw)
	v := Value{kind: KindOther, raw: append(json.RawMessage(nil), trimmed...)}
	if len(trimmed) == 0 {
		return v
	}
	switch c := trimmed[0]; {
	case c == '"':
		v.kind = KindString
	case c == 'n':
		v.kind = KindNull
	case c == '-' || (c >= '0' && c <= '9'):
		v.kind = KindNumber
	}
	return v
}

func (v Value) Kind() Kind { return v.kind }

// IsScalar reports whether the value can take part in a comparison filter.
func (v Value) IsScalar() bool {
	return v.kind == KindString || v.kind == KindNumber || v.kind == KindNull
}

func (v Value) Raw() json.RawMessage {
	if v.raw == nil {
		return json.RawMessage("null")
	}
	return v.raw
}

type Field struct {
	Name  string
	Value Value
}

// Fields keeps the record's fields in document order.
type Fields []Field

func (f Fields) Get(name string) (Value, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return Value{}, false
}

func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for _, field := range f {
		names = append(names, field.Name)
	}
	return names
}

func (f *Fields) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("fields: expected object, got %v", tok)
	}

	out := Fields{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("fields: expected string key, got %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("fields: value of %q: %w", key, err)
		}
		out = append(out, Field{Name: key, Value: RawValue(raw)})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*f = out
	return nil
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(field.Value.Raw())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DecodePage parses a search response body.
func DecodePage(body []byte) (Page, error) {
	if !json.Valid(body) {
		return Page{}, fmt.Errorf("body is not valid JSON")
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '{' {
		return Page{}, fmt.Errorf("body is not a JSON object")
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return Page{}, err
	}
	page.Raw = append(json.RawMessage(nil), body...)
	return page, nil
}
