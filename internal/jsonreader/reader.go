package jsonreader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Array boundary markers emitted as Token keys.
const (
	MarkerArray     = "ARRAY"
	MarkerArrayNext = "ARRAY-NEXT"
	MarkerArrayEnd  = "]"
)

var (
	// ErrNoJSON is returned when the input holds no JSON object or array.
	ErrNoJSON = errors.New("no JSON value in input")
	// ErrMalformed is returned when the JSON value is truncated or invalid.
	ErrMalformed = errors.New("malformed JSON")
)

// Token is one flattened keyword/value pair.
type Token struct {
	Key   string
	Value string
}

// IsMarker reports whether the token is an array boundary marker.
func (t Token) IsMarker() bool {
	return t.Key == MarkerArray || t.Key == MarkerArrayNext || t.Key == MarkerArrayEnd
}

// Document is the flattened form of one JSON response.
type Document struct {
	Tokens []Token
}

// Parse flattens the first JSON value found in data.
func Parse(data []byte) (*Document, error) {
	body := skipPreamble(data)
	if body == nil {
		return nil, ErrNoJSON
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	doc := &Document{}
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil, ErrNoJSON
	}

	switch delim {
	case '{':
		err = doc.walkObject(dec)
	case '[':
		doc.emit(MarkerArray, "")
		err = doc.walkArray(dec, "")
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// skipPreamble drops an HTTP header block and any other bytes before the
// first JSON delimiter. It returns nil if no delimiter exists.
func skipPreamble(data []byte) []byte {
	if bytes.HasPrefix(data, []byte("HTTP/")) {
		if i := bytes.Index(data, []byte("\r\n\r\n")); i >= 0 {
			data = data[i+4:]
		} else if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
			data = data[i+2:]
		}
	}
	i := bytes.IndexAny(data, "{[")
	if i < 0 {
		return nil
	}
	return data[i:]
}

func (d *Document) emit(key, value string) {
	d.Tokens = append(d.Tokens, Token{Key: key, Value: value})
}

func (d *Document) walkObject(dec *json.Decoder) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return malformed(err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: object key is %T", ErrMalformed, tok)
		}
		if err := d.walkValue(dec, strings.ToUpper(name)); err != nil {
			return err
		}
	}
	// consume '}'
	if _, err := dec.Token(); err != nil {
		return malformed(err)
	}
	return nil
}

func (d *Document) walkArray(dec *json.Decoder, key string) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return malformed(err)
		}
		switch v := tok.(type) {
		case json.Delim:
			if v == '{' {
				if err := d.walkObject(dec); err != nil {
					return err
				}
				d.emit(MarkerArrayNext, "")
				continue
			}
			d.emit(MarkerArray, "")
			if err := d.walkArray(dec, ""); err != nil {
				return err
			}
		default:
			d.emit(key, scalar(v))
		}
	}
	// consume ']'
	if _, err := dec.Token(); err != nil {
		return malformed(err)
	}
	d.emit(MarkerArrayEnd, "")
	return nil
}

func (d *Document) walkValue(dec *json.Decoder, key string) error {
	tok, err := dec.Token()
	if err != nil {
		return malformed(err)
	}
	if v, ok := tok.(json.Delim); ok {
		if v == '{' {
			return d.walkObject(dec)
		}
		d.emit(MarkerArray, key)
		return d.walkArray(dec, key)
	}
	d.emit(key, scalar(tok))
	return nil
}

func scalar(tok json.Token) string {
	switch v := tok.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "null"
	default:
		return fmt.Sprint(v)
	}
}

func malformed(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

// Get returns the value of the first non-marker token whose key matches
// key case-insensitively.
func (d *Document) Get(key string) (string, bool) {
	key = strings.ToUpper(key)
	for _, t := range d.Tokens {
		if t.Key == key && !t.IsMarker() {
			return t.Value, true
		}
	}
	return "", false
}

// Int returns the first value for key parsed as an integer. Fractional
// values are truncated.
func (d *Document) Int(key string) (int, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// Float returns the first value for key parsed as a float.
func (d *Document) Float(key string) (float64, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Prefixed returns every non-marker token whose key starts with prefix,
// compared case-insensitively, in document order.
func (d *Document) Prefixed(prefix string) []Token {
	prefix = strings.ToUpper(prefix)
	var out []Token
	for _, t := range d.Tokens {
		if !t.IsMarker() && strings.HasPrefix(t.Key, prefix) {
			out = append(out, t)
		}
	}
	return out
}

// Records groups the objects of the named top-level array into maps keyed
// by upper-cased keyword. Nested arrays inside a record are flattened into
// it. It returns nil when the array is absent.
func (d *Document) Records(arrayKey string) []map[string]string {
	arrayKey = strings.ToUpper(arrayKey)
	start := -1
	for i, t := range d.Tokens {
		if t.Key == MarkerArray && t.Value == arrayKey {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}

	records := []map[string]string{}
	current := map[string]string{}
	depth := 0
	for _, t := range d.Tokens[start:] {
		switch t.Key {
		case MarkerArray:
			depth++
		case MarkerArrayEnd:
			if depth == 0 {
				if len(current) > 0 {
					records = append(records, current)
				}
				return records
			}
			depth--
		case MarkerArrayNext:
			if depth == 0 {
				records = append(records, current)
				current = map[string]string{}
			}
		default:
			if _, seen := current[t.Key]; !seen {
				current[t.Key] = t.Value
			}
		}
	}
	return records
}
