package attr

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/cockroachdb/apd/v3"
)

// Tag names the type of an attribute envelope.
type Tag string

const (
	TagString    Tag = "S"
	TagNumber    Tag = "N"
	TagBinary    Tag = "B"
	TagBool      Tag = "BOOL"
	TagNull      Tag = "NULL"
	TagList      Tag = "L"
	TagMap       Tag = "M"
	TagStringSet Tag = "SS"
	TagNumberSet Tag = "NS"
	TagBinarySet Tag = "BS"
)

// Value is a sealed interface over the attribute variants.
// Only the types in this file implement it.
type Value interface {
	Tag() Tag
	attrValue()
}

// String is an "S" attribute.
type String string

// Number is an "N" attribute. It keeps the decimal text it was parsed
// from, so precision and exponent form survive any number of round trips.
// The zero value is 0.
type Number struct {
	text string
}

// Binary is a "B" attribute.
type Binary []byte

// Bool is a "BOOL" attribute.
type Bool bool

// Null is a "NULL" attribute.
type Null struct{}

// List is an "L" attribute.
type List []Value

// Map is an "M" attribute. A whole record image is also a Map.
type Map map[string]Value

// StringSet is an "SS" attribute.
type StringSet []string

// NumberSet is an "NS" attribute.
type NumberSet []Number

// BinarySet is a "BS" attribute.
type BinarySet [][]byte

func (String) Tag() Tag    { return TagString }
func (Number) Tag() Tag    { return TagNumber }
func (Binary) Tag() Tag    { return TagBinary }
func (Bool) Tag() Tag      { return TagBool }
func (Null) Tag() Tag      { return TagNull }
func (List) Tag() Tag      { return TagList }
func (Map) Tag() Tag       { return TagMap }
func (StringSet) Tag() Tag { return TagStringSet }
func (NumberSet) Tag() Tag { return TagNumberSet }
func (BinarySet) Tag() Tag { return TagBinarySet }

func (String) attrValue()    {}
func (Number) attrValue()    {}
func (Binary) attrValue()    {}
func (Bool) attrValue()      {}
func (Null) attrValue()      {}
func (List) attrValue()      {}
func (Map) attrValue()       {}
func (StringSet) attrValue() {}
func (NumberSet) attrValue() {}
func (BinarySet) attrValue() {}

// ParseNumber parses the decimal text of an "N" attribute. Any finite
// decimal is accepted regardless of digit count. Text that is already a
// JSON number is kept verbatim; other accepted spellings such as ".5" or
// "+1" are rewritten in apd's canonical form.
func ParseNumber(s string) (Number, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Number{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return Number{}, fmt.Errorf("invalid number %q: not finite", s)
	}
	if !isJSONNumber(s) {
		s = d.String()
	}
	return Number{text: s}, nil
}

// MustNumber is ParseNumber for literals in tests and fixtures.
func MustNumber(s string) Number {
	n, err := ParseNumber(s)
	if err != nil {
		panic(err)
	}
	return n
}

// String returns the decimal text, e.g. "9.99".
func (n Number) String() string {
	if n.text == "" {
		return "0"
	}
	return n.text
}

func isJSONNumber(s string) bool {
	if s == "" || s != strings.TrimSpace(s) {
		return false
	}
	if c := s[0]; c != '-' && (c < '0' || c > '9') {
		return false
	}
	return json.Valid([]byte(s))
}

// SortedKeys returns keys in UTF-16 code unit order, the same order used by
// canonical JSON.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// Unwrap strips the type envelope from v and returns the bare Go value:
//
//	String    -> string
//	Number    -> json.Number
//	Binary    -> []byte
//	Bool      -> bool
//	Null      -> nil
//	List      -> []any
//	Map       -> map[string]any
//	*Set      -> []any
func Unwrap(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Number:
		return json.Number(val.String())
	case Binary:
		return []byte(val)
	case Bool:
		return bool(val)
	case Null:
		return nil
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Unwrap(elem)
		}
		return out
	case Map:
		return UnwrapMap(val)
	case StringSet:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case NumberSet:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = json.Number(n.String())
		}
		return out
	case BinarySet:
		out := make([]any, len(val))
		for i, b := range val {
			out[i] = b
		}
		return out
	default:
		return nil
	}
}

// UnwrapMap unwraps every attribute of an image.
func UnwrapMap(m Map) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Unwrap(v)
	}
	return out
}

// Wrap converts a bare JSON-decoded value into its attribute variant.
// Decoders should use UseNumber so that numbers arrive as json.Number.
func Wrap(x any) (Value, error) {
	switch val := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case json.Number:
		return ParseNumber(string(val))
	case float64:
		return ParseNumber(strconv.FormatFloat(val, 'f', -1, 64))
	case int:
		return ParseNumber(strconv.Itoa(val))
	case int64:
		return ParseNumber(strconv.FormatInt(val, 10))
	case bool:
		return Bool(val), nil
	case []byte:
		return Binary(val), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			v, err := Wrap(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = v
		}
		return list, nil
	case map[string]any:
		return WrapMap(val)
	default:
		return nil, fmt.Errorf("unsupported type: %T", x)
	}
}

// WrapMap converts a bare record into an image.
func WrapMap(m map[string]any) (Map, error) {
	out := make(Map, len(m))
	for k, elem := range m {
		v, err := Wrap(elem)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// compareKeysUTF16 orders strings by UTF-16 code units (RFC 8785).
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
