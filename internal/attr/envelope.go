package attr

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// RawImage is an image whose attribute envelopes have not been decoded yet.
// Keeping envelopes raw lets a consumer decode the key attribute on its own,
// so a malformed attribute elsewhere in the image can still be reported
// against the right key.
type RawImage map[string]json.RawMessage

// ErrNoAttribute is returned by Lookup when the image lacks the attribute.
var ErrNoAttribute = errors.New("attribute not present")

// Decode parses a single type-tagged envelope such as {"S":"abc"}.
// The envelope must hold exactly one known tag.
func Decode(data []byte) (Value, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(env) != 1 {
		return nil, fmt.Errorf("decode envelope: want exactly one type tag, got %d", len(env))
	}
	for tag, body := range env {
		return decodeTagged(Tag(tag), body)
	}
	panic("unreachable")
}

func decodeTagged(tag Tag, body json.RawMessage) (Value, error) {
	switch tag {
	case TagString:
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, fmt.Errorf("decode S: %w", err)
		}
		return String(s), nil

	case TagNumber:
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, fmt.Errorf("decode N: %w", err)
		}
		return ParseNumber(s)

	case TagBinary:
		b, err := decodeBase64(body)
		if err != nil {
			return nil, fmt.Errorf("decode B: %w", err)
		}
		return Binary(b), nil

	case TagBool:
		var b bool
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, fmt.Errorf("decode BOOL: %w", err)
		}
		return Bool(b), nil

	case TagNull:
		var b bool
		if err := json.Unmarshal(body, &b); err != nil || !b {
			return nil, fmt.Errorf("decode NULL: want true, got %s", body)
		}
		return Null{}, nil

	case TagList:
		var raw []json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("decode L: %w", err)
		}
		list := make(List, len(raw))
		for i, elem := range raw {
			v, err := Decode(elem)
			if err != nil {
				return nil, fmt.Errorf("L[%d]: %w", i, err)
			}
			list[i] = v
		}
		return list, nil

	case TagMap:
		var raw RawImage
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("decode M: %w", err)
		}
		m, err := DecodeImage(raw)
		if err != nil {
			return nil, fmt.Errorf("M: %w", err)
		}
		return m, nil

	case TagStringSet:
		var ss []string
		if err := json.Unmarshal(body, &ss); err != nil {
			return nil, fmt.Errorf("decode SS: %w", err)
		}
		return StringSet(ss), nil

	case TagNumberSet:
		var ss []string
		if err := json.Unmarshal(body, &ss); err != nil {
			return nil, fmt.Errorf("decode NS: %w", err)
		}
		ns := make(NumberSet, len(ss))
		for i, s := range ss {
			n, err := ParseNumber(s)
			if err != nil {
				return nil, fmt.Errorf("NS[%d]: %w", i, err)
			}
			ns[i] = n
		}
		return ns, nil

	case TagBinarySet:
		var raw []json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("decode BS: %w", err)
		}
		bs := make(BinarySet, len(raw))
		for i, elem := range raw {
			b, err := decodeBase64(elem)
			if err != nil {
				return nil, fmt.Errorf("BS[%d]: %w", i, err)
			}
			bs[i] = b
		}
		return bs, nil

	default:
		return nil, fmt.Errorf("unknown type tag %q", tag)
	}
}

func decodeBase64(body json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(s)
}

// DecodeImage decodes every envelope in raw.
func DecodeImage(raw RawImage) (Map, error) {
	m := make(Map, len(raw))
	for k, env := range raw {
		v, err := Decode(env)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		m[k] = v
	}
	return m, nil
}

// Lookup decodes a single attribute of raw.
// Returns ErrNoAttribute if the image has no such attribute.
func (raw RawImage) Lookup(name string) (Value, error) {
	env, ok := raw[name]
	if !ok {
		return nil, ErrNoAttribute
	}
	v, err := Decode(env)
	if err != nil {
		return nil, fmt.Errorf("attribute %q: %w", name, err)
	}
	return v, nil
}

// Encode renders v as a type-tagged envelope.
func Encode(v Value) (json.RawMessage, error) {
	body, err := encodeBody(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"`)
	buf.WriteString(string(v.Tag()))
	buf.WriteString(`":`)
	buf.Write(body)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeBody(v Value) ([]byte, error) {
	switch val := v.(type) {
	case String:
		return marshalString(string(val))
	case Number:
		return marshalString(val.String())
	case Binary:
		return marshalString(base64.StdEncoding.EncodeToString(val))
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case Null:
		return []byte("true"), nil
	case List:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := Encode(elem)
			if err != nil {
				return nil, fmt.Errorf("L[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case Map:
		raw, err := EncodeImage(val)
		if err != nil {
			return nil, err
		}
		return raw.MarshalJSON()
	case StringSet:
		list := make([]any, len(val))
		for i, s := range val {
			list[i] = s
		}
		return MarshalCanonical(list)
	case NumberSet:
		list := make([]any, len(val))
		for i, n := range val {
			list[i] = n.String()
		}
		return MarshalCanonical(list)
	case BinarySet:
		list := make([]any, len(val))
		for i, b := range val {
			list[i] = base64.StdEncoding.EncodeToString(b)
		}
		return MarshalCanonical(list)
	default:
		return nil, fmt.Errorf("unknown attribute type: %T", v)
	}
}

// EncodeImage renders every attribute of m as an envelope.
func EncodeImage(m Map) (RawImage, error) {
	raw := make(RawImage, len(m))
	for k, v := range m {
		env, err := Encode(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		raw[k] = env
	}
	return raw, nil
}

// MarshalJSON writes the image with keys in canonical order.
func (raw RawImage) MarshalJSON() ([]byte, error) {
	if raw == nil {
		return []byte("null"), nil
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sortKeys(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalString(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw[k]); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		buf.Write(compact.Bytes())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
