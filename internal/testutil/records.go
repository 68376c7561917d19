package testutil

import (
	"encoding/json"
	"testing"

	"github.com/roach88/pos/internal/attr"
	"github.com/roach88/pos/internal/stream"
)

// Envelope parses an envelope-encoded image literal such as
// {"order_id":{"S":"A1"}}. Attributes are not validated, so malformed
// envelopes can be built on purpose.
func Envelope(t testing.TB, js string) attr.RawImage {
	t.Helper()
	var img attr.RawImage
	if err := json.Unmarshal([]byte(js), &img); err != nil {
		t.Fatalf("Envelope(%s): %v", js, err)
	}
	return img
}

// Image wraps a bare JSON object literal into an envelope-encoded image.
func Image(t testing.TB, js string) attr.RawImage {
	t.Helper()
	doc, err := attr.DecodeJSON([]byte(js))
	if err != nil {
		t.Fatalf("Image(%s): %v", js, err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		t.Fatalf("Image(%s): not an object", js)
	}
	m, err := attr.WrapMap(obj)
	if err != nil {
		t.Fatalf("Image(%s): %v", js, err)
	}
	raw, err := attr.EncodeImage(m)
	if err != nil {
		t.Fatalf("Image(%s): %v", js, err)
	}
	return raw
}

// KeyImage returns {"order_id":{"S":key}}.
func KeyImage(key string) attr.RawImage {
	env, _ := attr.Encode(attr.String(key))
	return attr.RawImage{"order_id": env}
}

// InsertRecord builds an INSERT at seq with the given new image.
func InsertRecord(seq string, newImage attr.RawImage) stream.Record {
	return changeRecord(stream.Insert, seq, newImage, nil)
}

// ModifyRecord builds a MODIFY at seq.
func ModifyRecord(seq string, newImage, oldImage attr.RawImage) stream.Record {
	return changeRecord(stream.Modify, seq, newImage, oldImage)
}

// RemoveRecord builds a REMOVE at seq for key.
func RemoveRecord(seq, key string) stream.Record {
	rec := changeRecord(stream.Remove, seq, nil, nil)
	rec.Change.Keys = KeyImage(key)
	return rec
}

func changeRecord(name stream.EventName, seq string, newImage, oldImage attr.RawImage) stream.Record {
	return stream.Record{
		EventID:     "evt-" + seq,
		EventName:   name,
		EventSource: "pos:test",
		Change: stream.Change{
			NewImage:       newImage,
			OldImage:       oldImage,
			SequenceNumber: seq,
			StreamViewType: stream.ViewNewAndOldImages,
		},
	}
}
