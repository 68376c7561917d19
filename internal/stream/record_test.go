package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const triggerEvent = `{
  "Records": [
    {
      "eventID": "1",
      "eventName": "INSERT",
      "eventSource": "aws:dynamodb",
      "dynamodb": {
        "Keys": {"order_id": {"S": "123"}},
        "NewImage": {"order_id": {"S": "123"}, "total": {"N": "42"}},
        "SequenceNumber": "111",
        "StreamViewType": "NEW_AND_OLD_IMAGES"
      }
    },
    {
      "eventID": "2",
      "eventName": "REMOVE",
      "dynamodb": {
        "OldImage": {"order_id": {"S": "123"}},
        "SequenceNumber": "222"
      }
    }
  ]
}`

func TestDecode_TriggerEvent(t *testing.T) {
	ev, err := Decode(strings.NewReader(triggerEvent))
	require.NoError(t, err)
	require.Len(t, ev.Records, 2)

	first := ev.Records[0]
	assert.Equal(t, Insert, first.EventName)
	assert.Equal(t, "111", first.Change.SequenceNumber)
	assert.Contains(t, first.Change.NewImage, "total")
	assert.JSONEq(t, `{"N": "42"}`, string(first.Change.NewImage["total"]))

	second := ev.Records[1]
	assert.Equal(t, Remove, second.EventName)
	assert.Nil(t, second.Change.NewImage)
	assert.Equal(t, "222", second.Identifier())
}

func TestDecode_BareArray(t *testing.T) {
	ev, err := Decode(strings.NewReader(`[{"eventID":"e1","eventName":"MODIFY","dynamodb":{}}]`))
	require.NoError(t, err)
	require.Len(t, ev.Records, 1)
	assert.Equal(t, "e1", ev.Records[0].Identifier())
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(strings.NewReader(""))
	assert.Error(t, err)

	_, err = Decode(strings.NewReader(`{"Records": 5}`))
	assert.Error(t, err)
}

func TestEventName_Known(t *testing.T) {
	assert.True(t, Insert.Known())
	assert.True(t, Modify.Known())
	assert.True(t, Remove.Known())
	assert.False(t, EventName("TRUNCATE").Known())
}

func TestNormalizeSequence(t *testing.T) {
	n, err := NormalizeSequence("42")
	require.NoError(t, err)
	assert.Len(t, n, 40)
	assert.True(t, strings.HasSuffix(n, "42"))

	same, err := NormalizeSequence("00042")
	require.NoError(t, err)
	assert.Equal(t, n, same)

	empty, err := NormalizeSequence("")
	require.NoError(t, err)
	assert.Equal(t, "", empty)

	_, err = NormalizeSequence("12a")
	assert.Error(t, err)

	_, err = NormalizeSequence(strings.Repeat("9", 41))
	assert.Error(t, err)
}

func TestCompareSequence(t *testing.T) {
	// Longer than int64.
	big := "400000000000000000000000001"

	assert.Equal(t, -1, CompareSequence("9", "10"))
	assert.Equal(t, 1, CompareSequence(big, "9223372036854775807"))
	assert.Equal(t, 0, CompareSequence("007", "7"))
	assert.Equal(t, -1, CompareSequence("bad", "1"))
}

func TestFormatSequence(t *testing.T) {
	assert.Equal(t, "17", FormatSequence(17))
}

func TestTrimSequence(t *testing.T) {
	n, err := NormalizeSequence("42")
	require.NoError(t, err)
	assert.Equal(t, "42", TrimSequence(n))
	assert.Equal(t, "0", TrimSequence("0000"))
	assert.Equal(t, "", TrimSequence(""))
}
