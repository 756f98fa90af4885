package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalFormBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Record
		expected string
	}{
		{"empty", Record{}, "{}"},
		{"string", Record{"a": String("hello")}, `{"a":"hello"}`},
		{"int", Record{"a": Int(-42)}, `{"a":-42}`},
		{"bool", Record{"a": Bool(true)}, `{"a":true}`},
		{"null", Record{"a": Null{}}, `{"a":null}`},
		{"nil value reads as null", Record{"a": nil}, `{"a":null}`},
		{"max int64", Record{"a": Int(9223372036854775807)}, `{"a":9223372036854775807}`},
		{"no html escaping", Record{"a": String("<b>&</b>")}, `{"a":"<b>&</b>"}`},
		{"control chars escaped", Record{"a": String("x\ny")}, `{"a":"x\ny"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(CanonicalForm(tt.input)))
		})
	}
}

func TestCanonicalFormSortedKeys(t *testing.T) {
	r := Record{
		"zebra": Int(1),
		"alpha": Int(2),
		"beta":  Int(3),
	}
	assert.Equal(t, `{"alpha":2,"beta":3,"zebra":1}`, string(CanonicalForm(r)))
}

func TestCanonicalFormUTF16Ordering(t *testing.T) {
	// U+E000 vs U+10000: UTF-16 order differs from UTF-8 byte order.
	r := Record{
		"\uE000":     Int(1),
		"\U00010000": Int(2),
	}
	expected := "{\"\U00010000\":2,\"\uE000\":1}"
	assert.Equal(t, expected, string(CanonicalForm(r)))
}

func TestCanonicalFormNFC(t *testing.T) {
	composed := Record{"name": String("caf\u00e9")}
	decomposed := Record{"name": String("cafe\u0301")}

	assert.Equal(t, CanonicalForm(composed), CanonicalForm(decomposed))
}

func TestCanonicalFormLineSeparators(t *testing.T) {
	r := Record{"a": String("x\u2028y\u2029z")}
	assert.Equal(t, "{\"a\":\"x\u2028y\u2029z\"}", string(CanonicalForm(r)))

	// A literal backslash followed by the text u2028 stays escaped.
	literal := Record{"a": String(`\u2028`)}
	assert.Equal(t, `{"a":"\\u2028"}`, string(CanonicalForm(literal)))
}

func TestCanonicalListPreservesOrder(t *testing.T) {
	list := []Record{{"t": String("b")}, {"t": String("a")}}
	assert.Equal(t, `[{"t":"b"},{"t":"a"}]`, string(CanonicalList(list)))
	assert.Equal(t, "[]", string(CanonicalList(nil)))
}

func TestMarshalRecordsKeepsExactStrings(t *testing.T) {
	decomposed := []Record{{"name": String("cafe\u0301")}}

	data := MarshalRecords(decomposed)
	back, err := UnmarshalRecords(data)
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, String("cafe\u0301"), back[0]["name"])
}

func TestMarshalRecordsRoundTrip(t *testing.T) {
	records := []Record{
		{"title": String("A"), "price": String("$10"), "stock": Int(3), "sale": Bool(false), "note": Null{}},
		{"title": String("B <new>")},
		{},
	}

	back, err := UnmarshalRecords(MarshalRecords(records))
	require.NoError(t, err)
	require.Len(t, back, len(records))
	for i := range records {
		assert.True(t, records[i].Equal(back[i]), "record %d differs", i)
	}
}

func TestUnmarshalRecordsEmpty(t *testing.T) {
	back, err := UnmarshalRecords([]byte("[]"))
	require.NoError(t, err)
	assert.NotNil(t, back)
	assert.Empty(t, back)
}

func TestUnmarshalRecordsRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"non-numeric number", `[{"price": 9.99.1}]`},
		{"nested object", `[{"meta": {"a": 1}}]`},
		{"nested array", `[{"tags": ["a"]}]`},
		{"not an object", `["title"]`},
		{"not json", `[{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalRecords([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestCanonicalFormFloat(t *testing.T) {
	r := Record{"title": String("Lamp"), "price": Float(12.99), "weight": Float(1.5e-7)}
	assert.Equal(t, `{"price":12.99,"title":"Lamp","weight":1.5e-7}`, string(CanonicalForm(r)))
}

func TestMarshalRecordsFloatRoundTrip(t *testing.T) {
	records := []Record{
		{"title": String("Lamp"), "price": Float(12.99)},
		{"title": String("Desk"), "price": Float(0.30000000000000004)},
	}

	back, err := UnmarshalRecords(MarshalRecords(records))
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, records, back)
}
