package record

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/changewatch/internal/apperr"
)

func TestValueString(t *testing.T) {
	assert.Equal(t, "", Null{}.String())
	assert.Equal(t, "abc", String("abc").String())
	assert.Equal(t, "-7", Int(-7).String())
	assert.Equal(t, "true", Bool(true).String())
}

func TestRecordGet(t *testing.T) {
	r := Record{"a": String("x"), "b": nil}

	assert.Equal(t, String("x"), r.Get("a"))
	assert.Equal(t, Null{}, r.Get("b"))
	assert.Equal(t, Null{}, r.Get("missing"))
}

func TestRecordFieldsSorted(t *testing.T) {
	r := Record{"price": Int(1), "title": Int(2), "author": Int(3)}
	assert.Equal(t, []string{"author", "price", "title"}, r.Fields())
}

func TestRecordEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Record
		equal bool
	}{
		{"identical", Record{"a": String("x")}, Record{"a": String("x")}, true},
		{"absent equals null", Record{"a": String("x")}, Record{"a": String("x"), "b": Null{}}, true},
		{"different value", Record{"a": String("x")}, Record{"a": String("y")}, false},
		{"different type", Record{"a": String("1")}, Record{"a": Int(1)}, false},
		{"extra field", Record{"a": String("x")}, Record{"a": String("x"), "b": Int(0)}, false},
		{"both empty", Record{}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equal(tt.b))
			assert.Equal(t, tt.equal, tt.b.Equal(tt.a))
		})
	}
}

func TestRecordClone(t *testing.T) {
	r := Record{"a": String("x")}
	c := r.Clone()
	c["a"] = String("y")

	assert.Equal(t, String("x"), r["a"])
	assert.Nil(t, Record(nil).Clone())
}

func TestFromMap(t *testing.T) {
	r, err := FromMap(map[string]any{
		"title": "A",
		"stock": 3,
		"big":   int64(1 << 40),
		"sale":  false,
		"note":  nil,
		"sku":   json.Number("17"),
		"typed": String("t"),
	})
	require.NoError(t, err)

	assert.Equal(t, Record{
		"title": String("A"),
		"stock": Int(3),
		"big":   Int(1 << 40),
		"sale":  Bool(false),
		"note":  Null{},
		"sku":   Int(17),
		"typed": String("t"),
	}, r)
}

func TestFromMapRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"NaN", math.NaN()},
		{"infinity", math.Inf(1)},
		{"json garbage", json.Number("1.2.3")},
		{"nested map", map[string]any{"a": 1}},
		{"slice", []any{"a"}},
		{"struct", struct{}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(map[string]any{"field": tt.value})
			require.Error(t, err)
			assert.True(t, apperr.IsValidation(err))
		})
	}
}

func TestFromMapsReportsIndex(t *testing.T) {
	_, err := FromMaps([]map[string]any{{"a": "ok"}, {"a": []any{1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record[1]")
	assert.True(t, apperr.IsValidation(err))
}

func TestRecordJSON(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"b":2,"a":"x","c":null,"d":true}`), &r))
	assert.Equal(t, Record{"a": String("x"), "b": Int(2), "c": Null{}, "d": Bool(true)}, r)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":2,"c":null,"d":true}`, string(data))
}

func TestRecordJSONLargeInteger(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"id":9007199254740993}`), &r))
	assert.Equal(t, Int(9007199254740993), r["id"], "no float64 precision loss")
}

func TestFromMapNumbers(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  Value
	}{
		{"float64", 12.99, Float(12.99)},
		{"float32", float32(1.5), Float(1.5)},
		{"integral float64", 12.0, Int(12)},
		{"negative zero", math.Copysign(0, -1), Int(0)},
		{"json float", json.Number("12.99"), Float(12.99)},
		{"json integral float", json.Number("12.0"), Int(12)},
		{"json exponent", json.Number("1e3"), Int(1000)},
		{"json beyond int64", json.Number("100000000000000000000"), Float(1e20)},
		{"Float value", Float(3), Int(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := FromMap(map[string]any{"n": tt.value})
			require.NoError(t, err)
			assert.Equal(t, tt.want, r["n"])
		})
	}
}

func TestFloatString(t *testing.T) {
	tests := []struct {
		value Float
		want  string
	}{
		{12.99, "12.99"},
		{-0.5, "-0.5"},
		{0.30000000000000004, "0.30000000000000004"},
		{1e20, "100000000000000000000"},
		{1e21, "1e+21"},
		{1.5e-7, "1.5e-7"},
		{0.000001, "0.000001"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.String())
		})
	}
}

func TestRecordJSONFloatRoundTrip(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"price":12.99,"ratio":1.5e-7,"big":1e21,"qty":2.0}`), &r))
	assert.Equal(t, Record{"price": Float(12.99), "ratio": Float(1.5e-7), "big": Float(1e21), "qty": Int(2)}, r)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"big":1e+21,"price":12.99,"qty":2,"ratio":1.5e-7}`, string(data))

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, r.Equal(back))
}

func TestValuesEqualFloat(t *testing.T) {
	assert.True(t, ValuesEqual(Float(12.99), Float(12.99)))
	assert.False(t, ValuesEqual(Float(12.99), Float(13.49)))
	assert.False(t, ValuesEqual(Float(12.99), String("12.99")))
}
