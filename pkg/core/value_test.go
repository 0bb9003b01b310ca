package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null},
		{"int64", int64(7), IntValue(7)},
		{"int", 3, IntValue(3)},
		{"bool", true, IntValue(1)},
		{"float", 1.5, FloatValue(1.5)},
		{"string", "x", StringValue("x")},
		{"bytes", []byte{1, 2}, BytesValue([]byte{1, 2})},
		{"value", IntValue(9), IntValue(9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FromAny(struct{}{})
	assert.Error(t, err)
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "NULL", Null.String())
	assert.Equal(t, "42", IntValue(42).String())
	assert.Equal(t, "0.25", FloatValue(0.25).String())
	assert.Equal(t, "abc", StringValue("abc").String())
	assert.Equal(t, "x'0aff'", BytesValue([]byte{0x0a, 0xff}).String())
	assert.Equal(t, "INTEGER", KindInt.String())
	assert.True(t, Null.IsNull())
	assert.Nil(t, Null.Any())
	assert.Equal(t, int64(5), IntValue(5).Any())
}
