package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"string", `"hello"`, `"hello"`},
		{"int", `42`, `42`},
		{"large int kept exactly", `9223372036854775807`, `9223372036854775807`},
		{"float kept as written", `1.5`, `1.5`},
		{"null", `null`, `null`},
		{"bools", `[true,false]`, `[true,false]`},
		{"whitespace removed", "[ 1 ,\n 2 ]", `[1,2]`},
		{"sorted keys", `{"zebra":1,"alpha":2,"beta":3}`, `{"alpha":2,"beta":3,"zebra":1}`},
		{"nested sorted keys", `{"z":{"b":1,"a":2},"a":3}`, `{"a":3,"z":{"a":2,"b":1}}`},
		{"no html escaping", `"<a>&</a>"`, `"<a>&</a>"`},
		{"line separators literal", `"\u2028\u2029"`, "\"\u2028\u2029\""},
		{"escaped backslash before u2028 text", `"\\u2028"`, `"\\u2028"`},
		{"control characters", `"\u0001\n\t"`, `"\u0001\n\t"`},
		{"nfc normalized", "\"e\u0301\"", "\"\u00e9\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Canonicalize([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestCanonicalize_UTF16KeyOrder(t *testing.T) {
	// U+FF61 sorts before U+1F600 in UTF-8 byte order but after it in
	// UTF-16, where U+1F600 is the surrogate pair D83D DE00.
	input := "{\"\uFF61\":1,\"\U0001F600\":2}"
	result, err := Canonicalize([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uFF61\":1}", string(result))
}

func TestCanonicalize_Errors(t *testing.T) {
	_, err := Canonicalize([]byte(`{"a":`))
	assert.Error(t, err)

	_, err = Canonicalize([]byte(`1 2`))
	assert.ErrorContains(t, err, "trailing data")
}

func TestMarshalCanonical(t *testing.T) {
	v := struct {
		B int    `json:"b"`
		A string `json:"a"`
	}{B: 1, A: "x"}

	result, err := MarshalCanonical(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1}`, string(result))
}
