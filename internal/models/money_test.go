package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCentsString(t *testing.T) {
	assert.Equal(t, "24.99", Cents(2499).String())
	assert.Equal(t, "0.05", Cents(5).String())
	assert.Equal(t, "10.00", Cents(1000).String())
	assert.Equal(t, "-3.50", Cents(-350).String())
}

func TestCentsMarshalJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Total Cents `json:"total"`
	}{Total: 2499})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":24.99}`, string(b))
}

func TestParseCents(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Cents
	}{
		{"24.99", 2499},
		{"4.9", 490},
		{"12", 1200},
		{"-0.05", -5},
	} {
		got, err := ParseCents(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseCents("1.999")
	assert.Error(t, err, "more than two decimal places")

	_, err = ParseCents("abc")
	assert.Error(t, err)
}
