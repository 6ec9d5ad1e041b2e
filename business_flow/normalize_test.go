package businessflow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      string
		wantError bool
	}{
		{name: "valid date", input: "2024-06-01", want: "2024-06-01"},
		{name: "surrounding spaces", input: " 2024-06-01 ", want: "2024-06-01"},
		{name: "empty", input: ""},
		{name: "null literal", input: "null"},
		{name: "undefined literal", input: "undefined"},
		{name: "impossible month", input: "2024-13-45", wantError: true},
		{name: "february 30", input: "2024-02-30", wantError: true},
		{name: "slash separated", input: "2024/01/01", wantError: true},
		{name: "timestamp", input: "2024-06-01T00:00:00Z", wantError: true},
		{name: "garbage", input: "soon", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDate("dt_next_box", tt.input)
			if tt.wantError {
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
		})
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"12,5", "12.5"},
		{"12.5", "12.5"},
		{"1,239", "1.24"},
		{" 48 ", "48"},
		{"", "0"},
		{"-", "0"},
		{"abc", "0"},
		{"0,08", "0.08"},
		{"1 000,5", "1000.5"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseDecimal(tt.input)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}
