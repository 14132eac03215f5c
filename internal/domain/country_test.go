package domain

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "separators", raw: " +242 (06) 555-12.34 ", want: "+242065551234"},
		{name: "double zero prefix", raw: "00237 66 555 1234", want: "+237665551234"},
		{name: "plus only at start", raw: "06+555", want: "06555"},
		{name: "non ascii digits dropped", raw: "+242 ٠٦ 555 1234", want: "+2425551234"},
		{name: "fullwidth digits dropped", raw: "１２3456", want: "3456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.raw))
		})
	}
}

func TestPhoneSuffix(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "country codes differ", raw: "+242 06 555 1234", want: "65551234"},
		{name: "same suffix other country", raw: "+237 66 555 1234", want: "65551234"},
		{name: "short number kept whole", raw: "5551234", want: "5551234"},
		{name: "mixed scripts", raw: "٠٦٠٦٠٦٠٦٠٦ 12345678", want: "12345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PhoneSuffix(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
