package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain", "Contact: cph@bank.example", "cph@bank.example"},
		{"embedded in sentence", "Write to oslo.branch@bank.no for routing.", "oslo.branch@bank.no"},
		{"first of several", "a@x.dk then b@y.se", "a@x.dk"},
		{"none", "no contact listed", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractEmail(tt.text))
		})
	}
}
