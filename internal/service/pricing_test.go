package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculateTotals(t *testing.T) {
	tests := []struct {
		name     string
		subtotal string
		tax      string
		shipping string
		total    string
	}{
		{"free shipping above threshold", "130", "10.4", "0", "140.4"},
		{"flat shipping below threshold", "20", "1.6", "10", "31.6"},
		{"exactly at threshold pays shipping", "100", "8", "10", "118"},
		{"just above threshold", "100.01", "8", "0", "108.01"},
		{"tax rounds to cents", "19.99", "1.6", "10", "31.59"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateTotals(decimal.RequireFromString(tt.subtotal))
			assert.True(t, decimal.RequireFromString(tt.tax).Equal(got.Tax), "tax %s", got.Tax)
			assert.True(t, decimal.RequireFromString(tt.shipping).Equal(got.Shipping), "shipping %s", got.Shipping)
			assert.True(t, decimal.RequireFromString(tt.total).Equal(got.Total), "total %s", got.Total)
			assert.True(t, got.Total.Equal(got.Subtotal.Add(got.Tax).Add(got.Shipping)))
		})
	}
}
