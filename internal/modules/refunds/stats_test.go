package refunds

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewStatsConversionRate(t *testing.T) {
	st := newStats(3, 1, Counts{Total: 2, Approved: 1}, decimal.RequireFromString("45.50"))
	assert.Equal(t, 33.33, st.ConversionRate)
	assert.Equal(t, int64(2), st.RefundRequests)
	assert.True(t, st.AverageLeadValue.Equal(decimal.RequireFromString("45.5")))

	assert.Zero(t, newStats(0, 0, Counts{}, decimal.Zero).ConversionRate)
}

func TestRiskScore(t *testing.T) {
	tests := []struct {
		name string
		st   ContractorRefundStats
		want int
	}{
		{"new contractor", ContractorRefundStats{TotalPurchased: 1}, 15},
		{"healthy history", ContractorRefundStats{TotalPurchased: 20, TotalClosed: 10, ConversionRate: 50}, 15},
		{"every lead disputed", ContractorRefundStats{TotalPurchased: 10, RefundRequests: 10, ApprovedRefunds: 10}, 100},
		{"requests without purchases", ContractorRefundStats{RefundRequests: 1}, 65},
		{"some disputes", ContractorRefundStats{TotalPurchased: 10, ConversionRate: 100, RefundRequests: 2, ApprovedRefunds: 1}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RiskScore(tt.st))
		})
	}
}
