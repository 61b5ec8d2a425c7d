package refunds

import (
	"math"

	"github.com/shopspring/decimal"
)

// ContractorRefundStats is the purchase and refund history shown next to a
// request under review.
type ContractorRefundStats struct {
	TotalPurchased   int64           `json:"total_purchased"`
	TotalClosed      int64           `json:"total_closed"`
	ConversionRate   float64         `json:"conversion_rate"` // percent of purchased leads closed
	RefundRequests   int64           `json:"refund_requests"`
	ApprovedRefunds  int64           `json:"approved_refunds"`
	AverageLeadValue decimal.Decimal `json:"average_lead_value"`
}

func newStats(purchased, closed int64, counts Counts, avg decimal.Decimal) ContractorRefundStats {
	st := ContractorRefundStats{
		TotalPurchased:   purchased,
		TotalClosed:      closed,
		RefundRequests:   counts.Total,
		ApprovedRefunds:  counts.Approved,
		AverageLeadValue: avg,
	}
	if purchased > 0 {
		st.ConversionRate = math.Round(float64(closed)/float64(purchased)*10000) / 100
	}
	return st
}

// minHistory is the purchase count below which conversion is not trusted.
const minHistory = 5

// RiskScore rates a new request from 0 (low) to 100 (high).
//
//	up to 50 points  refund requests per purchased lead
//	up to 30 points  low conversion, once the contractor has minHistory purchases
//	up to 20 points  share of earlier requests that were approved
//
// Contractors with little history get the neutral half of the conversion term.
func RiskScore(st ContractorRefundStats) int {
	var score float64

	if st.TotalPurchased > 0 {
		score += 50 * math.Min(1, float64(st.RefundRequests)/float64(st.TotalPurchased))
	} else if st.RefundRequests > 0 {
		score += 50
	}

	if st.TotalPurchased >= minHistory {
		score += 30 * (1 - math.Min(100, st.ConversionRate)/100)
	} else {
		score += 15
	}

	if st.RefundRequests > 0 {
		score += 20 * float64(st.ApprovedRefunds) / float64(st.RefundRequests)
	}

	return int(math.Max(0, math.Min(100, math.Round(score))))
}
