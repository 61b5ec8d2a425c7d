package payments

import "errors"

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrNoRefundTarget   = errors.New("payment has no charge or payment intent to refund")
)
