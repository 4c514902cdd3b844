package services

import "errors"

// Ledger error taxonomy. Handlers map these onto HTTP statuses:
// validation -> 400, not-found -> 404, conflict -> 409.
var (
	ErrInvalidCode          = errors.New("referral code must be 4-12 alphanumeric characters")
	ErrAffiliateNotFound    = errors.New("affiliate not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrBatchNotFound        = errors.New("payout batch not found")
	ErrNoPayableCommissions = errors.New("no payable commissions to batch")
	ErrBatchConflict        = errors.New("payable commissions were claimed concurrently, retry batch creation")
	ErrBatchAlreadyPaid     = errors.New("payout batch has already been marked paid")
	ErrInvalidPayoutMethod  = errors.New("payout method requires its account fields")
	ErrInvalidDelivery      = errors.New("unknown delivery status")
	ErrAffiliateHasLedger   = errors.New("affiliate has commissions and cannot be deleted")
)
