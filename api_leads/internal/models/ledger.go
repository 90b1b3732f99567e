package models

import "time"

type LedgerEntry struct {
	ID           string    `json:"id"`
	DealerID     string    `json:"dealerId"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balanceAfter"`
	Reason       string    `json:"reason"`
	ReferenceID  string    `json:"referenceId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

const (
	ReconciliationOpen     = "open"
	ReconciliationResolved = "resolved"
)

// ReconciliationEvent records a balance discrepancy left by a failed
// compensating credit.
type ReconciliationEvent struct {
	ID             string     `json:"id"`
	DealerID       string     `json:"dealerId"`
	Amount         int64      `json:"amount"`
	Reason         string     `json:"reason"`
	ReferenceID    string     `json:"referenceId,omitempty"`
	ErrorMessage   string     `json:"errorMessage"`
	Status         string     `json:"status"`
	ResolutionNote string     `json:"resolutionNote,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

// Payment claim states. A failed claim may be retried by a later delivery.
const (
	PaymentProcessing = "processing"
	PaymentCredited   = "credited"
	PaymentFailed     = "failed"
)

type PaymentTransaction struct {
	ID          string    `json:"id"`
	DealerID    string    `json:"dealerId"`
	OrderID     string    `json:"orderId"`
	PaymentID   string    `json:"paymentId"`
	AmountPaise int64     `json:"amountPaise"`
	Credits     int64     `json:"credits"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}
