package models

import "time"

// ProductOption is a purchasable balance top-up package.
type ProductOption string

const (
	OptionSingle ProductOption = "SINGLE"
	OptionPacket ProductOption = "PACKET"
)

type PaymentStatus string

const (
	PaymentNew      PaymentStatus = "NEW"
	PaymentPending  PaymentStatus = "PENDING"
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentCanceled PaymentStatus = "CANCELED"
	PaymentFailed   PaymentStatus = "FAILED"
)

type EventType string

const (
	EventStartBot     EventType = "START_BOT"
	EventCompareCards EventType = "COMPARE_CARDS"
	EventPayForOption EventType = "PAY_FOR_OPTION"
)

type ReportState string

const (
	ReportQueued ReportState = "QUEUED"
	ReportDone   ReportState = "DONE"
	ReportFailed ReportState = "FAILED"
)

// User keyed by Telegram user id.
type User struct {
	ID             int64      `json:"id"`
	Username       string     `json:"username,omitempty"`
	ReportsBalance int        `json:"reports_balance"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActiveAt   *time.Time `json:"last_active_at,omitempty"`
}

type FeatureFlag struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type Price struct {
	Option        ProductOption `json:"option"`
	Price         int           `json:"price"`
	ReportsAmount int           `json:"reports_amount"`
}

type Payment struct {
	ID                int64         `json:"id"`
	UserID            int64         `json:"user_id"`
	TotalPrice        int           `json:"total_price"`
	Option            ProductOption `json:"option"`
	Status            PaymentStatus `json:"status"`
	ExternalInvoiceID string        `json:"external_invoice_id,omitempty"`
	ConfirmationURL   string        `json:"confirmation_url,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

type Report struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	Articles  []int64     `json:"articles"`
	State     ReportState `json:"state"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

type Event struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Type      EventType `json:"event_type"`
	CreatedAt time.Time `json:"created_at"`
}
