package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/sellerlab/wbcompare/internal/models"
	"github.com/sellerlab/wbcompare/internal/queue"
	"github.com/sellerlab/wbcompare/internal/redis"
	"github.com/sellerlab/wbcompare/internal/repository"
)

// PaymentResolver settles invoices named in provider notifications.
type PaymentResolver interface {
	CompletePayment(ctx context.Context, externalInvoiceID string) error
	CancelPayment(ctx context.Context, externalInvoiceID string) error
}

// EventRecorder persists analytics events from the webhook path.
type EventRecorder interface {
	CreateEvent(ctx context.Context, userID int64, eventType models.EventType) error
}

type Handlers struct {
	Repo     *repository.Repository
	Redis    *redis.Service
	Queue    *queue.ReportQueue
	Payments PaymentResolver
	Events   EventRecorder

	validate *validator.Validate
}

func NewHandlers(repo *repository.Repository, rds *redis.Service, q *queue.ReportQueue, payments PaymentResolver) *Handlers {
	return &Handlers{
		Repo:     repo,
		Redis:    rds,
		Queue:    q,
		Payments: payments,
		Events:   repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

const (
	eventPaymentSucceeded = "payment.succeeded"
	eventPaymentCanceled  = "payment.canceled"
)

type yookassaNotification struct {
	Type   string `json:"type" validate:"required,eq=notification"`
	Event  string `json:"event" validate:"required"`
	Object struct {
		ID       string `json:"id" validate:"required"`
		Status   string `json:"status"`
		Metadata struct {
			OrderID string `json:"order_id" validate:"required"`
			UserID  string `json:"user_id"`
		} `json:"metadata"`
	} `json:"object" validate:"required"`
}

// YookassaWebhook processes payment status notifications. It always
// answers 200, anything else makes the provider retry the delivery and
// a malformed or unknown notification will never become well-formed.
func (h *Handlers) YookassaWebhook(w http.ResponseWriter, r *http.Request) {
	defer h.ok(w)

	var n yookassaNotification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		slog.Warn("webhook: undecodable payload", "err", err)
		return
	}

	if err := h.validate.Struct(n); err != nil {
		slog.Warn("webhook: invalid notification", "event", n.Event, "err", err)
		return
	}

	orderID := n.Object.Metadata.OrderID
	slog.Info("webhook: notification received",
		"event", n.Event, "order_id", orderID, "provider_payment_id", n.Object.ID)

	switch n.Event {
	case eventPaymentSucceeded:
		if err := h.Payments.CompletePayment(r.Context(), orderID); err != nil {
			slog.Error("webhook: complete payment", "order_id", orderID, "err", err)
			return
		}
		h.recordPurchaseEvent(r, n.Object.Metadata.UserID)

	case eventPaymentCanceled:
		if err := h.Payments.CancelPayment(r.Context(), orderID); err != nil {
			slog.Error("webhook: cancel payment", "order_id", orderID, "err", err)
		}

	default:
		slog.Warn("webhook: unhandled event", "event", n.Event)
	}
}

func (h *Handlers) recordPurchaseEvent(r *http.Request, rawUserID string) {
	userID, err := strconv.ParseInt(rawUserID, 10, 64)
	if err != nil {
		slog.Warn("webhook: bad user_id in metadata", "user_id", rawUserID)
		return
	}
	if err := h.Events.CreateEvent(r.Context(), userID, models.EventPayForOption); err != nil {
		slog.Warn("webhook: could not record purchase event", "user_id", userID, "err", err)
	}
}

func (h *Handlers) ok(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
