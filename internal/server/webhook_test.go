package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/sellerlab/wbcompare/internal/models"
)

type fakeResolver struct {
	completed []string
	canceled  []string
	err       error
}

func (f *fakeResolver) CompletePayment(ctx context.Context, externalInvoiceID string) error {
	f.completed = append(f.completed, externalInvoiceID)
	return f.err
}

func (f *fakeResolver) CancelPayment(ctx context.Context, externalInvoiceID string) error {
	f.canceled = append(f.canceled, externalInvoiceID)
	return f.err
}

type fakeEvents struct {
	recorded []int64
}

func (f *fakeEvents) CreateEvent(ctx context.Context, userID int64, eventType models.EventType) error {
	f.recorded = append(f.recorded, userID)
	return nil
}

func testHandlers(payments PaymentResolver, events EventRecorder) *Handlers {
	return &Handlers{
		Payments: payments,
		Events:   events,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func postWebhook(t *testing.T, h *Handlers, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/yookassa", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.YookassaWebhook(rec, req)
	return rec
}

const succeededBody = `{
	"type": "notification",
	"event": "payment.succeeded",
	"object": {
		"id": "pay-abc",
		"status": "succeeded",
		"metadata": {"order_id": "order-1", "user_id": "42"}
	}
}`

func TestYookassaWebhook_PaymentSucceeded(t *testing.T) {
	resolver := &fakeResolver{}
	events := &fakeEvents{}
	h := testHandlers(resolver, events)

	rec := postWebhook(t, h, succeededBody)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(resolver.completed) != 1 || resolver.completed[0] != "order-1" {
		t.Fatalf("expected order-1 completed, got %+v", resolver.completed)
	}
	if len(events.recorded) != 1 || events.recorded[0] != 42 {
		t.Fatalf("expected purchase event for user 42, got %+v", events.recorded)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestYookassaWebhook_PaymentCanceled(t *testing.T) {
	resolver := &fakeResolver{}
	h := testHandlers(resolver, &fakeEvents{})

	body := `{
		"type": "notification",
		"event": "payment.canceled",
		"object": {"id": "pay-abc", "metadata": {"order_id": "order-2", "user_id": "42"}}
	}`
	rec := postWebhook(t, h, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(resolver.canceled) != 1 || resolver.canceled[0] != "order-2" {
		t.Fatalf("expected order-2 canceled, got %+v", resolver.canceled)
	}
	if len(resolver.completed) != 0 {
		t.Fatalf("cancel must not complete: %+v", resolver.completed)
	}
}

func TestYookassaWebhook_AlwaysOK(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{broken`},
		{"wrong type", `{"type":"other","event":"payment.succeeded","object":{"id":"x","metadata":{"order_id":"o"}}}`},
		{"missing order id", `{"type":"notification","event":"payment.succeeded","object":{"id":"x","metadata":{}}}`},
		{"unknown event", `{"type":"notification","event":"refund.succeeded","object":{"id":"x","metadata":{"order_id":"o"}}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resolver := &fakeResolver{}
			h := testHandlers(resolver, &fakeEvents{})

			rec := postWebhook(t, h, tc.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200 for %s, got %d", tc.name, rec.Code)
			}
			if len(resolver.completed) != 0 || len(resolver.canceled) != 0 {
				t.Fatalf("no payment action expected for %s", tc.name)
			}
		})
	}
}

func TestYookassaWebhook_ResolverErrorStillOK(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("db down")}
	events := &fakeEvents{}
	h := testHandlers(resolver, events)

	rec := postWebhook(t, h, succeededBody)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even on internal failure, got %d", rec.Code)
	}
	if len(events.recorded) != 0 {
		t.Fatal("no purchase event should be recorded when completion fails")
	}
}
