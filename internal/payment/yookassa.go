package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const yookassaBaseURL = "https://api.yookassa.ru/v3"

// YookassaClient talks to the YooKassa payments API.
type YookassaClient struct {
	shopID       string
	secretKey    string
	returnURL    string
	receiptEmail string
	httpClient   *http.Client
}

func NewYookassaClient(shopID, secretKey, returnURL, receiptEmail string) *YookassaClient {
	if shopID == "" || secretKey == "" {
		slog.Error("yookassa credentials not configured",
			"shop_id_set", shopID != "", "secret_key_set", secretKey != "")
	}
	return &YookassaClient{
		shopID:       shopID,
		secretKey:    secretKey,
		returnURL:    returnURL,
		receiptEmail: receiptEmail,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

type amount struct {
	Value    string `json:"value"` // decimal string, the API rejects numbers
	Currency string `json:"currency"`
}

type createPaymentRequest struct {
	Amount       amount            `json:"amount"`
	Description  string            `json:"description"`
	Locale       string            `json:"locale"`
	ExpiresAt    string            `json:"expires_at"`
	Metadata     map[string]string `json:"metadata"`
	Confirmation struct {
		Type      string `json:"type"`
		ReturnURL string `json:"return_url"`
	} `json:"confirmation"`
	Capture bool     `json:"capture"`
	Receipt *receipt `json:"receipt,omitempty"`
}

type receipt struct {
	Customer struct {
		Email string `json:"email"`
	} `json:"customer"`
	Items []receiptItem `json:"items"`
}

type receiptItem struct {
	Description string `json:"description"`
	Amount      amount `json:"amount"`
	VATCode     int    `json:"vat_code"`
	Quantity    int    `json:"quantity"`
}

type CreatedPayment struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Description  string `json:"description"`
	Confirmation struct {
		Type            string `json:"type"`
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
}

// CreatePayment creates a pending invoice and returns its confirmation
// URL. orderID lands in the metadata and is how the webhook identifies
// the payment later.
func (c *YookassaClient) CreatePayment(ctx context.Context, priceRub int, orderID string, userID int64, description string) (*CreatedPayment, error) {
	value := fmt.Sprintf("%d.00", priceRub)
	expiresAt := time.Now().UTC().Add(12 * time.Hour).Format("2006-01-02T15:04:05.000Z")

	reqBody := createPaymentRequest{
		Amount:      amount{Value: value, Currency: "RUB"},
		Description: description,
		Locale:      "ru_RU",
		ExpiresAt:   expiresAt,
		Metadata: map[string]string{
			"order_id": orderID,
			"user_id":  fmt.Sprintf("%d", userID),
		},
		Capture: true,
	}
	reqBody.Confirmation.Type = "redirect"
	reqBody.Confirmation.ReturnURL = c.returnURL

	if c.receiptEmail != "" {
		r := &receipt{}
		r.Customer.Email = c.receiptEmail
		r.Items = []receiptItem{{
			Description: "Услуги ИП",
			Amount:      amount{Value: value, Currency: "RUB"},
			VATCode:     1, // no VAT, simplified tax scheme
			Quantity:    1,
		}}
		reqBody.Receipt = r
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, yookassaBaseURL+"/payments", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to yookassa: %w", err)
	}
	defer resp.Body.Close()

	var created CreatedPayment
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode yookassa response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yookassa API error: %d - %s", resp.StatusCode, created.Description)
	}
	if created.Status != "pending" {
		return nil, fmt.Errorf("unexpected payment status: %s", created.Status)
	}

	slog.Info("payment created",
		"order_id", orderID, "confirmation_url", created.Confirmation.ConfirmationURL)
	return &created, nil
}
