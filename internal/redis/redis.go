package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Service struct {
	client *redis.Client
}

func New(redisURL string) (*Service, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Service{client: client}, nil
}

func (s *Service) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client
func (s *Service) Client() *redis.Client {
	return s.client
}

// CachedInvoice is a payment link kept around so repeatedly opening the
// payment screen does not mint duplicate provider invoices.
type CachedInvoice struct {
	ExternalInvoiceID string `json:"external_invoice_id"`
	ConfirmationURL   string `json:"confirmation_url"`
}

func invoiceKey(userID int64, option string) string {
	return fmt.Sprintf("invoice:%d:%s", userID, option)
}

func (s *Service) CacheInvoice(ctx context.Context, userID int64, option string, inv CachedInvoice, ttl time.Duration) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to encode invoice: %w", err)
	}
	return s.client.Set(ctx, invoiceKey(userID, option), data, ttl).Err()
}

// GetCachedInvoice returns the cached invoice or nil on a miss.
func (s *Service) GetCachedInvoice(ctx context.Context, userID int64, option string) (*CachedInvoice, error) {
	data, err := s.client.Get(ctx, invoiceKey(userID, option)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached invoice: %w", err)
	}

	var inv CachedInvoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to decode cached invoice: %w", err)
	}
	return &inv, nil
}

func (s *Service) InvalidateInvoice(ctx context.Context, userID int64, option string) error {
	return s.client.Del(ctx, invoiceKey(userID, option)).Err()
}
