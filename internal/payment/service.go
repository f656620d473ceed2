package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sellerlab/wbcompare/internal/models"
	"github.com/sellerlab/wbcompare/internal/redis"
)

const invoiceCacheTTL = time.Hour

// Repo is the slice of the repository the payment flow needs.
type Repo interface {
	GetPrice(ctx context.Context, option models.ProductOption) (*models.Price, error)
	CreatePayment(ctx context.Context, userID int64, totalPrice int, option models.ProductOption) (*models.Payment, error)
	GetPaymentByExternalID(ctx context.Context, externalInvoiceID string) (*models.Payment, error)
	AttachInvoice(ctx context.Context, paymentID int64, externalInvoiceID, confirmationURL string) error
	UpdatePaymentStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error
	UpdateBalance(ctx context.Context, userID int64, amount int) (int, error)
}

// UserNotifier tells the user their top-up landed. Optional.
type UserNotifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// InvoiceCache deduplicates provider invoices per user and option.
type InvoiceCache interface {
	CacheInvoice(ctx context.Context, userID int64, option string, inv redis.CachedInvoice, ttl time.Duration) error
	GetCachedInvoice(ctx context.Context, userID int64, option string) (*redis.CachedInvoice, error)
	InvalidateInvoice(ctx context.Context, userID int64, option string) error
}

// Service drives the invoice lifecycle: NEW -> PENDING (invoice issued)
// -> SUCCESS (webhook) or CANCELED/FAILED.
type Service struct {
	repo     Repo
	cache    InvoiceCache
	client   *YookassaClient
	notifier UserNotifier
}

func NewService(repo Repo, cache InvoiceCache, client *YookassaClient, notifier UserNotifier) *Service {
	return &Service{repo: repo, cache: cache, client: client, notifier: notifier}
}

// CreateInvoice returns a confirmation URL for the given top-up option,
// reusing a cached invoice when the user re-opens the payment screen
// within the cache TTL.
func (s *Service) CreateInvoice(ctx context.Context, userID int64, option models.ProductOption) (string, error) {
	if cached, err := s.cache.GetCachedInvoice(ctx, userID, string(option)); err != nil {
		slog.Warn("invoice cache read failed", "user_id", userID, "err", err)
	} else if cached != nil {
		slog.Info("reusing cached invoice",
			"user_id", userID, "option", option, "external_invoice_id", cached.ExternalInvoiceID)
		return cached.ConfirmationURL, nil
	}

	price, err := s.repo.GetPrice(ctx, option)
	if err != nil {
		return "", fmt.Errorf("get price: %w", err)
	}

	p, err := s.repo.CreatePayment(ctx, userID, price.Price, option)
	if err != nil {
		return "", fmt.Errorf("create payment: %w", err)
	}

	orderID := uuid.New().String()
	description := fmt.Sprintf("Пополнение баланса: %d отчет(ов)", price.ReportsAmount)

	created, err := s.client.CreatePayment(ctx, price.Price, orderID, userID, description)
	if err != nil {
		if stErr := s.repo.UpdatePaymentStatus(ctx, p.ID, models.PaymentFailed); stErr != nil {
			slog.Warn("could not mark payment failed", "payment_id", p.ID, "err", stErr)
		}
		return "", fmt.Errorf("create yookassa payment: %w", err)
	}

	confirmationURL := created.Confirmation.ConfirmationURL
	if err := s.repo.AttachInvoice(ctx, p.ID, orderID, confirmationURL); err != nil {
		return "", fmt.Errorf("attach invoice: %w", err)
	}

	if err := s.cache.CacheInvoice(ctx, userID, string(option), redis.CachedInvoice{
		ExternalInvoiceID: orderID,
		ConfirmationURL:   confirmationURL,
	}, invoiceCacheTTL); err != nil {
		slog.Warn("invoice cache write failed", "user_id", userID, "err", err)
	}

	return confirmationURL, nil
}

// CompletePayment credits the purchased reports for a succeeded invoice.
// Idempotent: an already-succeeded payment is acknowledged without a
// second credit.
func (s *Service) CompletePayment(ctx context.Context, externalInvoiceID string) error {
	slog.Info("completing payment", "external_invoice_id", externalInvoiceID)

	p, err := s.repo.GetPaymentByExternalID(ctx, externalInvoiceID)
	if err != nil {
		return fmt.Errorf("find payment %s: %w", externalInvoiceID, err)
	}

	if p.Status == models.PaymentSuccess {
		slog.Warn("payment already processed, skipping", "payment_id", p.ID)
		return nil
	}

	price, err := s.repo.GetPrice(ctx, p.Option)
	if err != nil {
		return fmt.Errorf("get price for option %s: %w", p.Option, err)
	}

	if err := s.repo.UpdatePaymentStatus(ctx, p.ID, models.PaymentSuccess); err != nil {
		return fmt.Errorf("mark payment succeeded: %w", err)
	}

	balance, err := s.repo.UpdateBalance(ctx, p.UserID, price.ReportsAmount)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}

	if err := s.cache.InvalidateInvoice(ctx, p.UserID, string(p.Option)); err != nil {
		slog.Warn("could not invalidate cached invoice", "user_id", p.UserID, "err", err)
	}

	slog.Info("payment completed",
		"payment_id", p.ID, "user_id", p.UserID, "reports_added", price.ReportsAmount, "balance", balance)

	if s.notifier != nil {
		text := fmt.Sprintf(
			"✅ <b>Оплата получена!</b>\n\nЗачислено отчетов: <b>%d</b>\n💰 Текущий баланс: <b>%d</b>",
			price.ReportsAmount, balance)
		if err := s.notifier.SendMessage(ctx, p.UserID, text); err != nil {
			slog.Warn("could not notify user about payment", "user_id", p.UserID, "err", err)
		}
	}

	return nil
}

// CancelPayment marks a pending invoice canceled. A succeeded payment is
// never downgraded.
func (s *Service) CancelPayment(ctx context.Context, externalInvoiceID string) error {
	slog.Info("canceling payment", "external_invoice_id", externalInvoiceID)

	p, err := s.repo.GetPaymentByExternalID(ctx, externalInvoiceID)
	if err != nil {
		return fmt.Errorf("find payment %s: %w", externalInvoiceID, err)
	}

	if p.Status == models.PaymentCanceled {
		slog.Warn("payment already canceled, skipping", "payment_id", p.ID)
		return nil
	}
	if p.Status == models.PaymentSuccess {
		return fmt.Errorf("payment %d already succeeded, refusing to cancel", p.ID)
	}

	if err := s.repo.UpdatePaymentStatus(ctx, p.ID, models.PaymentCanceled); err != nil {
		return fmt.Errorf("mark payment canceled: %w", err)
	}

	if err := s.cache.InvalidateInvoice(ctx, p.UserID, string(p.Option)); err != nil {
		slog.Warn("could not invalidate cached invoice", "user_id", p.UserID, "err", err)
	}

	return nil
}
