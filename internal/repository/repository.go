package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/sellerlab/wbcompare/internal/common"
	"github.com/sellerlab/wbcompare/internal/database"
	"github.com/sellerlab/wbcompare/internal/models"
)

type Repository struct {
	db *database.DB
}

func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying database handle for health checks.
func (r *Repository) DB() *database.DB {
	return r.db
}

// Users

func (r *Repository) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var u models.User
	err := r.db.Pool().QueryRow(ctx,
		`SELECT id, COALESCE(username, ''), reports_balance, created_at, last_active_at
		 FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.Username, &u.ReportsBalance, &u.CreatedAt, &u.LastActiveAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return &u, nil
}

func (r *Repository) CreateUser(ctx context.Context, userID int64, username string) (*models.User, error) {
	// New users get one free report, same as the original bot.
	var u models.User
	err := r.db.Pool().QueryRow(ctx,
		`INSERT INTO users (id, username, reports_balance, created_at)
		 VALUES ($1, NULLIF($2, ''), 1, now())
		 RETURNING id, COALESCE(username, ''), reports_balance, created_at, last_active_at`,
		userID, username,
	).Scan(&u.ID, &u.Username, &u.ReportsBalance, &u.CreatedAt, &u.LastActiveAt)
	if err != nil {
		return nil, fmt.Errorf("create user %d: %w", userID, err)
	}
	slog.Info("user created", "user_id", userID, "username", username)
	return &u, nil
}

func (r *Repository) GetOrCreateUser(ctx context.Context, userID int64, username string) (*models.User, error) {
	u, err := r.GetUser(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !common.IsNotFound(err) {
		return nil, err
	}
	return r.CreateUser(ctx, userID, username)
}

func (r *Repository) CheckBalance(ctx context.Context, userID int64) (int, error) {
	u, err := r.GetUser(ctx, userID)
	if err != nil {
		if common.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return u.ReportsBalance, nil
}

// UpdateBalance adds amount (possibly negative) to the user's report
// balance inside a transaction. The balance never goes below zero.
func (r *Repository) UpdateBalance(ctx context.Context, userID int64, amount int) (int, error) {
	var newBalance int
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var current int
		if err := tx.QueryRow(ctx,
			`SELECT reports_balance FROM users WHERE id = $1 FOR UPDATE`, userID,
		).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.ErrUserNotFound
			}
			return err
		}

		newBalance = current + amount
		if newBalance < 0 {
			newBalance = 0
		}

		_, err := tx.Exec(ctx,
			`UPDATE users SET reports_balance = $1 WHERE id = $2`, newBalance, userID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("update balance for user %d: %w", userID, err)
	}
	slog.Info("balance updated", "user_id", userID, "amount", amount, "new_balance", newBalance)
	return newBalance, nil
}

func (r *Repository) UpdateLastActiveAt(ctx context.Context, userID int64) error {
	_, err := r.db.Pool().Exec(ctx,
		`UPDATE users SET last_active_at = now() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("update last_active_at for user %d: %w", userID, err)
	}
	return nil
}

// Feature flags

// GetFeatureFlag reads a flag by name. A missing flag or a database
// error falls back to the default so automation keeps running.
func (r *Repository) GetFeatureFlag(ctx context.Context, name string, def bool) bool {
	var enabled bool
	err := r.db.Pool().QueryRow(ctx,
		`SELECT enabled FROM feature_flags WHERE name = $1`, name,
	).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		slog.Warn("feature flag not found, using default", "name", name, "default", def)
		return def
	}
	if err != nil {
		slog.Error("failed to read feature flag, using default", "name", name, "default", def, "err", err)
		return def
	}
	return enabled
}

// UseMockPipeline reports whether the full pipeline should run in mock mode.
func (r *Repository) UseMockPipeline(ctx context.Context) bool {
	return r.GetFeatureFlag(ctx, "IS_WB_USE_MOCK", true)
}

// UseMockCompare reports whether the compare stage should run its fake path.
func (r *Repository) UseMockCompare(ctx context.Context) bool {
	return r.GetFeatureFlag(ctx, "IS_COMPARE_CARDS_MOCK", true)
}

// Prices

func (r *Repository) GetPrice(ctx context.Context, option models.ProductOption) (*models.Price, error) {
	var p models.Price
	err := r.db.Pool().QueryRow(ctx,
		`SELECT option, price, reports_amount FROM prices WHERE option = $1`, option,
	).Scan(&p.Option, &p.Price, &p.ReportsAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrPriceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get price for option %s: %w", option, err)
	}
	return &p, nil
}

// Payments

func (r *Repository) CreatePayment(ctx context.Context, userID int64, totalPrice int, option models.ProductOption) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Pool().QueryRow(ctx,
		`INSERT INTO payments (user_id, total_price, option, status, created_at)
		 VALUES ($1, $2, $3, $4, now())
		 RETURNING id, user_id, total_price, option, status, COALESCE(external_invoice_id, ''), COALESCE(confirmation_url, ''), created_at`,
		userID, totalPrice, option, models.PaymentNew,
	).Scan(&p.ID, &p.UserID, &p.TotalPrice, &p.Option, &p.Status, &p.ExternalInvoiceID, &p.ConfirmationURL, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create payment for user %d: %w", userID, err)
	}
	slog.Info("payment created", "payment_id", p.ID, "user_id", userID, "option", option)
	return &p, nil
}

func (r *Repository) GetPaymentByExternalID(ctx context.Context, externalInvoiceID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Pool().QueryRow(ctx,
		`SELECT id, user_id, total_price, option, status, COALESCE(external_invoice_id, ''), COALESCE(confirmation_url, ''), created_at
		 FROM payments WHERE external_invoice_id = $1`, externalInvoiceID,
	).Scan(&p.ID, &p.UserID, &p.TotalPrice, &p.Option, &p.Status, &p.ExternalInvoiceID, &p.ConfirmationURL, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment by external id %s: %w", externalInvoiceID, err)
	}
	return &p, nil
}

// AttachInvoice stores the provider invoice data and moves the payment to PENDING.
func (r *Repository) AttachInvoice(ctx context.Context, paymentID int64, externalInvoiceID, confirmationURL string) error {
	_, err := r.db.Pool().Exec(ctx,
		`UPDATE payments SET external_invoice_id = $1, confirmation_url = $2, status = $3 WHERE id = $4`,
		externalInvoiceID, confirmationURL, models.PaymentPending, paymentID)
	if err != nil {
		return fmt.Errorf("attach invoice to payment %d: %w", paymentID, err)
	}
	return nil
}

func (r *Repository) UpdatePaymentStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error {
	tag, err := r.db.Pool().Exec(ctx,
		`UPDATE payments SET status = $1 WHERE id = $2`, status, paymentID)
	if err != nil {
		return fmt.Errorf("update payment %d status: %w", paymentID, err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrPaymentNotFound
	}
	slog.Info("payment status updated", "payment_id", paymentID, "status", status)
	return nil
}

// Reports

func (r *Repository) CreateReport(ctx context.Context, userID int64, articles []int64) (*models.Report, error) {
	var rep models.Report
	err := r.db.Pool().QueryRow(ctx,
		`INSERT INTO reports (user_id, articles, state, created_at)
		 VALUES ($1, $2, $3, now())
		 RETURNING id, user_id, articles, state, COALESCE(error, ''), created_at`,
		userID, articles, models.ReportQueued,
	).Scan(&rep.ID, &rep.UserID, &rep.Articles, &rep.State, &rep.Error, &rep.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create report for user %d: %w", userID, err)
	}
	return &rep, nil
}

func (r *Repository) UpdateReportState(ctx context.Context, reportID int64, state models.ReportState, reportErr string) error {
	_, err := r.db.Pool().Exec(ctx,
		`UPDATE reports SET state = $1, error = NULLIF($2, '') WHERE id = $3`,
		state, reportErr, reportID)
	if err != nil {
		return fmt.Errorf("update report %d state: %w", reportID, err)
	}
	return nil
}

// Events

// CreateEvent records a usage event and bumps the user's last_active_at.
func (r *Repository) CreateEvent(ctx context.Context, userID int64, eventType models.EventType) error {
	_, err := r.db.Pool().Exec(ctx,
		`INSERT INTO events (user_id, event_type, created_at) VALUES ($1, $2, now())`,
		userID, eventType)
	if err != nil {
		return fmt.Errorf("create event %s for user %d: %w", eventType, userID, err)
	}
	if err := r.UpdateLastActiveAt(ctx, userID); err != nil {
		slog.Warn("failed to update last_active_at", "user_id", userID, "err", err)
	}
	return nil
}
