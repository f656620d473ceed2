package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sellerlab/wbcompare/internal/models"
	"github.com/sellerlab/wbcompare/internal/queue"
)

// Notifier delivers user-visible side effects over the chat channel.
type Notifier interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendDocument(ctx context.Context, chatID int64, filePath, caption string) error
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// BalanceStore mutates and reads the user's report balance.
type BalanceStore interface {
	UpdateBalance(ctx context.Context, userID int64, amount int) (newBalance int, err error)
}

// ReportStore records the terminal state of the persisted report row.
type ReportStore interface {
	UpdateReportState(ctx context.Context, reportID int64, state models.ReportState, reportErr string) error
}

// Dispatcher consumes results and notifies users. It runs independently
// of the worker so a slow notification path never blocks automation.
// Each result is handled at most once; a failure while handling it is
// logged, never re-queued.
type Dispatcher struct {
	queue     *queue.ReportQueue
	notifier  Notifier
	balances  BalanceStore
	reports   ReportStore
	pollEvery time.Duration
}

func NewDispatcher(q *queue.ReportQueue, notifier Notifier, balances BalanceStore, reports ReportStore, pollEvery time.Duration) *Dispatcher {
	if pollEvery <= 0 {
		pollEvery = 10 * time.Second
	}
	return &Dispatcher{
		queue:     q,
		notifier:  notifier,
		balances:  balances,
		reports:   reports,
		pollEvery: pollEvery,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("result dispatcher started")

	for {
		pollCtx, cancel := context.WithTimeout(ctx, d.pollEvery)
		result, err := d.queue.NextResult(pollCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}

		slog.Info("processing result", "task_id", result.TaskID, "success", result.Success)
		if err := d.handle(ctx, result); err != nil {
			slog.Error("error processing result", "task_id", result.TaskID, "err", err)
		}
	}

	slog.Info("result dispatcher stopped")
}

func (d *Dispatcher) handle(ctx context.Context, result queue.Result) error {
	// The processing indicator goes away before any final outcome, so
	// the user never sees "in progress" next to the answer. Best effort.
	if result.LoadingMessageID != 0 {
		if err := d.notifier.DeleteMessage(ctx, result.ChatID, result.LoadingMessageID); err != nil {
			slog.Warn("could not delete loading message", "task_id", result.TaskID, "err", err)
		}
	}

	if !result.Success {
		return d.deliverFailure(ctx, result, result.Error)
	}

	// A vanished artifact at this late stage is a failure, not a skip.
	if _, err := os.Stat(result.FilePath); err != nil {
		slog.Error("report file missing at delivery", "task_id", result.TaskID, "file", result.FilePath)
		return d.deliverFailure(ctx, result, fmt.Sprintf("file not found: %s", result.FilePath))
	}

	if err := d.notifier.SendDocument(ctx, result.ChatID, result.FilePath, "✅ <b>Отчет готов!</b>"); err != nil {
		return fmt.Errorf("send document: %w", err)
	}

	if err := os.Remove(result.FilePath); err != nil {
		slog.Warn("could not delete report file", "file", result.FilePath, "err", err)
	}

	if result.ReportID != 0 {
		if err := d.reports.UpdateReportState(ctx, result.ReportID, models.ReportDone, ""); err != nil {
			slog.Warn("could not update report state", "report_id", result.ReportID, "err", err)
		}
	}

	// Flat fee: exactly one report per job, regardless of article count.
	balance, err := d.balances.UpdateBalance(ctx, result.UserID, -1)
	if err != nil {
		return fmt.Errorf("deduct balance: %w", err)
	}

	return d.notifier.SendMessage(ctx, result.ChatID,
		fmt.Sprintf("💰 Осталось отчетов: <b>%d</b>", balance))
}

func (d *Dispatcher) deliverFailure(ctx context.Context, result queue.Result, errText string) error {
	if result.ReportID != 0 {
		if err := d.reports.UpdateReportState(ctx, result.ReportID, models.ReportFailed, errText); err != nil {
			slog.Warn("could not update report state", "report_id", result.ReportID, "err", err)
		}
	}

	text := fmt.Sprintf(
		"❌ <b>Ошибка при генерации отчета</b>\n\n<code>%s</code>\n\nБаланс не был списан. Попробуйте позже.",
		errText)
	return d.notifier.SendMessage(ctx, result.ChatID, text)
}
