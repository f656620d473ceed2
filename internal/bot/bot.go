package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sellerlab/wbcompare/internal/auth"
	"github.com/sellerlab/wbcompare/internal/models"
	"github.com/sellerlab/wbcompare/internal/queue"
	"github.com/sellerlab/wbcompare/internal/repository"
)

// Animated "generating your report" sticker shown while a task is queued.
const loadingStickerID = "CAACAgIAAxkBAAEVqDFpf0pGFIP-sRsnvOx-jWd1idNYOwACtCMAAphLKUjeub7NKlvk2TgE"

// PaymentProvider issues payment links for balance top-ups.
type PaymentProvider interface {
	CreateInvoice(ctx context.Context, userID int64, option models.ProductOption) (string, error)
}

// Bot owns the Telegram long-polling loop. It is also the outbound
// channel for the rest of the system: the result dispatcher and the
// login flow deliver their messages through it.
type Bot struct {
	api      *tgbotapi.BotAPI
	repo     *repository.Repository
	queue    *queue.ReportQueue
	pending  *auth.PendingCode
	payments PaymentProvider
	adminID  int64
}

func New(token string, repo *repository.Repository, q *queue.ReportQueue, pending *auth.PendingCode, adminID int64) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	slog.Info("telegram bot authorized", "username", api.Self.UserName)

	return &Bot{
		api:     api,
		repo:    repo,
		queue:   q,
		pending: pending,
		adminID: adminID,
	}, nil
}

// SetPayments wires the payment provider in after construction. The
// provider itself needs the bot for purchase notifications, so the two
// cannot be built in one pass.
func (b *Bot) SetPayments(p PaymentProvider) {
	b.payments = p
}

// Run polls for updates until ctx is cancelled. Each update is handled
// inline, ordering within a chat matters more than handler throughput.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)
	slog.Info("telegram bot polling started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			slog.Info("telegram bot polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				slog.Info("telegram updates channel closed")
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// SendMessage sends an HTML-formatted text message.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

// SendDocument uploads a local file with an HTML caption.
func (b *Bot) SendDocument(ctx context.Context, chatID int64, filePath, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(filePath))
	doc.Caption = caption
	doc.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(doc)
	return err
}

// DeleteMessage removes a previously sent message.
func (b *Bot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

// NotifyCodeRequested asks the admin for the one-time login code.
func (b *Bot) NotifyCodeRequested(ctx context.Context, phone string, requestedAt time.Time) error {
	text := fmt.Sprintf(
		"🔐 <b>Требуется код авторизации</b>\n\n📱 Номер: <code>%s</code>\n⏰ Время: %s\n\nОтправьте код сообщением (только цифры):",
		phone, requestedAt.Format("15:04:05"))
	return b.SendMessage(ctx, b.adminID, text)
}

func (b *Bot) sendLoadingSticker(chatID int64) (int, error) {
	sticker := tgbotapi.NewSticker(chatID, tgbotapi.FileID(loadingStickerID))
	sent, err := b.api.Send(sticker)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}
