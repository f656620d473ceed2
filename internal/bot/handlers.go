package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sellerlab/wbcompare/internal/common"
	"github.com/sellerlab/wbcompare/internal/models"
	"github.com/sellerlab/wbcompare/internal/queue"
)

const (
	menuCompare = "🔍 Сравнение карточек"
	menuBalance = "💰 Баланс"

	minArticles = 2
	maxArticles = 5
)

// A bare 4-6 digit message is treated as a login code candidate.
var authCodeRe = regexp.MustCompile(`^\d{4,6}$`)

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(menuCompare)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(menuBalance)),
	)
	kb.ResizeKeyboard = true
	return kb
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	user, err := b.repo.GetOrCreateUser(ctx, msg.From.ID, msg.From.UserName)
	if err != nil {
		slog.Error("get or create user", "user_id", msg.From.ID, "err", err)
		return
	}
	if err := b.repo.UpdateLastActiveAt(ctx, user.ID); err != nil {
		slog.Warn("update last active", "user_id", user.ID, "err", err)
	}

	text := strings.TrimSpace(msg.Text)

	switch {
	case msg.IsCommand() && msg.Command() == "start":
		b.handleStart(ctx, msg, user)
	case msg.IsCommand() && msg.Command() == "compare":
		b.handleCompare(ctx, msg, user)
	case text == menuCompare:
		b.handleCompareMenu(ctx, msg)
	case text == menuBalance:
		b.showBalance(ctx, msg.Chat.ID, user)
	case authCodeRe.MatchString(text):
		b.handleAuthCode(ctx, msg)
	default:
		b.handleUnknown(ctx, msg)
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	slog.Info("user started the bot", "user_id", user.ID)

	if err := b.repo.CreateEvent(ctx, user.ID, models.EventStartBot); err != nil {
		slog.Warn("record start event", "user_id", user.ID, "err", err)
	}

	text := fmt.Sprintf(
		"👋 Привет, %s!\n\n"+
			"Я бот для генерации отчетов Wildberries.\n\n"+
			"📊 <b>Доступные функции:</b>\n"+
			"• Сравнение карточек - сравнение товаров по артикулам\n\n"+
			"💰 <b>Ваш баланс:</b> %d отчетов\n\n"+
			"Выберите действие на клавиатуре ниже 👇",
		msg.From.FirstName, user.ReportsBalance)

	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ParseMode = tgbotapi.ModeHTML
	reply.ReplyMarkup = mainMenuKeyboard()
	if _, err := b.api.Send(reply); err != nil {
		slog.Error("send start message", "user_id", user.ID, "err", err)
	}
}

func (b *Bot) handleCompareMenu(ctx context.Context, msg *tgbotapi.Message) {
	text := "🔍 <b>Сравнение карточек</b>\n\n" +
		"Для сравнения карточек используйте команду:\n" +
		"<code>/compare артикул1,артикул2,...</code>\n\n" +
		"📋 <b>Правила:</b>\n" +
		"• Минимум 2 артикула\n" +
		"• Максимум 5 артикулов\n" +
		"• Артикулы через запятую\n\n" +
		"💡 <b>Примеры:</b>\n" +
		"<code>/compare 123456789,987654321</code>\n" +
		"<code>/compare 111111111,222222222,333333333</code>"
	if err := b.SendMessage(ctx, msg.Chat.ID, text); err != nil {
		slog.Error("send compare menu", "err", err)
	}
}

func (b *Bot) handleCompare(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	slog.Info("compare requested", "user_id", user.ID)

	if user.ReportsBalance <= 0 {
		b.SendMessage(ctx, msg.Chat.ID, fmt.Sprintf(
			"❌ <b>Недостаточно средств</b>\n\n💰 Ваш баланс: %d отчетов\n\nПополните баланс для генерации отчетов.",
			user.ReportsBalance))
		return
	}

	articles, errText := parseArticles(msg.CommandArguments())
	if errText != "" {
		b.SendMessage(ctx, msg.Chat.ID, errText)
		return
	}

	articlesText := make([]string, len(articles))
	for i, a := range articles {
		articlesText[i] = strconv.FormatInt(a, 10)
	}
	position := b.queue.Pending() + 1

	b.SendMessage(ctx, msg.Chat.ID, fmt.Sprintf(
		"✅ <b>Задача добавлена в очередь</b>\n\n"+
			"📦 Артикулы: <code>%s</code>\n"+
			"📊 Позиция в очереди: %d\n\n"+
			"⏳ Ожидайте, отчет будет готов через несколько минут...\n"+
			"💰 После генерации будет списано: 1 отчет",
		strings.Join(articlesText, ", "), position))

	stickerID, err := b.sendLoadingSticker(msg.Chat.ID)
	if err != nil {
		slog.Warn("send loading sticker", "user_id", user.ID, "err", err)
	}

	report, err := b.repo.CreateReport(ctx, user.ID, articles)
	var reportID int64
	if err != nil {
		slog.Warn("persist report row", "user_id", user.ID, "err", err)
	} else {
		reportID = report.ID
	}

	task := queue.NewTask(user.ID, msg.Chat.ID, articles, reportID, stickerID)
	if err := b.queue.AddTask(ctx, task); err != nil {
		slog.Error("enqueue task", "user_id", user.ID, "err", err)
		b.SendMessage(ctx, msg.Chat.ID, "❌ Не удалось поставить задачу в очередь. Попробуйте позже.")
		return
	}

	if err := b.repo.CreateEvent(ctx, user.ID, models.EventCompareCards); err != nil {
		slog.Warn("record compare event", "user_id", user.ID, "err", err)
	}

	slog.Info("compare task created",
		"task_id", task.ID, "user_id", user.ID, "articles", len(articles), "loading_message_id", stickerID)
}

// parseArticles validates the /compare argument string and returns
// either the article numbers or a ready-to-send error text.
func parseArticles(raw string) ([]int64, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, "❌ <b>Не указаны артикулы</b>\n\n" +
			"Используйте: <code>/compare артикул1,артикул2,...</code>\n\n" +
			"💡 Пример: <code>/compare 123456789,987654321</code>"
	}

	var articles []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, "❌ <b>Неверный формат артикулов</b>\n\n" +
				"Артикулы должны быть числами, разделенными запятыми.\n\n" +
				"💡 Пример: <code>/compare 123456789,987654321</code>"
		}
		articles = append(articles, n)
	}

	if len(articles) < minArticles {
		return nil, "❌ <b>Слишком мало артикулов</b>\n\n" +
			"Для сравнения нужно минимум 2 артикула.\n\n" +
			"💡 Пример: <code>/compare 123456789,987654321</code>"
	}
	if len(articles) > maxArticles {
		return nil, "❌ <b>Слишком много артикулов</b>\n\n" +
			"Максимум 5 артикулов для сравнения.\n\n" +
			"💡 Пример: <code>/compare 111,222,333,444,555</code>"
	}
	return articles, ""
}

// handleAuthCode forwards a bare digit message to the waiting login
// flow. Admin only, anyone else is ignored without a reply.
func (b *Bot) handleAuthCode(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From.ID != b.adminID {
		slog.Warn("auth code from non-admin ignored", "user_id", msg.From.ID)
		return
	}

	code := strings.TrimSpace(msg.Text)
	err := b.pending.Resolve(code)
	switch {
	case err == nil:
		slog.Info("auth code delivered", "digits", len(code))
		b.SendMessage(ctx, msg.Chat.ID, "✅ <b>Код принят!</b>\n\nВыполняется авторизация...")
	case errors.Is(err, common.ErrNoPendingAuth), errors.Is(err, common.ErrAlreadyResolved):
		slog.Warn("auth code with no active request", "err", err)
		b.SendMessage(ctx, msg.Chat.ID,
			"❌ <b>Нет активного запроса на код</b>\n\nВозможно, запрос уже обработан или истёк.")
	default:
		b.SendMessage(ctx, msg.Chat.ID, fmt.Sprintf("❌ Ошибка: %v", err))
	}
}

func (b *Bot) handleUnknown(ctx context.Context, msg *tgbotapi.Message) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, "❓ Не понимаю эту команду.\n\nИспользуйте кнопки меню ниже 👇")
	reply.ReplyMarkup = mainMenuKeyboard()
	if _, err := b.api.Send(reply); err != nil {
		slog.Warn("send fallback reply", "err", err)
	}
}

// Balance and purchases

func (b *Bot) showBalance(ctx context.Context, chatID int64, user *models.User) {
	single, err := b.repo.GetPrice(ctx, models.OptionSingle)
	if err != nil {
		slog.Error("load single price", "err", err)
		b.SendMessage(ctx, chatID, "❌ Ошибка загрузки цен. Попробуйте позже.")
		return
	}
	packet, err := b.repo.GetPrice(ctx, models.OptionPacket)
	if err != nil {
		slog.Error("load packet price", "err", err)
		b.SendMessage(ctx, chatID, "❌ Ошибка загрузки цен. Попробуйте позже.")
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("📄 1 отчет - %d ₽", single.Price), "buy_single")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("📦 Пакет (%d отчетов) - %d ₽", packet.ReportsAmount, packet.Price), "buy_packet")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", "cancel_refill")),
	)

	text := fmt.Sprintf(
		"💰 <b>Ваш баланс</b>\n\nДоступно отчетов: <b>%d</b>\n\nВыберите действие ниже 👇",
		user.ReportsBalance)

	reply := tgbotapi.NewMessage(chatID, text)
	reply.ParseMode = tgbotapi.ModeHTML
	reply.ReplyMarkup = keyboard
	if _, err := b.api.Send(reply); err != nil {
		slog.Error("send balance message", "err", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		slog.Warn("answer callback", "err", err)
	}
	if cq.Message == nil {
		return
	}
	chatID := cq.Message.Chat.ID

	switch cq.Data {
	case "buy_single":
		b.sendPaymentLink(ctx, chatID, cq.From.ID, models.OptionSingle)
	case "buy_packet":
		b.sendPaymentLink(ctx, chatID, cq.From.ID, models.OptionPacket)
	case "cancel_refill":
		if err := b.DeleteMessage(ctx, chatID, cq.Message.MessageID); err != nil {
			slog.Warn("delete refill message", "err", err)
		}
	default:
		slog.Warn("unknown callback", "data", cq.Data)
	}
}

func (b *Bot) sendPaymentLink(ctx context.Context, chatID, userID int64, option models.ProductOption) {
	slog.Info("payment option selected", "user_id", userID, "option", option)

	if b.payments == nil {
		b.SendMessage(ctx, chatID, "❌ Оплата временно недоступна. Попробуйте позже.")
		return
	}

	price, err := b.repo.GetPrice(ctx, option)
	if err != nil {
		slog.Error("load price", "option", option, "err", err)
		b.SendMessage(ctx, chatID, "❌ Ошибка загрузки цены. Попробуйте позже.")
		return
	}

	confirmationURL, err := b.payments.CreateInvoice(ctx, userID, option)
	if err != nil {
		slog.Error("create invoice", "user_id", userID, "option", option, "err", err)
		b.SendMessage(ctx, chatID, "❌ Ошибка создания платежа. Попробуйте позже.")
		return
	}

	product := "1 отчет"
	if option == models.OptionPacket {
		product = fmt.Sprintf("Пакет (%d отчетов)", price.ReportsAmount)
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("💳 Оплатить", confirmationURL)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", "cancel_refill")),
	)

	text := fmt.Sprintf(
		"💳 <b>Оплата</b>\n\n"+
			"Товар: <b>%s</b>\n"+
			"Сумма: <b>%d ₽</b>\n\n"+
			"Нажмите на кнопку ниже для перехода к оплате.\n"+
			"После успешной оплаты баланс будет автоматически пополнен.",
		product, price.Price)

	reply := tgbotapi.NewMessage(chatID, text)
	reply.ParseMode = tgbotapi.ModeHTML
	reply.ReplyMarkup = keyboard
	if _, err := b.api.Send(reply); err != nil {
		slog.Error("send payment link", "user_id", userID, "err", err)
		return
	}
	slog.Info("payment link sent", "user_id", userID, "option", option)
}
