package bot

import (
	"context"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sellerlab/wbcompare/internal/auth"
)

func TestParseArticles_Valid(t *testing.T) {
	articles, errText := parseArticles("123456789, 987654321")
	if errText != "" {
		t.Fatalf("unexpected error text: %s", errText)
	}
	if len(articles) != 2 || articles[0] != 123456789 || articles[1] != 987654321 {
		t.Fatalf("unexpected articles: %+v", articles)
	}
}

func TestParseArticles_TrailingComma(t *testing.T) {
	articles, errText := parseArticles("111,222,")
	if errText != "" {
		t.Fatalf("unexpected error text: %s", errText)
	}
	if len(articles) != 2 {
		t.Fatalf("expected 2 articles, got %+v", articles)
	}
}

func TestParseArticles_Empty(t *testing.T) {
	_, errText := parseArticles("   ")
	if !strings.Contains(errText, "Не указаны артикулы") {
		t.Fatalf("expected missing-articles error, got %s", errText)
	}
}

func TestParseArticles_NotNumeric(t *testing.T) {
	_, errText := parseArticles("123,abc")
	if !strings.Contains(errText, "Неверный формат") {
		t.Fatalf("expected format error, got %s", errText)
	}
}

func TestParseArticles_TooFew(t *testing.T) {
	_, errText := parseArticles("123456789")
	if !strings.Contains(errText, "Слишком мало") {
		t.Fatalf("expected too-few error, got %s", errText)
	}
}

func TestParseArticles_TooMany(t *testing.T) {
	_, errText := parseArticles("1,2,3,4,5,6")
	if !strings.Contains(errText, "Слишком много") {
		t.Fatalf("expected too-many error, got %s", errText)
	}
}

func TestHandleAuthCode_NonAdminIgnoredSilently(t *testing.T) {
	// No API client is wired, so any attempt to reply would panic.
	b := &Bot{pending: auth.NewPendingCode(), adminID: 42}

	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: 999},
		Chat:      &tgbotapi.Chat{ID: 999},
		Text:      "1234",
	}
	b.handleAuthCode(context.Background(), msg)

	if b.pending.Pending() {
		t.Fatal("non-admin message must not touch the pending code slot")
	}
}

func TestAuthCodeRegexp(t *testing.T) {
	valid := []string{"1234", "12345", "123456"}
	for _, v := range valid {
		if !authCodeRe.MatchString(v) {
			t.Fatalf("expected %q to look like an auth code", v)
		}
	}

	invalid := []string{"123", "1234567", "12a4", "/compare 1,2", "", " 1234"}
	for _, v := range invalid {
		if authCodeRe.MatchString(v) {
			t.Fatalf("%q must not look like an auth code", v)
		}
	}
}
