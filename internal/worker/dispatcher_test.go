package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sellerlab/wbcompare/internal/models"
	"github.com/sellerlab/wbcompare/internal/queue"
)

type fakeNotifier struct {
	deleted   []int
	documents []string
	messages  []string
	sendErr   error
}

func (f *fakeNotifier) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeNotifier) SendDocument(ctx context.Context, chatID int64, filePath, caption string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.documents = append(f.documents, filePath)
	return nil
}

func (f *fakeNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

type fakeBalances struct {
	balance int
	deltas  []int
}

func (f *fakeBalances) UpdateBalance(ctx context.Context, userID int64, amount int) (int, error) {
	f.deltas = append(f.deltas, amount)
	f.balance += amount
	if f.balance < 0 {
		f.balance = 0
	}
	return f.balance, nil
}

type fakeReports struct {
	states map[int64]models.ReportState
	errs   map[int64]string
}

func newFakeReports() *fakeReports {
	return &fakeReports{states: map[int64]models.ReportState{}, errs: map[int64]string{}}
}

func (f *fakeReports) UpdateReportState(ctx context.Context, reportID int64, state models.ReportState, reportErr string) error {
	f.states[reportID] = state
	f.errs[reportID] = reportErr
	return nil
}

func writeArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "123456789-merged.zip")
	if err := os.WriteFile(path, []byte("zip-bytes"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestHandle_Success(t *testing.T) {
	notifier := &fakeNotifier{}
	balances := &fakeBalances{balance: 3}
	reports := newFakeReports()
	d := NewDispatcher(queue.New(10), notifier, balances, reports, 0)

	path := writeArtifact(t)
	result := queue.Result{
		UserID: 1, ChatID: 100, ReportID: 7,
		Success: true, FilePath: path, LoadingMessageID: 42,
	}

	if err := d.handle(context.Background(), result); err != nil {
		t.Fatalf("handle error: %v", err)
	}

	if len(notifier.deleted) != 1 || notifier.deleted[0] != 42 {
		t.Fatalf("loading message not deleted: %+v", notifier.deleted)
	}
	if len(notifier.documents) != 1 || notifier.documents[0] != path {
		t.Fatalf("document not sent: %+v", notifier.documents)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("artifact should be deleted after delivery")
	}
	if reports.states[7] != models.ReportDone {
		t.Fatalf("expected report DONE, got %s", reports.states[7])
	}
	if len(balances.deltas) != 1 || balances.deltas[0] != -1 {
		t.Fatalf("expected one -1 deduction, got %+v", balances.deltas)
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "Осталось отчетов") {
		t.Fatalf("missing remaining-balance message: %+v", notifier.messages)
	}
	if !strings.Contains(notifier.messages[0], "2") {
		t.Fatalf("expected remaining balance 2 in message %q", notifier.messages[0])
	}
}

func TestHandle_Failure_NoCharge(t *testing.T) {
	notifier := &fakeNotifier{}
	balances := &fakeBalances{balance: 3}
	reports := newFakeReports()
	d := NewDispatcher(queue.New(10), notifier, balances, reports, 0)

	result := queue.Result{
		UserID: 1, ChatID: 100, ReportID: 7,
		Success: false, Error: "compare cards: article not found", LoadingMessageID: 42,
	}

	if err := d.handle(context.Background(), result); err != nil {
		t.Fatalf("handle error: %v", err)
	}

	if len(balances.deltas) != 0 {
		t.Fatalf("failed job must not charge the user: %+v", balances.deltas)
	}
	if reports.states[7] != models.ReportFailed {
		t.Fatalf("expected report FAILED, got %s", reports.states[7])
	}
	if reports.errs[7] != "compare cards: article not found" {
		t.Fatalf("failure reason lost: %q", reports.errs[7])
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "Баланс не был списан") {
		t.Fatalf("missing no-charge notice: %+v", notifier.messages)
	}
}

func TestHandle_MissingArtifactTreatedAsFailure(t *testing.T) {
	notifier := &fakeNotifier{}
	balances := &fakeBalances{balance: 3}
	reports := newFakeReports()
	d := NewDispatcher(queue.New(10), notifier, balances, reports, 0)

	result := queue.Result{
		UserID: 1, ChatID: 100, ReportID: 7,
		Success: true, FilePath: "/nonexistent/report.zip",
	}

	if err := d.handle(context.Background(), result); err != nil {
		t.Fatalf("handle error: %v", err)
	}

	if len(notifier.documents) != 0 {
		t.Fatal("no document should be sent when the artifact is gone")
	}
	if len(balances.deltas) != 0 {
		t.Fatalf("missing artifact must not charge the user: %+v", balances.deltas)
	}
	if reports.states[7] != models.ReportFailed {
		t.Fatalf("expected report FAILED, got %s", reports.states[7])
	}
}

func TestHandle_NoLoadingMessage(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDispatcher(queue.New(10), notifier, &fakeBalances{balance: 1}, newFakeReports(), 0)

	path := writeArtifact(t)
	result := queue.Result{UserID: 1, ChatID: 100, Success: true, FilePath: path}

	if err := d.handle(context.Background(), result); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	if len(notifier.deleted) != 0 {
		t.Fatal("no delete call expected when there is no loading message")
	}
}
