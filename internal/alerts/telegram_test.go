package alerts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"xrpl-lp-bot/internal/config"
	"xrpl-lp-bot/internal/risk"

	"go.uber.org/zap"
)

func TestTelegramSendDisabled(t *testing.T) {
	client := newTelegram(config.TelegramConfig{Enabled: false}, zap.NewNop(), "http://unused", nil)
	if err := client.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("expected nil error when disabled, got %v", err)
	}
	var nilClient *Telegram
	if err := nilClient.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("expected nil client to be a no-op, got %v", err)
	}
}

func TestTelegramSendMissingConfig(t *testing.T) {
	client := newTelegram(config.TelegramConfig{Enabled: true}, zap.NewNop(), "http://unused", nil)
	if err := client.Send(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error for missing token/chat_id")
	}
}

func newTelegramServer(t *testing.T, response string, status int, got *map[string]string, path *string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*path = r.URL.Path
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTelegramNotifyAlertPostsMessage(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string
	server := newTelegramServer(t, `{"ok":true,"result":{}}`, http.StatusOK, &gotPayload, &gotPath)

	cfg := config.TelegramConfig{Enabled: true, Token: "token", ChatID: "123"}
	client := newTelegram(cfg, zap.NewNop(), server.URL, server.Client())
	alert := risk.Alert{ID: "a-1", Kind: risk.KindStopLoss, Severity: risk.SeverityHigh, Message: "Stop loss triggered: -6.00% loss"}
	if err := client.NotifyAlert(context.Background(), alert); err != nil {
		t.Fatalf("expected send success, got %v", err)
	}
	if gotPath != "/bottoken/sendMessage" {
		t.Fatalf("expected path /bottoken/sendMessage, got %s", gotPath)
	}
	if gotPayload["chat_id"] != "123" {
		t.Fatalf("expected chat_id 123, got %q", gotPayload["chat_id"])
	}
	want := "[HIGH] stop_loss: Stop loss triggered: -6.00% loss (alert a-1)"
	if gotPayload["text"] != want {
		t.Fatalf("expected text %q, got %q", want, gotPayload["text"])
	}
}

func TestTelegramSendReportsAPIError(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string
	server := newTelegramServer(t, `{"ok":false,"description":"chat not found"}`, http.StatusOK, &gotPayload, &gotPath)

	cfg := config.TelegramConfig{Enabled: true, Token: "token", ChatID: "123"}
	client := newTelegram(cfg, zap.NewNop(), server.URL, server.Client())
	err := client.Send(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected chat not found error, got %v", err)
	}
}

func TestTelegramSendReportsHTTPStatus(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string
	server := newTelegramServer(t, `bad gateway`, http.StatusBadGateway, &gotPayload, &gotPath)

	cfg := config.TelegramConfig{Enabled: true, Token: "token", ChatID: "123"}
	client := newTelegram(cfg, zap.NewNop(), server.URL, server.Client())
	err := client.Send(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "http 502") {
		t.Fatalf("expected http 502 error, got %v", err)
	}
}
