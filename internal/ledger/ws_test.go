package ledger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// newLedgerNode starts a websocket server that answers rippled-style commands
// and pushes one ledgerClosed event after a subscribe.
func newLedgerNode(t *testing.T, commands chan<- string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept ws: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req map[string]any
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			command, _ := req["command"].(string)
			if commands != nil {
				select {
				case commands <- command:
				default:
				}
			}
			if command == "quit" {
				_ = conn.Close(websocket.StatusGoingAway, "node shutting down")
				return
			}
			resp := map[string]any{"id": req["id"], "type": "response", "status": "success"}
			switch command {
			case "subscribe":
				resp["result"] = map[string]any{"ledger_index": 500, "ledger_hash": "HASH500"}
			case "account_info":
				resp["status"] = "error"
				resp["error"] = "actNotFound"
				resp["error_message"] = "Account not found."
			default:
				resp["result"] = map[string]any{"command": command}
			}
			payload, _ := json.Marshal(resp)
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}
			if command == "subscribe" {
				event := []byte(`{"type":"ledgerClosed","ledger_index":501,"ledger_hash":"HASH501","txn_count":3}`)
				if err := conn.Write(ctx, websocket.MessageText, event); err != nil {
					return
				}
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSManagerConnectsAndReceivesLedgerClosed(t *testing.T) {
	server := newLedgerNode(t, nil)
	defer server.Close()

	mgr := NewManager(ManagerConfig{
		Endpoints:         BuildEndpoints(wsURL(server), nil),
		ConnectionTimeout: time.Second,
		RequestTimeout:    time.Second,
	}, WSDialer{Log: zap.NewNop()}, zap.NewNop())

	events := make(chan LedgerClosed, 4)
	mgr.OnLedgerClosed(func(event LedgerClosed) { events <- event })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := mgr.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = mgr.Disconnect(context.Background()) }()

	for {
		select {
		case event := <-events:
			if event.Index == 501 {
				if event.TxnCount != 3 {
					t.Fatalf("expected txn_count 3, got %d", event.TxnCount)
				}
				return
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for ledgerClosed")
		}
	}
}

func TestWSRequestCorrelatesResponses(t *testing.T) {
	server := newLedgerNode(t, nil)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := WSDialer{}.Dial(ctx, wsURL(server), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	result, err := conn.Request(ctx, "server_info", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if result["command"] != "server_info" {
		t.Fatalf("unexpected result: %v", result)
	}

	_, err = conn.Request(ctx, "account_info", map[string]any{"account": "rMissing"})
	if !IsRPCCode(err, "actNotFound") {
		t.Fatalf("expected actNotFound, got %v", err)
	}
}

func TestWSConnSendsPing(t *testing.T) {
	commands := make(chan string, 8)
	server := newLedgerNode(t, commands)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, err := WSDialer{PingInterval: 20 * time.Millisecond}.Dial(ctx, wsURL(server), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for {
		select {
		case cmd := <-commands:
			if cmd == "ping" {
				return
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for ping")
		}
	}
}

func TestWSConnDoneAfterNodeCloses(t *testing.T) {
	server := newLedgerNode(t, nil)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := WSDialer{}.Dial(ctx, wsURL(server), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, err := conn.Request(ctx, "quit", nil); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected quit to end the session, got %v", err)
	}

	select {
	case <-conn.Done():
	case <-ctx.Done():
		t.Fatalf("expected session to end after server close")
	}
	if _, err := conn.Request(context.Background(), "ping", nil); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}
