package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/shopspring/decimal"
	"github.com/transfa/assistant-service/internal/app"
	"github.com/transfa/assistant-service/internal/ledger"
	"github.com/transfa/assistant-service/internal/store"
	"github.com/transfa/assistant-service/internal/tools"
)

func connect(t *testing.T, userID uuid.UUID) *mcp.ClientSession {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := store.NewMemoryRepository()
	store.SeedDemoData(repo, time.Now().UTC())
	dispatcher := tools.NewDispatcher(
		app.NewService(repo, logger),
		ledger.New(repo, nil, nil, logger, ledger.NewAmountPolicy(decimal.Zero, "AED")),
		logger, nil,
	)
	srv, err := New(dispatcher, userID, logger)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Run(ctx, serverTransport) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect client: %v", err)
	}
	t.Cleanup(func() {
		session.Close()
		cancel()
		select {
		case <-serveErr:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (*mcp.CallToolResult, map[string]any) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("expected one content block, got %d", len(res.Content))
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("decode %s result: %v", name, err)
	}
	return res, out
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, uuid.New(), nil); err == nil {
		t.Fatal("expected error for nil executor")
	}
}

func TestListTools_OnlyBackend(t *testing.T) {
	session := connect(t, store.DemoAliceID)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	backend := tools.OfSide(tools.SideBackend)
	if len(res.Tools) != len(backend) {
		t.Fatalf("expected %d tools, got %d", len(backend), len(res.Tools))
	}
	for _, tool := range res.Tools {
		kind, ok := tools.Lookup(tool.Name)
		if !ok || kind.Side() != tools.SideBackend {
			t.Fatalf("unexpected tool %q", tool.Name)
		}
	}
}

func TestCallTool_ProposeAndApprove(t *testing.T) {
	session := connect(t, store.DemoAliceID)

	res, proposed := callTool(t, session, "propose_transfer", map[string]any{
		"from_account_name":       "current",
		"to_beneficiary_nickname": "carol",
		"amount":                  "75.25",
	})
	if res.IsError {
		t.Fatalf("propose failed: %v", proposed)
	}
	id, _ := proposed["transfer_id"].(string)

	res, approved := callTool(t, session, "approve_transfer", map[string]any{"transfer_id": id})
	if res.IsError || approved["reference_number"] == nil {
		t.Fatalf("approve failed: %v", approved)
	}
}

func TestCallTool_FailureIsError(t *testing.T) {
	session := connect(t, store.DemoAliceID)

	res, out := callTool(t, session, "propose_transfer", map[string]any{
		"from_account_name":       "current",
		"to_beneficiary_nickname": "Bob",
		"amount":                  100,
	})
	if !res.IsError {
		t.Fatal("expected IsError for an unknown beneficiary")
	}
	if out["error"] != "Beneficiary 'Bob' not found. Add them as a beneficiary first." {
		t.Fatalf("unexpected error %v", out["error"])
	}
}

func TestCallTool_ReadToolReturnsArray(t *testing.T) {
	session := connect(t, store.DemoAliceID)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "get_balance", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("call get_balance: %v", err)
	}
	if res.IsError {
		t.Fatal("expected get_balance to succeed")
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	var accounts []map[string]any
	if err := json.Unmarshal([]byte(text.Text), &accounts); err != nil {
		t.Fatalf("expected a JSON array: %v (%s)", err, text.Text)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
}
