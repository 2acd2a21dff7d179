/**
 * @description
 * MCP server exposing the assistant's backend tools over stdio, so external
 * agents can use the same ledger and account operations as the chat pipeline.
 *
 * @dependencies
 * - github.com/modelcontextprotocol/go-sdk/mcp: server, tool registration and transports.
 * - internal/tools: the dispatcher every tool call is forwarded to.
 *
 * @notes
 * - A server is bound to one user for its whole lifetime. Tool arguments never
 *   select the user.
 * - Frontend tools are not exposed; they have no meaning outside the chat UI.
 */
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/transfa/assistant-service/internal/tools"
)

const (
	serverName    = "phoenix-banking-tools"
	serverVersion = "1.0.0"
)

// Executor runs one backend tool call for a user and returns its JSON result.
type Executor interface {
	Execute(ctx context.Context, userID uuid.UUID, call tools.Call) string
}

// Server wraps an MCP server bound to a single user.
type Server struct {
	mcpServer *mcp.Server
	executor  Executor
	userID    uuid.UUID
	logger    *slog.Logger
}

// New registers every backend tool and returns the server.
func New(executor Executor, userID uuid.UUID, logger *slog.Logger) (*Server, error) {
	if executor == nil {
		return nil, errors.New("executor is required")
	}
	if userID == uuid.Nil {
		return nil, errors.New("user id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil),
		executor:  executor,
		userID:    userID,
		logger:    logger.With("component", "mcp_server", "user_id", userID),
	}

	addTool[noInput](s, tools.KindGetBalance)
	addTool[transactionsInput](s, tools.KindGetTransactions)
	addTool[dateRangeInput](s, tools.KindGetSpendByCategory)
	addTool[noInput](s, tools.KindGetBeneficiaries)
	addTool[addBeneficiaryInput](s, tools.KindAddBeneficiary)
	addTool[removeBeneficiaryInput](s, tools.KindRemoveBeneficiary)
	addTool[proposeTransferInput](s, tools.KindProposeTransfer)
	addTool[proposeInternalInput](s, tools.KindProposeInternalTransfer)
	addTool[transferIDInput](s, tools.KindApproveTransfer)
	addTool[rejectTransferInput](s, tools.KindRejectTransfer)
	addTool[noInput](s, tools.KindGetPendingTransfers)
	addTool[historyInput](s, tools.KindGetTransferHistory)

	return s, nil
}

// Run serves on the given transport until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp server starting")
	err := s.mcpServer.Run(ctx, transport)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// RunStdio serves on stdin/stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

func addTool[In any](s *Server, kind tools.Kind) {
	tool := &mcp.Tool{Name: kind.String(), Description: kind.Description()}
	mcp.AddTool[In, any](s.mcpServer, tool, func(ctx context.Context, _ *mcp.CallToolRequest, input In) (*mcp.CallToolResult, any, error) {
		args, err := json.Marshal(input)
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s arguments: %w", kind, err)
		}
		result := s.executor.Execute(ctx, s.userID, tools.Call{ID: "mcp-" + kind.String(), Name: kind.String(), Arguments: args})
		return toolResult(result), nil, nil
	})
}

func toolResult(result string) *mcp.CallToolResult {
	_, failed, err := tools.FailureOf(result)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: result}},
		IsError: failed || err != nil,
	}
}
