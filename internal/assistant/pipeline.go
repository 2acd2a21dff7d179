/**
 * @description
 * The turn pipeline is the trust boundary between a chat message and the
 * bank's data. Every turn is sanitized, classified, run through the model's
 * tool loop, scrubbed and finally checked for ungrounded figures.
 *
 * @dependencies
 * - internal/guard: intent classification.
 * - internal/tools: tool routing and backend execution.
 * - internal/grounding: response scrubbing and grounding checks.
 *
 * @notes
 * - Frontend tool calls end the turn and are returned as UI actions.
 * - A model failure never surfaces its error text to the user.
 */
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/transfa/assistant-service/internal/domain"
	"github.com/transfa/assistant-service/internal/grounding"
	"github.com/transfa/assistant-service/internal/guard"
	"github.com/transfa/assistant-service/internal/metrics"
	"github.com/transfa/assistant-service/internal/tools"
	"github.com/transfa/assistant-service/pkg/openaiclient"
)

const (
	DefaultMaxToolRounds    = 8
	DefaultMaxMessageLength = 4000
	maxHistoryMessages      = 40
)

// Fixed user-facing messages.
const (
	MsgRateLimited      = "Too many requests. Please try again in a minute."
	MsgBadRequest       = "I encountered an error. Please try again."
	MsgTechnicalIssue   = "I'm having a technical issue right now. Please try again in a moment."
	MsgTooManyToolCalls = "I couldn't complete that request. Please try again with a simpler question."
	emptyMessage        = "[Empty message]"
)

// Assistant produces the next model message for a conversation.
type Assistant interface {
	Next(ctx context.Context, userID uuid.UUID, messages []Message) (Message, error)
}

// IntentClassifier decides whether a message may reach the model.
type IntentClassifier interface {
	Classify(ctx context.Context, message string) guard.Decision
}

// ToolExecutor runs one backend tool call and returns its JSON result.
type ToolExecutor interface {
	Execute(ctx context.Context, userID uuid.UUID, call tools.Call) string
}

// AuditPublisher receives one event per classifier decision.
type AuditPublisher interface {
	PublishIntentDecision(ctx context.Context, event domain.IntentDecisionEvent) error
}

// Config bounds a turn.
type Config struct {
	MaxToolRounds    int
	MaxMessageLength int
}

// TurnRequest is one user message plus the prior conversation.
type TurnRequest struct {
	UserID  uuid.UUID
	Message string
	History []Message
}

// TurnResponse is what the client renders.
type TurnResponse struct {
	Response  string            `json:"response"`
	UIActions []tools.Call      `json:"ui_actions"`
	Intent    guard.Intent      `json:"intent"`
	Grounding *grounding.Report `json:"grounding,omitempty"`
}

// Pipeline runs chat turns. It holds no per-turn state and is safe for concurrent use.
type Pipeline struct {
	classifier IntentClassifier
	assistant  Assistant
	router     *tools.Router
	executor   ToolExecutor
	audit      AuditPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	cfg        Config
}

// NewPipeline wires a pipeline. audit and m may be nil.
func NewPipeline(classifier IntentClassifier, assistant Assistant, router *tools.Router, executor ToolExecutor, audit AuditPublisher, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	return &Pipeline{
		classifier: classifier,
		assistant:  assistant,
		router:     router,
		executor:   executor,
		audit:      audit,
		metrics:    m,
		logger:     logger.With("component", "turn_pipeline"),
		cfg:        cfg,
	}
}

// HandleTurn runs one chat turn for an authenticated user.
func (p *Pipeline) HandleTurn(ctx context.Context, req TurnRequest) TurnResponse {
	start := time.Now()
	defer func() { p.metrics.ObserveTurn(time.Since(start)) }()

	// The classifier sees the whole message so its own length cap applies; the
	// model only ever sees the truncated form.
	cleaned := Sanitize(req.Message, 0)
	state := &TurnState{UserID: req.UserID}

	decision := p.classifier.Classify(ctx, cleaned)
	state.Apply(TurnUpdate{Decision: &decision})
	p.publishDecision(ctx, req.UserID, decision)
	if decision.Blocked() {
		return TurnResponse{Response: blockedResponse(), UIActions: []tools.Call{}, Intent: decision.Intent}
	}

	message := Sanitize(cleaned, p.cfg.MaxMessageLength)
	if message == "" {
		message = emptyMessage
	}
	state.Apply(TurnUpdate{Messages: append(sanitizeHistory(req.History, p.cfg.MaxMessageLength), Message{Role: RoleUser, Content: message})})

	validator := grounding.NewValidator()
	final, err := p.runToolLoop(ctx, state, validator)
	if err != nil {
		p.logger.Error("model call failed", "user_id", req.UserID, "class", openaiclient.ClassOf(err), "error", err)
		return TurnResponse{Response: failureMessage(err), UIActions: nonNil(state.UIActions), Intent: decision.Intent}
	}

	scrubbed := grounding.Scrub(final)
	if scrubbed.Leaked {
		p.logger.Warn("system prompt leakage detected, response replaced", "user_id", req.UserID)
	} else if scrubbed.Removed > 0 {
		p.logger.Warn("markup removed from response", "user_id", req.UserID, "removed", scrubbed.Removed)
	}

	report := validator.ValidateResponse(scrubbed.Text)
	p.metrics.GroundingCheck(report.Grounded, len(report.Issues))
	if !report.Grounded {
		p.logger.Warn("ungrounded financial claims in response", "user_id", req.UserID, "issues", len(report.Issues), "tools", strings.Join(report.ToolCallsMade, ","))
	}
	text := grounding.WithDisclaimer(scrubbed.Text, report)
	state.Apply(TurnUpdate{Response: &text})

	return TurnResponse{
		Response:  state.Response,
		UIActions: nonNil(state.UIActions),
		Intent:    decision.Intent,
		Grounding: &report,
	}
}

// runToolLoop asks the model for the next message until it answers without
// backend calls or the round limit is hit. It returns the final text.
func (p *Pipeline) runToolLoop(ctx context.Context, state *TurnState, validator *grounding.Validator) (string, error) {
	for round := 1; round <= p.cfg.MaxToolRounds; round++ {
		reply, err := p.assistant.Next(ctx, state.UserID, state.Messages)
		if err != nil {
			return "", err
		}
		reply.Role = RoleAssistant
		state.Apply(TurnUpdate{Rounds: &round, Messages: []Message{reply}, ToolCalls: reply.ToolCalls})
		if len(reply.ToolCalls) == 0 {
			return reply.Content, nil
		}

		decision := p.router.Route(reply.ToolCalls)
		state.Apply(TurnUpdate{UIActions: decision.Frontend})
		if decision.Action == tools.ActionEnd {
			return reply.Content, nil
		}

		// Every call in the batch gets a tool message so the conversation stays well formed.
		results := make([]Message, 0, len(reply.ToolCalls))
		for _, call := range decision.Backend {
			result := p.executor.Execute(ctx, state.UserID, call)
			validator.RegisterToolResult(call.Name, result)
			results = append(results, Message{Role: RoleTool, ToolCallID: call.ID, Name: call.Name, Content: result})
		}
		for _, call := range decision.Frontend {
			results = append(results, Message{Role: RoleTool, ToolCallID: call.ID, Name: call.Name,
				Content: fmt.Sprintf("UI component '%s' displayed to user.", call.Name)})
		}
		for _, call := range decision.Unknown {
			content, _ := json.Marshal(map[string]any{"success": false, "error": "Unknown tool: " + call.Name})
			results = append(results, Message{Role: RoleTool, ToolCallID: call.ID, Name: call.Name, Content: string(content)})
		}
		state.Apply(TurnUpdate{Messages: results})
	}

	p.logger.Warn("tool round limit reached", "user_id", state.UserID, "rounds", p.cfg.MaxToolRounds)
	return MsgTooManyToolCalls, nil
}

func (p *Pipeline) publishDecision(ctx context.Context, userID uuid.UUID, d guard.Decision) {
	if p.audit == nil {
		return
	}
	event := domain.IntentDecisionEvent{
		UserID:     userID,
		Intent:     string(d.Intent),
		Method:     string(d.Audit.Method),
		Reason:     d.Reason,
		Metadata:   d.Audit.Fields(),
		OccurredAt: time.Now().UTC(),
	}
	if err := p.audit.PublishIntentDecision(ctx, event); err != nil {
		p.logger.Warn("intent decision publish failed", "user_id", userID, "error", err)
	}
}

func failureMessage(err error) string {
	switch openaiclient.ClassOf(err) {
	case openaiclient.ClassRateLimited:
		return MsgRateLimited
	case openaiclient.ClassBadRequest:
		return MsgBadRequest
	default:
		return MsgTechnicalIssue
	}
}

func blockedResponse() string {
	return "I apologize, but I cannot assist with this request. " + guard.BlockedMessage + "\n\n" +
		"I'm here to help with banking services such as:\n" +
		"- Checking your account balances\n" +
		"- Viewing your transaction history\n" +
		"- Analyzing your spending patterns\n" +
		"- Managing beneficiaries and proposing transfers\n\n" +
		"How else may I assist you today?"
}

// Sanitize drops control characters, turns line breaks into spaces, trims the
// result and caps it at maxRunes.
func Sanitize(s string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	cleaned = strings.TrimSpace(cleaned)
	if maxRunes > 0 && utf8.RuneCountInString(cleaned) > maxRunes {
		cleaned = strings.TrimSpace(string([]rune(cleaned)[:maxRunes]))
	}
	return cleaned
}

// sanitizeHistory keeps only plain user and assistant text from the client.
// Tool results are never accepted from outside the server.
func sanitizeHistory(history []Message, maxRunes int) []Message {
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	out := make([]Message, 0, len(history))
	for _, m := range history {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		content := Sanitize(m.Content, maxRunes)
		if content == "" {
			continue
		}
		out = append(out, Message{Role: m.Role, Content: content})
	}
	return out
}

func nonNil(calls []tools.Call) []tools.Call {
	if calls == nil {
		return []tools.Call{}
	}
	return calls
}
