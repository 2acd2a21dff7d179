package tools

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/transfa/assistant-service/internal/metrics"
)

// Call is one tool invocation requested by the model.
type Call struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Action tells the turn loop what to do after routing.
type Action string

const (
	// ActionExecute means at least one backend call must run before the model
	// is asked again.
	ActionExecute Action = "execute"
	// ActionEnd ends the turn. Frontend calls go to the client as UI actions.
	ActionEnd Action = "end"
)

// Decision partitions one batch of calls.
type Decision struct {
	Backend  []Call
	Frontend []Call
	Unknown  []Call
	Action   Action
}

// Router splits model tool calls by the side they run on.
type Router struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewRouter(logger *slog.Logger, m *metrics.Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger.With("component", "tool_router"), metrics: m}
}

// Route never executes anything. Unknown names are dropped with a warning, and
// frontend calls with malformed arguments are logged but still forwarded.
func (r *Router) Route(calls []Call) Decision {
	d := Decision{Action: ActionEnd}
	for _, c := range calls {
		kind, ok := Lookup(c.Name)
		if !ok {
			r.logger.Warn("model requested unknown tool", "tool", c.Name, "call_id", c.ID)
			r.metrics.ToolCall("unknown", "unknown", "rejected")
			d.Unknown = append(d.Unknown, c)
			continue
		}
		switch kind.Side() {
		case SideBackend:
			d.Backend = append(d.Backend, c)
		case SideFrontend:
			outcome := "deferred"
			if err := CheckFrontendArgs(kind, c.Arguments); err != nil {
				outcome = "malformed"
				r.logger.Warn("invalid arguments for frontend tool", "tool", c.Name, "call_id", c.ID, "error", err)
			}
			r.metrics.ToolCall(c.Name, string(SideFrontend), outcome)
			d.Frontend = append(d.Frontend, c)
		}
	}
	if len(d.Backend) > 0 {
		d.Action = ActionExecute
	}
	return d
}

// CheckFrontendArgs verifies that args is a JSON object carrying every required key.
func CheckFrontendArgs(kind Kind, args json.RawMessage) error {
	required := kind.Required()
	if len(strings.TrimSpace(string(args))) == 0 {
		if len(required) == 0 {
			return nil
		}
		return fmt.Errorf("missing arguments %s", strings.Join(required, ", "))
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(args, &obj); err != nil {
		return fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	var missing []string
	for _, key := range required {
		if v, ok := obj[key]; !ok || string(v) == "null" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing arguments %s", strings.Join(missing, ", "))
	}
	return nil
}
