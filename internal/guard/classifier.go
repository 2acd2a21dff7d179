/**
 * @description
 * IntentClassifier decides whether a chat turn may proceed. The rule stage
 * (QueryValidator) runs first and is authoritative when it blocks; otherwise a
 * semantic stage asks a model for an allowed/blocked verdict. Every decision
 * carries an audit record describing how it was reached.
 *
 * @notes
 * - When the semantic stage errors, strict mode blocks and loose mode allows.
 * - A nil SemanticClassifier runs the rule stage only.
 */
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/transfa/assistant-service/internal/metrics"
)

// BlockedMessage is the only reason ever shown to a user whose message was blocked.
const BlockedMessage = "Unauthorized use or prohibited keywords in the query."

const (
	reasonClassificationError = "classification error"
	blockToken                = "blocked"
	snippetLength             = 100
)

// Mode selects the behavior when the semantic stage fails.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeLoose  Mode = "loose"
)

// ParseMode accepts "strict" or "loose", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStrict:
		return ModeStrict, nil
	case ModeLoose:
		return ModeLoose, nil
	default:
		return "", fmt.Errorf("unknown intent classifier mode %q", s)
	}
}

// Intent is the classifier verdict.
type Intent string

const (
	IntentAllowed Intent = "allowed"
	IntentBlocked Intent = "blocked"
)

// Method names the path that produced a decision.
type Method string

const (
	MethodNoInput       Method = "no_input"
	MethodRuleBased     Method = "rule_based"
	MethodSemantic      Method = "semantic"
	MethodErrorFallback Method = "error_fallback"
)

// Audit is the structured record attached to every decision.
type Audit struct {
	Method        Method `json:"decision_method"`
	Mode          Mode   `json:"mode"`
	Result        Intent `json:"result"`
	QuerySnippet  string `json:"query_snippet,omitempty"`
	RuleCategory  string `json:"rule_category,omitempty"`
	RuleID        string `json:"rule_id,omitempty"`
	RulePassed    *bool  `json:"passed_rule_validation,omitempty"`
	Model         string `json:"model,omitempty"`
	SemanticReply string `json:"semantic_reply,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Fields flattens the audit record for event payloads and log lines.
func (a Audit) Fields() map[string]string {
	out := map[string]string{
		"decision_method": string(a.Method),
		"mode":            string(a.Mode),
		"result":          string(a.Result),
	}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("query_snippet", a.QuerySnippet)
	set("rule_category", a.RuleCategory)
	set("rule_id", a.RuleID)
	set("model", a.Model)
	set("semantic_reply", a.SemanticReply)
	set("error", a.Error)
	if a.RulePassed != nil {
		out["passed_rule_validation"] = strconv.FormatBool(*a.RulePassed)
	}
	return out
}

// Decision is the classifier output for one turn.
type Decision struct {
	Intent Intent `json:"intent"`
	Reason string `json:"reason,omitempty"`
	Audit  Audit  `json:"audit"`
}

// Blocked reports whether the turn must stop here.
func (d Decision) Blocked() bool {
	return d.Intent == IntentBlocked
}

// SemanticResult is the raw verdict of the semantic stage.
type SemanticResult struct {
	Reply string
	Model string
}

// SemanticClassifier is the model-backed second stage.
type SemanticClassifier interface {
	ClassifyIntent(ctx context.Context, query string) (SemanticResult, error)
}

// Classifier combines the rule and semantic stages.
type Classifier struct {
	validator *QueryValidator
	semantic  SemanticClassifier
	mode      Mode
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewClassifier wires the two stages. semantic and m may be nil.
func NewClassifier(validator *QueryValidator, semantic SemanticClassifier, mode Mode, m *metrics.Metrics, logger *slog.Logger) *Classifier {
	if mode != ModeLoose {
		mode = ModeStrict
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		validator: validator,
		semantic:  semantic,
		mode:      mode,
		metrics:   m,
		logger:    logger.With("component", "intent_classifier"),
	}
}

// Mode returns the configured failure mode.
func (c *Classifier) Mode() Mode {
	return c.mode
}

// Classify decides whether message may proceed.
func (c *Classifier) Classify(ctx context.Context, message string) Decision {
	d := c.classify(ctx, message)
	c.metrics.IntentDecision(string(d.Intent), string(d.Audit.Method))
	if d.Blocked() {
		c.logger.Warn("message blocked", "method", d.Audit.Method, "rule", d.Audit.RuleID, "category", d.Audit.RuleCategory)
	}
	return d
}

func (c *Classifier) classify(ctx context.Context, message string) Decision {
	if strings.TrimSpace(message) == "" {
		return Decision{Intent: IntentAllowed, Audit: Audit{Method: MethodNoInput, Mode: c.mode, Result: IntentAllowed}}
	}

	snippet := snippetOf(message)
	verdict := c.validator.Validate(message)
	if !verdict.Allowed {
		return Decision{
			Intent: IntentBlocked,
			Reason: BlockedMessage,
			Audit: Audit{
				Method:       MethodRuleBased,
				Mode:         c.mode,
				Result:       IntentBlocked,
				QuerySnippet: snippet,
				RuleCategory: verdict.Category,
				RuleID:       verdict.Rule,
			},
		}
	}

	passed := true
	if c.semantic == nil {
		return Decision{
			Intent: IntentAllowed,
			Audit:  Audit{Method: MethodRuleBased, Mode: c.mode, Result: IntentAllowed, QuerySnippet: snippet, RulePassed: &passed},
		}
	}

	res, err := c.semantic.ClassifyIntent(ctx, message)
	if err != nil {
		c.logger.Error("semantic classification failed", "mode", c.mode, "error", err)
		audit := Audit{
			Method:       MethodErrorFallback,
			Mode:         c.mode,
			QuerySnippet: snippet,
			RulePassed:   &passed,
			Error:        err.Error(),
		}
		if c.mode == ModeLoose {
			audit.Result = IntentAllowed
			return Decision{Intent: IntentAllowed, Audit: audit}
		}
		audit.Result = IntentBlocked
		return Decision{Intent: IntentBlocked, Reason: reasonClassificationError, Audit: audit}
	}

	intent := IntentAllowed
	reason := ""
	if strings.Contains(strings.ToLower(res.Reply), blockToken) {
		intent = IntentBlocked
		reason = BlockedMessage
	}
	return Decision{
		Intent: intent,
		Reason: reason,
		Audit: Audit{
			Method:        MethodSemantic,
			Mode:          c.mode,
			Result:        intent,
			QuerySnippet:  snippet,
			RulePassed:    &passed,
			Model:         res.Model,
			SemanticReply: res.Reply,
		},
	}
}

func snippetOf(s string) string {
	r := []rune(s)
	if len(r) > snippetLength {
		r = r[:snippetLength]
	}
	return string(r)
}
