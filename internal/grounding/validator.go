/**
 * @description
 * The grounding validator checks the assistant's final text against the data
 * actually returned by backend tools during the same turn. Any financial
 * figure in the text that does not match a retrieved number is reported as an
 * ungrounded claim.
 *
 * @dependencies
 * - github.com/shopspring/decimal: numbers are compared as decimals, so
 *   "100" and "100.00" are the same value.
 *
 * @notes
 * - A validator lives for one turn. Grounding never blocks a response; the
 *   caller appends a disclaimer when the report is not grounded.
 */
package grounding

import (
	"regexp"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

const (
	IssueTypeUngrounded = "ungrounded_financial_claim"
	SeverityHigh        = "high"
)

// Disclaimer is appended to responses whose figures could not all be verified.
const Disclaimer = "Note: some figures in this response could not be verified against your account data. " +
	"Please check your balances and transactions before acting on them."

var tolerance = decimal.New(1, -2)

const numberPattern = `\d[\d,]*(?:\.\d+)?`

var numberRe = regexp.MustCompile(numberPattern)

type claimPattern struct {
	name string
	re   *regexp.Regexp
}

// Each pattern captures the claimed number in group 1.
var claimPatterns = []claimPattern{
	{"currency_prefix", regexp.MustCompile(`(?i)\b(?:aed|usd|eur|gbp)\s*(` + numberPattern + `)`)},
	{"currency_suffix", regexp.MustCompile(`(?i)\b(` + numberPattern + `)\s*(?:aed|usd|eur|gbp)\b`)},
	{"account_balance", regexp.MustCompile(`(?i)\b(?:balance|available|funds?)\b.{0,20}?(` + numberPattern + `)`)},
	{"transaction_amount", regexp.MustCompile(`(?i)\b(?:transfer\w*|sent|received|paid|spent|cost|charged)\b.{0,20}?(` + numberPattern + `)`)},
}

// Issue is one ungrounded financial claim.
type Issue struct {
	Type     string `json:"type"`
	Pattern  string `json:"pattern"`
	Value    string `json:"value"`
	Severity string `json:"severity"`
}

// Report is the result of validating one response.
type Report struct {
	Grounded            bool     `json:"grounded"`
	Issues              []Issue  `json:"issues"`
	ToolCallsMade       []string `json:"tool_calls_made"`
	GroundedValuesCount int      `json:"grounded_values_count"`
}

// Validator accumulates tool results for one turn. It is safe for concurrent use.
type Validator struct {
	mu        sync.Mutex
	grounded  []decimal.Decimal
	seen      map[string]bool
	toolCalls []string
}

func NewValidator() *Validator {
	return &Validator{seen: make(map[string]bool)}
}

// RegisterToolResult records the tool name and every number found in its raw output.
func (v *Validator) RegisterToolResult(toolName, result string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.toolCalls = append(v.toolCalls, toolName)
	for _, raw := range numberRe.FindAllString(result, -1) {
		d, ok := parseNumber(raw)
		if !ok {
			continue
		}
		key := d.String()
		if v.seen[key] {
			continue
		}
		v.seen[key] = true
		v.grounded = append(v.grounded, d)
	}
}

// ValidateResponse extracts financial claims from text and checks each against
// the registered values. Each number position in text is reported at most once.
func (v *Validator) ValidateResponse(text string) Report {
	v.mu.Lock()
	defer v.mu.Unlock()

	report := Report{
		Issues:              []Issue{},
		ToolCallsMade:       append([]string{}, v.toolCalls...),
		GroundedValuesCount: len(v.grounded),
	}

	checked := make(map[int]bool)
	for _, p := range claimPatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2], m[3]
			if start < 0 || checked[start] {
				continue
			}
			checked[start] = true

			raw := text[start:end]
			d, ok := parseNumber(raw)
			if !ok || v.isGrounded(d) {
				continue
			}
			report.Issues = append(report.Issues, Issue{
				Type:     IssueTypeUngrounded,
				Pattern:  p.name,
				Value:    strings.TrimRight(raw, ",."),
				Severity: SeverityHigh,
			})
		}
	}
	report.Grounded = len(report.Issues) == 0
	return report
}

func (v *Validator) isGrounded(d decimal.Decimal) bool {
	for _, g := range v.grounded {
		if d.Sub(g).Abs().LessThan(tolerance) {
			return true
		}
	}
	return false
}

// WithDisclaimer appends Disclaimer to text when the report is not grounded.
func WithDisclaimer(text string, r Report) string {
	if r.Grounded {
		return text
	}
	return strings.TrimRight(text, " \n") + "\n\n" + Disclaimer
}

func parseNumber(raw string) (decimal.Decimal, bool) {
	clean := strings.ReplaceAll(strings.TrimRight(raw, ",."), ",", "")
	if clean == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
