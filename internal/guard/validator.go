/**
 * @description
 * QueryValidator is the first line of defense on every chat turn. It is a pure
 * rule engine: the message is normalized and checked against the embedded rule
 * table, a hard length cap and a repeated-substring check. It does no I/O.
 *
 * @dependencies
 * - gopkg.in/yaml.v3: rule table decoding.
 * - golang.org/x/text: Unicode normalization and case folding.
 *
 * @notes
 * - All patterns are RE2, so matching is linear in the input length.
 */
package guard

import (
	"unicode/utf8"
)

const (
	// DefaultMaxLength is the hard cap on message length, in characters.
	DefaultMaxLength = 10000

	categorySuspicious = "suspicious_encoding"

	// A unit of at least repeatMinUnit bytes occurring repeatMinCount times in a
	// row is treated as a denial-of-service payload. Units longer than
	// repeatMaxUnit are not searched, which bounds the scan at
	// len(text)*repeatMaxUnit comparisons.
	repeatMinUnit  = 10
	repeatMinCount = 11
	repeatMaxUnit  = 256
)

// Verdict is the outcome of validating one message.
type Verdict struct {
	Allowed  bool
	Category string
	Rule     string
}

// QueryValidator is immutable after construction and safe for concurrent use.
type QueryValidator struct {
	rules     []compiledRule
	maxLength int
}

// NewQueryValidator builds a validator from the embedded rule table.
func NewQueryValidator() (*QueryValidator, error) {
	return NewQueryValidatorFromYAML(defaultRules, DefaultMaxLength)
}

// NewQueryValidatorFromYAML builds a validator from a custom rule table.
func NewQueryValidatorFromYAML(data []byte, maxLength int) (*QueryValidator, error) {
	rules, err := compileRules(data)
	if err != nil {
		return nil, err
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &QueryValidator{rules: rules, maxLength: maxLength}, nil
}

// RuleCount reports how many patterns are loaded.
func (v *QueryValidator) RuleCount() int {
	return len(v.rules)
}

// Validate checks text. Any single match rejects; the empty string is allowed.
func (v *QueryValidator) Validate(text string) Verdict {
	if utf8.RuneCountInString(text) > v.maxLength {
		return Verdict{Category: categorySuspicious, Rule: "max_length"}
	}

	normalized := Normalize(text)
	if utf8.RuneCountInString(normalized) > v.maxLength {
		return Verdict{Category: categorySuspicious, Rule: "max_length"}
	}

	for _, r := range v.rules {
		if r.re.MatchString(normalized) {
			return Verdict{Category: r.category, Rule: r.id}
		}
	}

	if hasRepeatedRun(normalized, repeatMinUnit, repeatMinCount, repeatMaxUnit) {
		return Verdict{Category: categorySuspicious, Rule: "repeated_substring"}
	}
	return Verdict{Allowed: true}
}

// hasRepeatedRun reports whether s contains some unit of minUnit..maxUnit bytes
// repeated at least minCount times back to back. A unit of length L repeated k
// times is exactly a stretch of (k-1)*L positions i with s[i] == s[i+L].
func hasRepeatedRun(s string, minUnit, minCount, maxUnit int) bool {
	n := len(s)
	if limit := n / minCount; limit < maxUnit {
		maxUnit = limit
	}
	for unit := minUnit; unit <= maxUnit; unit++ {
		need := unit * (minCount - 1)
		run := 0
		for i := 0; i+unit < n; i++ {
			if s[i] != s[i+unit] {
				run = 0
				continue
			}
			run++
			if run >= need {
				return true
			}
		}
	}
	return false
}
