package guard

import (
	_ "embed"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// defaultRules is compiled into the binary so the rule set cannot drift from
// the build that shipped it.
//
//go:embed rules.yaml
var defaultRules []byte

type ruleFile struct {
	Categories []ruleCategory `yaml:"categories"`
}

type ruleCategory struct {
	Name  string     `yaml:"name"`
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	ID          string `yaml:"id"`
	Pattern     string `yaml:"pattern"`
	Description string `yaml:"description"`
}

type compiledRule struct {
	category string
	id       string
	re       *regexp.Regexp
}

func compileRules(data []byte) ([]compiledRule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule file: %w", err)
	}

	var compiled []compiledRule
	seen := make(map[string]bool)
	for _, cat := range file.Categories {
		if cat.Name == "" {
			return nil, fmt.Errorf("rule category without a name")
		}
		for _, r := range cat.Rules {
			if r.ID == "" || r.Pattern == "" {
				return nil, fmt.Errorf("category %s: rule needs both id and pattern", cat.Name)
			}
			if seen[r.ID] {
				return nil, fmt.Errorf("duplicate rule id %q", r.ID)
			}
			seen[r.ID] = true
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", r.ID, err)
			}
			compiled = append(compiled, compiledRule{category: cat.Name, id: r.ID, re: re})
		}
	}
	if len(compiled) == 0 {
		return nil, fmt.Errorf("rule file contains no rules")
	}
	return compiled, nil
}
