package classify

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRules decodes an ordered keyword rule list from YAML. The expected
// document is a sequence of {phrase, event} mappings:
//
//   - phrase: "more information"
//     event: INFO_REQUESTED
//   - phrase: approved
//     event: APPROVED
func LoadRules(r io.Reader) ([]Rule, error) {
	var rules []Rule
	if err := yaml.NewDecoder(r).Decode(&rules); err != nil {
		return nil, fmt.Errorf("decode classifier rules: %w", err)
	}
	for i, rule := range rules {
		if rule.Phrase == "" {
			return nil, fmt.Errorf("classifier rule %d: phrase must not be empty", i)
		}
		if rule.Event == "" {
			return nil, fmt.Errorf("classifier rule %d (%q): event must not be empty", i, rule.Phrase)
		}
	}
	return rules, nil
}

// LoadRulesFile reads keyword rules from a YAML file.
func LoadRulesFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open classifier rules: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}
