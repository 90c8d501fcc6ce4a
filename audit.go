package main

import (
	"fmt"
	"strings"

	"github.com/binsquare/keyscrub/scrub"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// auditFinding is a gitleaks hit that no configured rule removes.
type auditFinding struct {
	RuleID string
	Line   int
	Secret string
}

// auditContent runs the gitleaks default ruleset over content and drops the
// findings a scrub rule already covers.
func auditContent(content string, rules []scrub.Rule) ([]auditFinding, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("load gitleaks rules: %w", err)
	}
	var out []auditFinding
	for _, f := range detector.DetectString(content) {
		if f.Secret == "" || coveredByRule(f.Secret, rules) {
			continue
		}
		// gitleaks counts lines of a scanned string from zero.
		out = append(out, auditFinding{RuleID: f.RuleID, Line: f.StartLine + 1, Secret: f.Secret})
	}
	return out, nil
}

// coveredByRule reports whether scrubbing removes secret: the finding holds
// a rule's whole literal.
func coveredByRule(secret string, rules []scrub.Rule) bool {
	for _, r := range rules {
		if r.Secret == "" {
			continue
		}
		if strings.Contains(secret, r.Secret) {
			return true
		}
	}
	return false
}
