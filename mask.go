package main

import (
	"strings"
)

func MaskValue(value string) string {
	if value == "" {
		return "(empty)"
	}
	if len(value) <= 4 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}

// shellQuote applies a minimal POSIX-safe single-quote escaping.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	for _, r := range s {
		if !(r == '_' || r == '-' || r == '.' || r == '/' || r == ':' || r == '@' || r == '+' || r == '=' || (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
		}
	}
	return s
}

// filterBranchCommand builds the git invocation that runs the scrub on every
// commit of every ref. exe and rulesPath must be absolute: the tree filter
// runs in a scratch checkout.
func filterBranchCommand(exe, rulesPath string) string {
	inner := []string{shellQuote(exe), "scrub"}
	if rulesPath != "" {
		inner = append(inner, "--config", shellQuote(rulesPath))
	}
	return strings.Join([]string{
		"git", "filter-branch", "--force",
		"--tree-filter", shellQuote(strings.Join(inner, " ")),
		"--", "--all",
	}, " ")
}
