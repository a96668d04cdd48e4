package bot

import (
	"fmt"
	"net/url"
	"strings"

	"engagepilot/internal/model"
)

// ParseRuleValue validates the argument of a rule command and returns the
// stored value. User rules are normalized handles; keyword rules are
// lowercased.
func ParseRuleValue(args string, kind model.RuleKind) (string, error) {
	value := strings.TrimSpace(args)
	if value == "" {
		return "", fmt.Errorf("usage: /%s <value>", commandFor(kind))
	}

	switch kind {
	case model.RulePriority, model.RuleLowPriority:
		handle := model.NormalizeHandle(value)
		if handle == "" || strings.ContainsAny(handle, " \t") {
			return "", fmt.Errorf("invalid handle %q", value)
		}
		return handle, nil
	default:
		return strings.ToLower(value), nil
	}
}

// ParseSourceCommand parses "/addsource <name> <url>" arguments.
func ParseSourceCommand(args string) (name, rawURL string, err error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("usage: /addsource <name> <url>")
	}

	rawURL = parts[len(parts)-1]
	name = strings.Join(parts[:len(parts)-1], " ")

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", fmt.Errorf("invalid source URL %q", rawURL)
	}
	return name, rawURL, nil
}

func commandFor(kind model.RuleKind) string {
	switch kind {
	case model.RuleFocus:
		return "focus"
	case model.RuleSkip:
		return "skip"
	case model.RulePriority:
		return "priority"
	case model.RuleLowPriority:
		return "lowpriority"
	}
	return string(kind)
}

func ruleLabel(kind model.RuleKind) string {
	switch kind {
	case model.RuleFocus:
		return "focus keyword"
	case model.RuleSkip:
		return "skip keyword"
	case model.RulePriority:
		return "priority user"
	case model.RuleLowPriority:
		return "low-priority user"
	}
	return string(kind)
}
