package bot

import (
	"fmt"
	"strings"

	"engagepilot/internal/model"
)

// FormatApprovalRequest renders a drafted reply as a review card.
func FormatApprovalRequest(req model.ApprovalRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reply draft for @%s\n\n", req.AuthorHandle)
	fmt.Fprintf(&b, "Post:\n%s\n\n", req.CandidateTxt)
	fmt.Fprintf(&b, "Draft:\n%s\n", req.DraftText)
	if req.ImageRef != "" {
		fmt.Fprintf(&b, "\nImage: %s\n", req.ImageRef)
	}
	b.WriteString("\nAccept, regenerate, skip - or send your own text to post it instead.")
	return b.String()
}

// FormatStatus renders the engine state for /status.
func FormatStatus(running bool, session, daily, maxDaily, processed int) string {
	state := "running"
	if !running {
		state = "paused"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Engine: %s\n", state)
	fmt.Fprintf(&b, "Interactions this session: %d\n", session)
	if maxDaily > 0 {
		fmt.Fprintf(&b, "Interactions today: %d / %d\n", daily, maxDaily)
	} else {
		fmt.Fprintf(&b, "Interactions today: %d\n", daily)
	}
	fmt.Fprintf(&b, "Processed posts remembered: %d", processed)
	return b.String()
}

// FormatRules renders the filter rules grouped by kind.
func FormatRules(rules []model.FilterRule) string {
	if len(rules) == 0 {
		return "No filter rules yet.\nUse /focus, /skip, /priority, /lowpriority to add rules."
	}

	groups := map[model.RuleKind][]model.FilterRule{}
	for _, r := range rules {
		groups[r.Kind] = append(groups[r.Kind], r)
	}

	var b strings.Builder
	b.WriteString("Filter rules:\n")

	order := []struct {
		kind  model.RuleKind
		title string
	}{
		{model.RuleFocus, "Focus keywords"},
		{model.RuleSkip, "Skip keywords"},
		{model.RulePriority, "Priority users"},
		{model.RuleLowPriority, "Low-priority users"},
	}
	for _, g := range order {
		rs := groups[g.kind]
		if len(rs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", g.title)
		for _, r := range rs {
			fmt.Fprintf(&b, "  R%d: %s\n", r.ID, r.Value)
		}
	}
	b.WriteString("\nRemove with /rmrule <id>.")
	return b.String()
}

// FormatSources renders the capture source list.
func FormatSources(sources []model.Source) string {
	var b strings.Builder
	b.WriteString("Capture sources:\n")
	for _, src := range sources {
		status := "active"
		if !src.IsActive {
			status = "paused"
		}
		fmt.Fprintf(&b, "\n#%d %s [%s]\n   %s\n", src.ID, src.Name, status, src.URL)
	}
	return b.String()
}
