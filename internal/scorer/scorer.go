// Package scorer implements the candidate scoring engine.
package scorer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"engagepilot/internal/model"
)

// Sentinel scores for hard-blocked candidates. They mark a candidate as
// not processable and are not meant for ranking against normal scores.
const (
	ScoreBlockedSkip      = -1000
	ScoreBlockedPromoted  = -1000
	ScoreBlockedSponsored = -500
)

// Weights is the named table of scoring contributions. Tuning a weight is
// a configuration change, not a code change.
type Weights struct {
	PriorityUser     int
	KeywordWholeWord int
	KeywordPartial   int
	KeywordMaxOccur  int
	GreetingMorning  int
	GreetingOffHours int
	Question         int
	GoodLength       int
	Conversation     int
	Positive         int
	Topic            int
	Social           int
	Achievement      int
	ShortPost        int
	BasePost         int
	ReplyPenalty     int
	ReplyToPriority  int
	OriginalPost     int
	LowPriorityUser  int
	Spam             int
	Promotional      int
	Aggressive       int
	MinReply         int
	MinReplyPriority int
}

// DefaultWeights returns the standard scoring table.
func DefaultWeights() Weights {
	return Weights{
		PriorityUser:     1000,
		KeywordWholeWord: 200,
		KeywordPartial:   100,
		KeywordMaxOccur:  3,
		GreetingMorning:  150,
		GreetingOffHours: 75,
		Question:         100,
		GoodLength:       25,
		Conversation:     30,
		Positive:         15,
		Topic:            20,
		Social:           15,
		Achievement:      25,
		ShortPost:        15,
		BasePost:         10,
		ReplyPenalty:     -50,
		ReplyToPriority:  25,
		OriginalPost:     25,
		LowPriorityUser:  -100,
		Spam:             -30,
		Promotional:      -25,
		Aggressive:       -50,
		MinReply:         10,
		MinReplyPriority: 0,
	}
}

// Word lists consulted by the contextual and negative factors.
var (
	sponsoredIndicators = []string{
		"promoted", "sponsored", "ad ", " ad", "advertisement",
		"twclid=", "utm_", "promo code", "discount code",
		"buy now", "shop now", "limited time", "act now",
		"click here", "link in bio",
	}
	conversationWords = []string{"think", "opinion", "thoughts", "agree", "disagree", "anyone", "everybody", "community"}
	positiveWords     = []string{"love", "great", "amazing", "awesome", "excited", "happy", "good", "nice", "cool", "thanks", "appreciate"}
	topicWords        = []string{"crypto", "bitcoin", "eth", "blockchain", "nft", "defi", "web3", "ai", "tech", "build", "dev", "code"}
	socialWords       = []string{"community", "together", "team", "frens", "gm", "gn", "family", "group", "join", "welcome"}
	achievementWords  = []string{"milestone", "achievement", "launched", "completed", "won", "success", "reached", "hit"}
	spamWords         = []string{"follow me", "check out", "dm me", "subscribe"}
	aggressiveWords   = []string{"hate", "stupid", "idiot", "scam", "rug"}
)

var (
	greetingRe      = regexp.MustCompile(`(?i)\b(gm|good morning)\b`)
	interrogativeRe = regexp.MustCompile(`(?i)^(who|what|when|where|why|how)\b`)
)

// Scorer scores candidates against keyword filters.
type Scorer struct {
	weights Weights
}

// New creates a Scorer with the given weights table.
func New(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Score rates a candidate against the filters at the given time.
// It is pure: the same inputs always produce the same result.
func (s *Scorer) Score(c model.Candidate, f model.Filters, now time.Time) model.ScoreResult {
	w := s.weights
	text := strings.ToLower(c.Text)

	// Hard block: skip keywords override everything.
	var skipMatches []string
	for _, kw := range f.SkipKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			skipMatches = append(skipMatches, kw)
		}
	}
	if len(skipMatches) > 0 {
		return model.ScoreResult{
			Score:     ScoreBlockedSkip,
			Reason:    fmt.Sprintf("Contains skip keyword(s): %s", strings.Join(skipMatches, ", ")),
			Breakdown: []string{"BLOCKED by skip keywords"},
		}
	}

	// Hard block: promoted flag from capture.
	if c.IsPromoted {
		return model.ScoreResult{
			Score:     ScoreBlockedPromoted,
			Reason:    "Promoted/sponsored post (capture flagged)",
			Breakdown: []string{"BLOCKED by promoted post detection"},
		}
	}

	// Hard block: sponsored phrasing in the content itself.
	for _, indicator := range sponsoredIndicators {
		if strings.Contains(text, indicator) {
			return model.ScoreResult{
				Score:     ScoreBlockedSponsored,
				Reason:    "Sponsored/promotional post (content detected)",
				Breakdown: []string{"BLOCKED by sponsored content detection"},
			}
		}
	}

	var (
		score       int
		shouldReply bool
		reason      string
		breakdown   []string
		matched     []string
	)

	author := model.NormalizeHandle(c.Author)
	isPriority := containsHandle(f.PriorityUsers, author)
	if isPriority {
		score += w.PriorityUser
		shouldReply = true
		reason = "Priority user"
		breakdown = append(breakdown, fmt.Sprintf("Priority user (+%d)", w.PriorityUser))
	}

	for _, keyword := range f.FocusKeywords {
		kw := strings.ToLower(keyword)
		if !strings.Contains(text, kw) {
			continue
		}
		matched = append(matched, keyword)

		per := w.KeywordPartial
		if wholeWordRe(kw).MatchString(text) {
			per = w.KeywordWholeWord
		}
		occurrences := strings.Count(text, kw)
		if occurrences > w.KeywordMaxOccur {
			occurrences = w.KeywordMaxOccur
		}
		kwScore := per * occurrences
		score += kwScore
		breakdown = append(breakdown, fmt.Sprintf("Keyword %q (+%d)", keyword, kwScore))

		if !shouldReply {
			shouldReply = true
			reason = fmt.Sprintf("Contains focus keyword(s): %s", strings.Join(matched, ", "))
		}
	}

	if greetingRe.MatchString(c.Text) {
		bonus := w.GreetingOffHours
		if hour := now.Hour(); hour >= 6 && hour <= 12 {
			bonus = w.GreetingMorning
		}
		score += bonus
		breakdown = append(breakdown, fmt.Sprintf("GM detected (+%d)", bonus))
		if !shouldReply {
			shouldReply = true
			reason = "GM greeting detected"
		}
	}

	if strings.Contains(c.Text, "?") || interrogativeRe.MatchString(strings.TrimSpace(c.Text)) {
		score += w.Question
		breakdown = append(breakdown, fmt.Sprintf("Question detected (+%d)", w.Question))
		if !shouldReply {
			shouldReply = true
			reason = "Question detected"
		}
	}

	length := len(c.Text)
	if length > 20 && length < 300 {
		score += w.GoodLength
		breakdown = append(breakdown, fmt.Sprintf("Good length (+%d)", w.GoodLength))
	}

	score += countBonus(&breakdown, text, conversationWords, w.Conversation, "Conversation indicators")
	score += countBonus(&breakdown, text, positiveWords, w.Positive, "Positive sentiment")
	score += countBonus(&breakdown, text, topicWords, w.Topic, "Topic content")
	score += countBonus(&breakdown, text, socialWords, w.Social, "Social engagement")
	score += countBonus(&breakdown, text, achievementWords, w.Achievement, "Achievement content")

	if length < 100 {
		score += w.ShortPost
		breakdown = append(breakdown, fmt.Sprintf("Short post bonus (+%d)", w.ShortPost))
	}

	if c.IsReply {
		score += w.ReplyPenalty
		breakdown = append(breakdown, fmt.Sprintf("Reply penalty (%d)", w.ReplyPenalty))
		if containsHandle(f.PriorityUsers, model.NormalizeHandle(c.ReplyToAuthor)) {
			score += w.ReplyToPriority
			breakdown = append(breakdown, fmt.Sprintf("Reply to priority user (+%d)", w.ReplyToPriority))
		}
	} else {
		score += w.OriginalPost
		breakdown = append(breakdown, fmt.Sprintf("Original post bonus (+%d)", w.OriginalPost))
	}

	if length > 5 {
		score += w.BasePost
		breakdown = append(breakdown, fmt.Sprintf("Base post bonus (+%d)", w.BasePost))
	}

	if containsHandle(f.LowPriorityUsers, author) {
		score += w.LowPriorityUser
		breakdown = append(breakdown, fmt.Sprintf("Low-priority user (%d)", w.LowPriorityUser))
	}

	score += countBonus(&breakdown, text, spamWords, w.Spam, "Spam indicators")
	if strings.Contains(text, "$") && strings.Contains(text, "buy") {
		score += w.Promotional
		breakdown = append(breakdown, fmt.Sprintf("Promotional content (%d)", w.Promotional))
	}
	score += countBonus(&breakdown, text, aggressiveWords, w.Aggressive, "Aggressive language")

	minReply := w.MinReply
	if isPriority {
		minReply = w.MinReplyPriority
	}
	if score >= minReply || isPriority {
		shouldReply = true
		if reason == "" {
			reason = fmt.Sprintf("Score sufficient (%d >= %d)", score, minReply)
		}
	}

	if len(breakdown) == 0 {
		breakdown = []string{"No scoring factors"}
	}

	return model.ScoreResult{
		Score:           score,
		ShouldProcess:   true,
		ShouldReply:     shouldReply,
		Reason:          reason,
		Breakdown:       breakdown,
		MatchedKeywords: matched,
		IsPriorityUser:  isPriority,
	}
}

// Scored pairs a candidate with its score result for ranking.
type Scored struct {
	Candidate model.Candidate
	Result    model.ScoreResult
}

// Rank sorts scored candidates by descending score. The sort is stable:
// equal scores keep their encounter order.
func Rank(scored []Scored) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Result.Score > scored[j].Result.Score
	})
}

func countBonus(breakdown *[]string, text string, words []string, per int, label string) int {
	n := 0
	for _, word := range words {
		if strings.Contains(text, word) {
			n++
		}
	}
	if n == 0 {
		return 0
	}
	total := n * per
	if total > 0 {
		*breakdown = append(*breakdown, fmt.Sprintf("%s (+%d)", label, total))
	} else {
		*breakdown = append(*breakdown, fmt.Sprintf("%s (%d)", label, total))
	}
	return total
}

func containsHandle(handles []string, normalized string) bool {
	if normalized == "" {
		return false
	}
	for _, h := range handles {
		if model.NormalizeHandle(h) == normalized {
			return true
		}
	}
	return false
}

func wholeWordRe(keyword string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(keyword) + `\b`)
}
