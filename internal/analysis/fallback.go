package analysis

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"callscope/internal/store"
)

const (
	maxThemes      = 10
	maxTrendDays   = 366
	maxQuoteRunes  = 240
	minQuestionLen = 12
	minTermLen     = 4
	dateLayout     = "2006-01-02"
)

// scoredMessage carries a lexicon score for one message.
type scoredMessage struct {
	conversationID string
	role           store.Role
	text           string
	score          float64
	hasSentiment   bool
}

// conversationScore is the mean message score for one conversation.
type conversationScore struct {
	id    string
	day   string
	score float64
}

// heuristics is the deterministic analysis of a set of conversations.
type heuristics struct {
	messages      []scoredMessage
	conversations []conversationScore
	byID          map[string]float64
	themes        []Theme
	themeConvs    map[string][]string
}

func analyzeHeuristics(convs []store.Conversation) heuristics {
	h := heuristics{
		byID:       make(map[string]float64, len(convs)),
		themeConvs: make(map[string][]string),
	}
	mentions := make(map[string]int)
	for _, conv := range convs {
		var sum float64
		var n int
		seenThemes := make(map[string]struct{})
		for _, msg := range conv.Messages {
			score, ok := scoreText(msg.Text)
			h.messages = append(h.messages, scoredMessage{
				conversationID: conv.ExternalID,
				role:           msg.Role,
				text:           strings.TrimSpace(msg.Text),
				score:          score,
				hasSentiment:   ok,
			})
			if ok {
				sum += score
				n++
			}
			if msg.Role != store.RoleCaller {
				continue
			}
			for _, theme := range themesIn(msg.Text) {
				mentions[theme]++
				if _, dup := seenThemes[theme]; !dup {
					seenThemes[theme] = struct{}{}
					h.themeConvs[theme] = append(h.themeConvs[theme], conv.ExternalID)
				}
			}
		}
		score := 0.0
		if n > 0 {
			score = sum / float64(n)
		}
		h.byID[conv.ExternalID] = score
		h.conversations = append(h.conversations, conversationScore{
			id:    conv.ExternalID,
			day:   conv.StartTime.UTC().Format(dateLayout),
			score: score,
		})
	}

	caser := cases.Title(language.English)
	for theme, count := range mentions {
		h.themes = append(h.themes, Theme{
			Theme:             caser.String(theme),
			Mentions:          count,
			ConversationCount: len(h.themeConvs[theme]),
		})
	}
	sortThemes(h.themes)
	if len(h.themes) > maxThemes {
		h.themes = h.themes[:maxThemes]
	}
	return h
}

// themesIn maps a message to topics from the keyword table, falling back to
// significant words when no topic matches.
func themesIn(text string) []string {
	var topics, terms []string
	for _, token := range tokenize(text) {
		if topic, ok := keywordTopics[token]; ok {
			if !slices.Contains(topics, topic) {
				topics = append(topics, topic)
			}
			continue
		}
		if len(token) < minTermLen {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if _, sentiment := positiveWords[token]; sentiment {
			continue
		}
		if _, sentiment := negativeWords[token]; sentiment {
			continue
		}
		if !slices.Contains(terms, token) {
			terms = append(terms, token)
		}
	}
	if len(topics) > 0 {
		return topics
	}
	return terms
}

func sortThemes(themes []Theme) {
	slices.SortFunc(themes, func(a, b Theme) int {
		if c := cmp.Compare(b.ConversationCount, a.ConversationCount); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Mentions, a.Mentions); c != 0 {
			return c
		}
		return cmp.Compare(a.Theme, b.Theme)
	})
}

func (h heuristics) overview() SentimentOverview {
	var overall, caller, agent summaryBuilder
	for _, msg := range h.messages {
		if !msg.hasSentiment {
			continue
		}
		overall.add(msg.score)
		if msg.role == store.RoleAgent {
			agent.add(msg.score)
		} else {
			caller.add(msg.score)
		}
	}
	return SentimentOverview{
		Overall: overall.summary(),
		Caller:  caller.summary(),
		Agent:   agent.summary(),
	}
}

type summaryBuilder struct {
	sum   float64
	count int
	dist  Distribution
}

func (b *summaryBuilder) add(score float64) {
	b.sum += score
	b.count++
	b.dist.add(score)
}

func (b summaryBuilder) summary() SentimentSummary {
	avg := 0.0
	if b.count > 0 {
		avg = round(b.sum / float64(b.count))
	}
	return SentimentSummary{Average: avg, Label: labelFor(avg), Distribution: b.dist}
}

// trends averages conversation scores per day. Days in [start, end) without
// conversations are included with zero values unless the range is too long
// to chart.
func trends(scores []conversationScore, start, end time.Time) []TrendPoint {
	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[string]*bucket)
	for _, s := range scores {
		b := buckets[s.day]
		if b == nil {
			b = &bucket{}
			buckets[s.day] = b
		}
		b.sum += s.score
		b.count++
	}

	days := make([]string, 0, len(buckets))
	if !start.IsZero() && end.After(start) && end.Sub(start) <= maxTrendDays*24*time.Hour {
		for day := start.UTC().Truncate(24 * time.Hour); day.Before(end); day = day.AddDate(0, 0, 1) {
			days = append(days, day.Format(dateLayout))
		}
	}
	for day := range buckets {
		if !slices.Contains(days, day) {
			days = append(days, day)
		}
	}
	slices.Sort(days)

	points := make([]TrendPoint, 0, len(days))
	for _, day := range days {
		point := TrendPoint{Date: day}
		if b := buckets[day]; b != nil {
			point.Conversations = b.count
			point.AverageSentiment = round(b.sum / float64(b.count))
		}
		points = append(points, point)
	}
	return points
}

// correlate relates each theme to the scores of the conversations that
// mention it.
func correlate(themes []Theme, themeConvs map[string][]string, scores map[string]float64) []ThemeSentiment {
	out := make([]ThemeSentiment, 0, len(themes))
	for _, theme := range themes {
		row := ThemeSentiment{Theme: theme.Theme}
		ids := themeConvs[strings.ToLower(theme.Theme)]
		var sum float64
		for _, id := range ids {
			score := scores[id]
			sum += score
			switch labelFor(score) {
			case LabelPositive:
				row.Positive++
			case LabelNegative:
				row.Negative++
			default:
				row.Neutral++
			}
		}
		if len(ids) > 0 {
			row.AverageSentiment = round(sum / float64(len(ids)))
		}
		out = append(out, row)
	}
	return out
}

func (h heuristics) quotes(limit int) CategorizedQuotes {
	var questions, concerns, positive []scoredMessage
	for _, msg := range h.messages {
		if msg.text == "" {
			continue
		}
		caller := msg.role != store.RoleAgent
		switch {
		case caller && strings.HasSuffix(msg.text, "?") && len([]rune(msg.text)) >= minQuestionLen:
			questions = append(questions, msg)
		case caller && msg.hasSentiment && msg.score < -labelThreshold:
			concerns = append(concerns, msg)
		case msg.hasSentiment && msg.score > labelThreshold:
			positive = append(positive, msg)
		}
	}
	slices.SortStableFunc(concerns, func(a, b scoredMessage) int { return cmp.Compare(a.score, b.score) })
	slices.SortStableFunc(positive, func(a, b scoredMessage) int {
		// Caller praise first, then strongest.
		if ac, bc := a.role != store.RoleAgent, b.role != store.RoleAgent; ac != bc {
			if ac {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.score, a.score)
	})
	return CategorizedQuotes{
		Questions: toQuotes(questions, limit),
		Concerns:  toQuotes(concerns, limit),
		Positive:  toQuotes(positive, limit),
	}
}

func toQuotes(msgs []scoredMessage, limit int) []Quote {
	out := make([]Quote, 0, min(limit, len(msgs)))
	seen := make(map[string]struct{})
	for _, msg := range msgs {
		if len(out) >= limit {
			break
		}
		key := strings.ToLower(msg.text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Quote{
			Text:           truncateRunes(msg.text, maxQuoteRunes),
			ConversationID: msg.conversationID,
			Role:           string(msg.role),
			Sentiment:      round(msg.score),
		})
	}
	return out
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// fallbackPayload builds the heuristic analysis.
func fallbackPayload(convs []store.Conversation, req Request, maxQuotes int) Payload {
	p := emptyPayload()
	h := analyzeHeuristics(convs)
	p.SentimentOverview = h.overview()
	p.TopThemes = append(p.TopThemes, h.themes...)
	p.SentimentTrends = trends(h.conversations, req.Start, req.End)
	p.ThemeSentimentCorrelation = correlate(h.themes, h.themeConvs, h.byID)
	p.CategorizedQuotes = h.quotes(maxQuotes)
	p.AnalysisStatus = Status{Mode: ModeFallback}
	return p
}
