package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"callscope/internal/services/llm"
	"callscope/internal/store"
)

const (
	maxDigestChars   = 48000
	maxDigestMessage = 280
)

// modelAnswer is the structure the model is asked to produce.
type modelAnswer struct {
	SentimentOverview         SentimentOverview       `json:"sentiment_overview"`
	TopThemes                 []Theme                 `json:"top_themes" jsonschema:"maxItems=10"`
	ThemeSentimentCorrelation []ThemeSentiment        `json:"theme_sentiment_correlation"`
	CategorizedQuotes         CategorizedQuotes       `json:"categorized_quotes"`
	ConversationSentiments    []conversationSentiment `json:"conversation_sentiments"`
}

type conversationSentiment struct {
	ConversationID string  `json:"conversation_id"`
	Score          float64 `json:"score" jsonschema:"minimum=-1,maximum=1"`
}

var answerSchema = sync.OnceValue(func() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	data, err := json.Marshal(reflector.Reflect(&modelAnswer{}))
	if err != nil {
		return "{}"
	}
	return string(data)
})

const systemPromptTemplate = `You analyze customer support call transcripts for an operations dashboard.
Read every conversation and respond with a single JSON object that validates against this JSON Schema:

%s

Rules:
- Sentiment scores range from -1 (very negative) to 1 (very positive); labels are positive, neutral, or negative.
- Distributions count messages per sentiment bucket.
- top_themes lists at most 10 recurring topics, most frequent first, with short title-case names.
- Every quote must be copied verbatim from a caller or agent message and carry the conversation_id it came from.
- categorized_quotes.questions holds caller questions, concerns holds caller complaints, positive holds appreciative messages. At most %d quotes per category.
- conversation_sentiments gives one overall score per conversation_id.
Respond with JSON only.`

// full runs the model-backed analysis.
func (a *Analyzer) full(ctx context.Context, req Request, convs []store.Conversation) (Payload, error) {
	digest, included := buildDigest(convs, a.opts.MaxConversations)
	system := fmt.Sprintf(systemPromptTemplate, answerSchema(), a.opts.MaxQuotes)
	user := fmt.Sprintf("Conversations from %s to %s (%d of %d shown):\n\n%s",
		req.Start.Format(dateLayout), inclusiveEnd(req), included, len(convs), digest)

	content, err := a.completer.CompleteJSON(ctx, system, user)
	if err != nil {
		return Payload{}, err
	}
	var answer modelAnswer
	if err := llm.DecodeJSON(content, &answer); err != nil {
		return Payload{}, fmt.Errorf("decode model answer: %w", err)
	}
	payload := normalizeAnswer(answer, convs, req, a.opts.MaxQuotes)
	payload.AnalysisStatus = Status{Mode: ModeFull, ModelName: a.completer.Model()}
	payload.Metadata.AnalyzedConversations = included
	return payload, nil
}

// buildDigest renders conversations as plain text, sampling evenly when
// there are more than limit and stopping at the character budget.
func buildDigest(convs []store.Conversation, limit int) (string, int) {
	selected := convs
	if limit > 0 && len(convs) > limit {
		selected = make([]store.Conversation, 0, limit)
		step := float64(len(convs)) / float64(limit)
		for i := range limit {
			selected = append(selected, convs[int(float64(i)*step)])
		}
	}

	var b strings.Builder
	included := 0
	for _, conv := range selected {
		var section strings.Builder
		fmt.Fprintf(&section, "### conversation_id=%s start=%s agent=%s\n",
			conv.ExternalID, conv.StartTime.UTC().Format("2006-01-02 15:04"), conv.AgentID)
		for _, msg := range conv.Messages {
			text := strings.Join(strings.Fields(msg.Text), " ")
			if text == "" {
				continue
			}
			fmt.Fprintf(&section, "%s: %s\n", msg.Role, truncateRunes(text, maxDigestMessage))
		}
		section.WriteString("\n")
		if b.Len()+section.Len() > maxDigestChars && included > 0 {
			break
		}
		b.WriteString(section.String())
		included++
	}
	return b.String(), included
}

// normalizeAnswer clamps the model's values, drops quotes that cannot be
// traced to an input conversation, and derives trends from per-conversation
// scores, using lexicon scores where the model gave none.
func normalizeAnswer(answer modelAnswer, convs []store.Conversation, req Request, maxQuotes int) Payload {
	p := emptyPayload()
	p.SentimentOverview = SentimentOverview{
		Overall: normalizeSummary(answer.SentimentOverview.Overall),
		Caller:  normalizeSummary(answer.SentimentOverview.Caller),
		Agent:   normalizeSummary(answer.SentimentOverview.Agent),
	}

	seenThemes := make(map[string]struct{})
	for _, theme := range answer.TopThemes {
		name := strings.TrimSpace(theme.Theme)
		key := strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, dup := seenThemes[key]; dup {
			continue
		}
		seenThemes[key] = struct{}{}
		p.TopThemes = append(p.TopThemes, Theme{
			Theme:             name,
			Mentions:          max(theme.Mentions, 0),
			ConversationCount: min(max(theme.ConversationCount, 0), len(convs)),
		})
	}
	sortThemes(p.TopThemes)
	if len(p.TopThemes) > maxThemes {
		p.TopThemes = p.TopThemes[:maxThemes]
	}

	for _, row := range answer.ThemeSentimentCorrelation {
		name := strings.TrimSpace(row.Theme)
		if name == "" {
			continue
		}
		p.ThemeSentimentCorrelation = append(p.ThemeSentimentCorrelation, ThemeSentiment{
			Theme:            name,
			AverageSentiment: round(clampScore(row.AverageSentiment)),
			Positive:         max(row.Positive, 0),
			Neutral:          max(row.Neutral, 0),
			Negative:         max(row.Negative, 0),
		})
	}

	known := make(map[string]store.Conversation, len(convs))
	for _, conv := range convs {
		known[conv.ExternalID] = conv
	}
	p.CategorizedQuotes = CategorizedQuotes{
		Questions: traceableQuotes(answer.CategorizedQuotes.Questions, known, maxQuotes),
		Concerns:  traceableQuotes(answer.CategorizedQuotes.Concerns, known, maxQuotes),
		Positive:  traceableQuotes(answer.CategorizedQuotes.Positive, known, maxQuotes),
	}

	modelScores := make(map[string]float64, len(answer.ConversationSentiments))
	for _, cs := range answer.ConversationSentiments {
		if _, ok := known[strings.TrimSpace(cs.ConversationID)]; ok {
			modelScores[strings.TrimSpace(cs.ConversationID)] = clampScore(cs.Score)
		}
	}
	heur := analyzeHeuristics(convs)
	scores := make([]conversationScore, 0, len(heur.conversations))
	for _, cs := range heur.conversations {
		if score, ok := modelScores[cs.id]; ok {
			cs.score = score
		}
		scores = append(scores, cs)
	}
	p.SentimentTrends = trends(scores, req.Start, req.End)
	return p
}

func normalizeSummary(s SentimentSummary) SentimentSummary {
	avg := round(clampScore(s.Average))
	return SentimentSummary{
		Average: avg,
		Label:   labelFor(avg),
		Distribution: Distribution{
			Positive: max(s.Distribution.Positive, 0),
			Neutral:  max(s.Distribution.Neutral, 0),
			Negative: max(s.Distribution.Negative, 0),
		},
	}
}

func traceableQuotes(quotes []Quote, known map[string]store.Conversation, limit int) []Quote {
	out := make([]Quote, 0, min(len(quotes), limit))
	for _, q := range quotes {
		if len(out) >= limit {
			break
		}
		id := strings.TrimSpace(q.ConversationID)
		text := strings.TrimSpace(q.Text)
		if _, ok := known[id]; !ok || text == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(q.Role))
		if role != string(store.RoleAgent) {
			role = string(store.RoleCaller)
		}
		out = append(out, Quote{
			Text:           truncateRunes(text, maxQuoteRunes),
			ConversationID: id,
			Role:           role,
			Sentiment:      round(clampScore(q.Sentiment)),
		})
	}
	return out
}

func clampScore(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
