package analysis

import "time"

// Mode reports which analysis path produced a payload.
type Mode string

const (
	ModeFull     Mode = "full"
	ModeFallback Mode = "fallback"
)

// Sentiment labels.
const (
	LabelPositive = "positive"
	LabelNeutral  = "neutral"
	LabelNegative = "negative"
)

// Payload is the analysis document returned to clients.
type Payload struct {
	SentimentOverview         SentimentOverview `json:"sentiment_overview"`
	TopThemes                 []Theme           `json:"top_themes"`
	SentimentTrends           []TrendPoint      `json:"sentiment_trends"`
	ThemeSentimentCorrelation []ThemeSentiment  `json:"theme_sentiment_correlation"`
	CategorizedQuotes         CategorizedQuotes `json:"categorized_quotes"`
	AnalysisStatus            Status            `json:"analysis_status"`
	Metadata                  Metadata          `json:"metadata"`
	Error                     string            `json:"error,omitempty"`
	Timeout                   bool              `json:"timeout,omitempty"`
	Details                   string            `json:"details,omitempty"`
}

// SentimentOverview summarizes sentiment overall and per speaker.
type SentimentOverview struct {
	Overall SentimentSummary `json:"overall" jsonschema:"description=Sentiment across every message"`
	Caller  SentimentSummary `json:"caller" jsonschema:"description=Sentiment of caller messages"`
	Agent   SentimentSummary `json:"agent" jsonschema:"description=Sentiment of agent messages"`
}

// SentimentSummary is an average score in [-1, 1] with a bucketed count.
type SentimentSummary struct {
	Average      float64      `json:"average" jsonschema:"minimum=-1,maximum=1"`
	Label        string       `json:"label" jsonschema:"enum=positive,enum=neutral,enum=negative"`
	Distribution Distribution `json:"distribution"`
}

// Distribution counts scored items per sentiment bucket.
type Distribution struct {
	Positive int `json:"positive" jsonschema:"minimum=0"`
	Neutral  int `json:"neutral" jsonschema:"minimum=0"`
	Negative int `json:"negative" jsonschema:"minimum=0"`
}

// Theme is a recurring topic.
type Theme struct {
	Theme             string `json:"theme"`
	Mentions          int    `json:"mentions" jsonschema:"minimum=0"`
	ConversationCount int    `json:"conversation_count" jsonschema:"minimum=0"`
}

// TrendPoint is the average conversation sentiment on one day.
type TrendPoint struct {
	Date             string  `json:"date"`
	AverageSentiment float64 `json:"average_sentiment"`
	Conversations    int     `json:"conversations"`
}

// ThemeSentiment relates a theme to the sentiment of conversations that
// mention it.
type ThemeSentiment struct {
	Theme            string  `json:"theme"`
	AverageSentiment float64 `json:"average_sentiment" jsonschema:"minimum=-1,maximum=1"`
	Positive         int     `json:"positive" jsonschema:"minimum=0"`
	Neutral          int     `json:"neutral" jsonschema:"minimum=0"`
	Negative         int     `json:"negative" jsonschema:"minimum=0"`
}

// Quote is a representative message traceable to its conversation.
type Quote struct {
	Text           string  `json:"text"`
	ConversationID string  `json:"conversation_id"`
	Role           string  `json:"role,omitempty" jsonschema:"enum=caller,enum=agent"`
	Sentiment      float64 `json:"sentiment"`
}

// CategorizedQuotes groups representative quotes.
type CategorizedQuotes struct {
	Questions []Quote `json:"questions"`
	Concerns  []Quote `json:"concerns"`
	Positive  []Quote `json:"positive"`
}

// Status reports provenance.
type Status struct {
	Mode      Mode   `json:"mode"`
	ModelName string `json:"model_name"`
}

// Metadata describes the analyzed range.
type Metadata struct {
	TotalConversationsInRange int       `json:"total_conversations_in_range"`
	AnalyzedConversations     int       `json:"analyzed_conversations"`
	StartDate                 string    `json:"start_date"`
	EndDate                   string    `json:"end_date"`
	AgentID                   string    `json:"agent_id,omitempty"`
	GeneratedAt               time.Time `json:"generated_at"`
}

func emptyPayload() Payload {
	return Payload{
		TopThemes:                 []Theme{},
		SentimentTrends:           []TrendPoint{},
		ThemeSentimentCorrelation: []ThemeSentiment{},
		CategorizedQuotes: CategorizedQuotes{
			Questions: []Quote{},
			Concerns:  []Quote{},
			Positive:  []Quote{},
		},
		SentimentOverview: SentimentOverview{
			Overall: SentimentSummary{Label: LabelNeutral},
			Caller:  SentimentSummary{Label: LabelNeutral},
			Agent:   SentimentSummary{Label: LabelNeutral},
		},
	}
}
