package config

const (
	defaultDataDir              = "~/.local/share/callscope"
	defaultLogDir               = "~/.local/share/callscope/logs"
	defaultAPIBind              = "127.0.0.1:7488"
	defaultSourceBaseURL        = "https://api.elevenlabs.io/v1"
	defaultListEndpoint         = "convai/conversations"
	defaultDetailPath           = "convai/conversations"
	defaultPageSize             = 100
	defaultMaxPages             = 50
	defaultDetailWorkers        = 4
	defaultSourceTimeoutSeconds = 30
	defaultRetryAttempts        = 3
	defaultRetryBaseDelayMS     = 500
	defaultRetryMaxDelayMS      = 8000
	defaultLLMProvider          = "openrouter"
	defaultLLMBaseURL           = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel             = "google/gemini-3-flash-preview"
	defaultLLMReferer           = "https://github.com/callscope/callscope"
	defaultLLMTitle             = "callscope analysis"
	defaultLLMTimeoutSeconds    = 60
	defaultAnalysisCacheTTL     = 3600
	defaultAnalysisTimeout      = 90
	defaultAnalysisMaxConvs     = 200
	defaultAnalysisMaxQuotes    = 5
	defaultMonthlyBudget        = 0
	defaultStatsTimeframe       = "30d"
	defaultCompletedStatus      = "done"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Source: Source{
			BaseURL:          defaultSourceBaseURL,
			ListEndpoints:    []string{defaultListEndpoint},
			DetailPath:       defaultDetailPath,
			PageSize:         defaultPageSize,
			MaxPages:         defaultMaxPages,
			DetailWorkers:    defaultDetailWorkers,
			TimeoutSeconds:   defaultSourceTimeoutSeconds,
			RetryAttempts:    defaultRetryAttempts,
			RetryBaseDelayMS: defaultRetryBaseDelayMS,
			RetryMaxDelayMS:  defaultRetryMaxDelayMS,
		},
		LLM: LLM{
			Provider:       defaultLLMProvider,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Analysis: Analysis{
			Enabled:          true,
			CacheTTLSeconds:  defaultAnalysisCacheTTL,
			TimeoutSeconds:   defaultAnalysisTimeout,
			MaxConversations: defaultAnalysisMaxConvs,
			MaxQuotes:        defaultAnalysisMaxQuotes,
		},
		Stats: Stats{
			MonthlyBudget:    defaultMonthlyBudget,
			DefaultTimeframe: defaultStatsTimeframe,
			CompletedStatus:  defaultCompletedStatus,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
