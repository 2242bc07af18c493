package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"callscope/internal/services"
)

// LangChain adapts a langchaingo model to Completer.
type LangChain struct {
	model     llms.Model
	modelName string
	provider  string
}

var _ Completer = (*LangChain)(nil)

// NewLangChain builds a langchaingo-backed completer for the openai, ollama,
// or anthropic provider.
func NewLangChain(settings Settings) (*LangChain, error) {
	provider := strings.ToLower(strings.TrimSpace(settings.Provider))
	httpClient := &http.Client{Timeout: settings.timeout()}

	var (
		model llms.Model
		err   error
	)
	switch provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(settings.APIKey),
			openai.WithModel(settings.Model),
			openai.WithHTTPClient(httpClient),
		}
		if settings.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(settings.BaseURL))
		}
		model, err = openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{
			ollama.WithModel(settings.Model),
			ollama.WithFormat("json"),
			ollama.WithHTTPClient(httpClient),
		}
		if settings.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(settings.BaseURL))
		}
		model, err = ollama.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithToken(settings.APIKey),
			anthropic.WithModel(settings.Model),
			anthropic.WithHTTPClient(httpClient),
		}
		if settings.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(settings.BaseURL))
		}
		model, err = anthropic.New(opts...)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "llm", "langchain", fmt.Sprintf("unsupported provider %q", provider), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "langchain", "create "+provider+" model", err)
	}
	return &LangChain{model: model, modelName: settings.Model, provider: provider}, nil
}

// Model returns the configured model identifier.
func (l *LangChain) Model() string {
	return l.modelName
}

// CompleteJSON sends the prompts and returns the first choice's content.
func (l *LangChain) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, strings.TrimSpace(systemPrompt)),
		llms.TextParts(llms.ChatMessageTypeHuman, strings.TrimSpace(userPrompt)),
	}
	opts := []llms.CallOption{llms.WithTemperature(0)}
	if l.provider != "anthropic" {
		opts = append(opts, llms.WithJSONMode())
	}
	resp, err := l.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", services.Wrap(services.ErrExternal, "llm", l.provider, "generate content", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &EmptyContentError{Snippet: "<no choices>"}
	}
	content := strings.TrimSpace(resp.Choices[0].Content)
	if content == "" {
		return "", &EmptyContentError{FinishReason: resp.Choices[0].StopReason, Snippet: "<empty>"}
	}
	return content, nil
}
