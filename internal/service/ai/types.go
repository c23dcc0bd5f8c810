package ai

// CompletionOptions are the sampling settings sent with every completion.
type CompletionOptions struct {
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Completion is a non-empty model answer and where it came from.
type Completion struct {
	Text         string
	Provider     string
	Model        string
	UsedFallback bool
}

type ProviderResult struct {
	Text  string
	Model string
}
