package llm

const (
	// OllamaDefaultModel matches the model the chatbot is tuned for.
	OllamaDefaultModel = "mistral"

	// OllamaDefaultBaseURL is the OpenAI-compatible endpoint of a local
	// Ollama server.
	OllamaDefaultBaseURL = "http://localhost:11434/v1"

	// ollamaPlaceholderKey satisfies clients that insist on a bearer token.
	// Ollama does not check it.
	ollamaPlaceholderKey = "ollama"
)

func init() {
	RegisterProviderFactory("ollama", newOllamaProvider)
}

// newOllamaProvider reuses the OpenAI-compatible provider against Ollama's
// /v1 endpoint. No API key is required.
func newOllamaProvider(config ClientConfig) (CoreLLM, error) {
	if config.Model == "" {
		config.Model = OllamaDefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = OllamaDefaultBaseURL
	}
	if config.APIKey == "" {
		config.APIKey = ollamaPlaceholderKey
	}
	return newOpenAICompatibleProvider("ollama", config)
}
