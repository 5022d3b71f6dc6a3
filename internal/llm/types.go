package llm

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams holds parameters for chat completion requests.
type ChatParams struct {
	// Model overrides the client's default model when set.
	Model string

	// MaxTokens limits the generated tokens. 0 leaves it to the provider.
	MaxTokens int

	// Temperature is sent as is, including 0.
	Temperature float32
}
