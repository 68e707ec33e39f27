package model

// ================ Config ================
type ConversationConfig struct {
	TTL   string `envconfig:"CONVERSATION_TTL" default:"15m"`
	Tools struct {
		// MaxRoundTrips bounds chatbot -> tool executor cycles per
		// invocation. The run fails with ErrToolLoopExceeded past it.
		MaxRoundTrips int `envconfig:"CONVERSATION_TOOL_MAX_ROUND_TRIPS" default:"10"`
	}
}

type ChatModelConfig struct {
	Model       string  `envconfig:"CHAT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"CHAT_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"CHAT_TEMPERATURE" default:"0.4"`
}

type PromptConfig struct {
	AssistantName string `envconfig:"PROMPT_ASSISTANT_NAME" default:"Scout"`
	Specialty     string `envconfig:"PROMPT_SPECIALTY" default:"research and current information"`
}
