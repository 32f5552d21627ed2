package llm

// Instruction is a system prompt handed to a model.
type Instruction string

// Provider names the backend serving SQL generation.
type Provider string

const (
	ProviderOllama     Provider = "ollama"
	ProviderOpenAI     Provider = "openai"
	ProviderCloudflare Provider = "cloudflare"
)

type Intent string

const (
	IntentGreeting  Intent = "greeting"
	IntentDataQuery Intent = "data_query"
	IntentVague     Intent = "vague_question"
	IntentOffTopic  Intent = "off_topic"
)

// Classification is the gatekeeper's verdict on a user message.
type Classification struct {
	Intent             Intent  `json:"intent"`
	Confidence         float64 `json:"confidence"`
	NeedsClarification bool    `json:"needs_clarification"`
	Response           string  `json:"response"`
}

func (i Intent) Valid() bool {
	switch i {
	case IntentGreeting, IntentDataQuery, IntentVague, IntentOffTopic:
		return true
	}
	return false
}
