package model

// Provider identifies which completion backend a session is talking to.
type Provider string

const (
	ProviderNone      Provider = ""
	ProviderLocal     Provider = "local"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "claude"
)

// GenerationSettings holds the sampling parameters for a completion call.
// Providers validate these against their own numeric domains before any
// network call is made.
type GenerationSettings struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
	Model       string  `json:"model"`
}

// DefaultGenerationSettings mirrors the defaults a fresh session starts with.
func DefaultGenerationSettings() GenerationSettings {
	return GenerationSettings{
		Temperature: 0.7,
		MaxTokens:   512,
		TopP:        0.9,
	}
}

// Identity is the opaque user identity handed to the engine by the auth
// layer. A guest identity has no durable id and is excluded from remote
// persistence entirely.
type Identity struct {
	UserID string `json:"id,omitempty"`
	Email  string `json:"email,omitempty"`
	Guest  bool   `json:"guest"`
}

// GuestIdentity is the sentinel identity for sessions without a login.
func GuestIdentity() Identity {
	return Identity{Guest: true}
}

// AttachmentHandle is one pending attachment: name, size and raw bytes.
// The presentation layer owns picking mechanics; the engine only ever sees
// this triple.
type AttachmentHandle struct {
	Name string
	Size int64
	Data []byte
}
