package config

import "time"

// SummarizerConfig configures the external summarization service
type SummarizerConfig struct {
	APIKey  string        `env:"SUMMARIZER_API_KEY"` // Never serialize
	BaseURL string        `env:"SUMMARIZER_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta/models"`
	Model   string        `env:"SUMMARIZER_MODEL" envDefault:"gemini-2.0-flash"`
	Timeout time.Duration `env:"SUMMARIZER_TIMEOUT" envDefault:"10s"`
}

// IsEnabled returns true if the summarizer API is configured
func (c SummarizerConfig) IsEnabled() bool {
	return c.APIKey != ""
}

// Endpoint returns the generateContent URL for the configured model
func (c SummarizerConfig) Endpoint() string {
	return c.BaseURL + "/" + c.Model + ":generateContent"
}
