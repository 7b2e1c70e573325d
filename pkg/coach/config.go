package coach

import "time"

type Config struct {
	APIKey      string        `env:"OPENAI_API_KEY,required"`
	BaseURL     string        `env:"OPENAI_BASE_URL"`
	OrgID       string        `env:"OPENAI_ORG_ID"`
	ChatModel   string        `env:"COACH_CHAT_MODEL" envDefault:"gpt-4o-mini"`
	SpeechModel string        `env:"COACH_SPEECH_MODEL" envDefault:"tts-1"`
	Voice       string        `env:"COACH_VOICE" envDefault:"fable"`
	Timeout     time.Duration `env:"COACH_TIMEOUT" envDefault:"45s"`
	Persona     string        `env:"COACH_PERSONA" envDefault:"Coach"`
}
