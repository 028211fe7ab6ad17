package ui

// Config contains TUI-specific configuration.
type Config struct {
	// Piper voices offered when cycling voices on the local backend.
	LocalVoices []string

	APIToken string `env:"FELLOWSHIP_API_TOKEN"`

	// For debugging the UI
	Debug     bool `env:"FELLOWSHIP_DEBUG"`
	AltScreen bool `env:"FELLOWSHIP_ALT_SCREEN" envDefault:"true"`
}
