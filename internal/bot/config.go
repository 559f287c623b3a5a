package bot

// BotConfig represents the configuration for the bot
type BotConfig struct {
	// Number of dictionary entries shown per page
	DictionaryPageSize int
	// Hour of day used when /remind is called without an argument
	DefaultReminderHour int
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		DictionaryPageSize:  5,
		DefaultReminderHour: 9,
	}
}
