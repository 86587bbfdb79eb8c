package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	MongoURI  string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDB   string `envconfig:"MONGO_DB" default:"nesugoshipanic"`
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	// LINE Messaging API (webhook + push/reply)
	LineChannelSecret string `envconfig:"LINE_CHANNEL_SECRET" required:"true"`
	LineChannelToken  string `envconfig:"LINE_CHANNEL_ACCESS_TOKEN" required:"true"`

	// LINE Login (email capture during ID issuance)
	LineLoginChannelID     string `envconfig:"LINE_LOGIN_CHANNEL_ID"`
	LineLoginChannelSecret string `envconfig:"LINE_LOGIN_CHANNEL_SECRET"`
	LineLoginRedirectURL   string `envconfig:"LINE_LOGIN_REDIRECT_URL"`

	// Game identifiers
	TokenAlphabet string `envconfig:"TOKEN_ALPHABET" default:"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"`
	TokenLength   int    `envconfig:"TOKEN_LENGTH" default:"3"`

	// External game URLs, the game ID is appended as a query parameter
	Stage1GameURL string `envconfig:"STAGE1_GAME_URL" default:"https://nesupani-react.vercel.app/bikegame"`
	Stage3GameURL string `envconfig:"STAGE3_GAME_URL" default:"https://nesugoshipanic.web.app/"`

	// Operator endpoints (debug shortcut etc.)
	AdminAPIKey string `envconfig:"ADMIN_API_KEY"`

	// Outbound mail; mail is skipped entirely when SMTPHost is empty
	SMTPHost string `envconfig:"SMTP_HOST"`
	SMTPPort int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser string `envconfig:"SMTP_USER"`
	SMTPPass string `envconfig:"SMTP_PASS"`
	MailFrom string `envconfig:"MAIL_FROM"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return &cfg, nil
}
