package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTP  HTTPServer
	Log   Log
	Mongo Mongo

	Reseller    Reseller
	Email       Email
	Admin       Admin       `envPrefix:"ADMIN_"`
	Fulfillment Fulfillment `envPrefix:"FULFILL_"`

	JWTSecret string        `env:"JWT_SECRET,unset,required,notEmpty"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8000"`
}

func (h HTTPServer) Addr() string {
	return h.Host + ":" + h.Port
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
	File   string `env:"LOG_FILE"`
}

type Mongo struct {
	URI      string `env:"MONGODB_URI,required,notEmpty"`
	Database string `env:"MONGODB_DATABASE" envDefault:"proxyadmin"`
}

// Reseller holds the vendor API account. LOGIN and PASSWORD keep the names
// the account was originally provisioned with.
type Reseller struct {
	Login    string        `env:"LOGIN,required,notEmpty"`
	Password string        `env:"PASSWORD,unset,required,notEmpty"`
	BaseURL  string        `env:"RESELLER_BASE_URL" envDefault:"https://api.dataimpulse.com/reseller"`
	Timeout  time.Duration `env:"RESELLER_TIMEOUT" envDefault:"60s"`
	TokenTTL time.Duration `env:"RESELLER_TOKEN_TTL" envDefault:"23h"`
}

type Admin struct {
	Email        string `env:"EMAIL,required,notEmpty"`
	PasswordHash string `env:"PASSWORD_HASH,required,notEmpty"`
}

type Email struct {
	Provider string `env:"EMAIL_PROVIDER" envDefault:"none"` // sendgrid, postmark, smtp or none
	Sender   string `env:"EMAIL_SENDER"`

	SendGridAPIKey   string `env:"SENDGRID_API_KEY,unset"`
	PostmarkAPIToken string `env:"POSTMARK_API_TOKEN,unset"`
	SMTPHost         string `env:"SMTP_HOST"`
	SMTPPort         string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser         string `env:"SMTP_USER"`
	SMTPPassword     string `env:"SMTP_PASSWORD,unset"`
}

type Fulfillment struct {
	RequireAck bool          `env:"REQUIRE_ACK" envDefault:"true"`
	DraftTTL   time.Duration `env:"DRAFT_TTL" envDefault:"24h"`
}

// Load parses the process environment
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
