package utils

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type DBConfig struct {
	Driver   string `env:"DB_DRIVER,default=mysql"`
	User     string `env:"DBUSER"`
	Password string `env:"DBPASS"`
	Host     string `env:"DBHOST,default=127.0.0.1:3306"`
	Name     string `env:"DBNAME"`
	Path     string `env:"DB_PATH,default=securebidz.db"`
}

type SMTPConfig struct {
	Host     string        `env:"SMTP_HOST"`
	Port     int           `env:"SMTP_PORT,default=587"`
	Username string        `env:"SMTP_USER"`
	Password string        `env:"SMTP_PASS"`
	From     string        `env:"MAIL_FROM,default=SecureBidz <no-reply@securebidz.local>"`
	Timeout  time.Duration `env:"SMTP_TIMEOUT,default=10s"`
}

type Config struct {
	Env                  string        `env:"ENV,default=dev"`
	Port                 string        `env:"PORT,default=5005"`
	AllowedOrigin        string        `env:"ALLOWED_ORIGIN,default=http://localhost:5173"`
	TrustedProxies       []string      `env:"TRUSTED_PROXIES"`
	JWTSecretKey         string        `env:"JWT_SECRET_KEY,required"`
	JWTSecretKeyOld      string        `env:"JWT_SECRET_KEY_OLD"`
	TokenTTL             time.Duration `env:"TOKEN_TTL,default=168h"`
	AuctionDuration      time.Duration `env:"AUCTION_DURATION,default=24h"`
	AuctionSweepInterval time.Duration `env:"AUCTION_SWEEP_INTERVAL,default=1m"`
	LogFile              string        `env:"LOG_FILE,default=logs.txt"`
	LogLevel             string        `env:"LOG_LEVEL,default=info"`
	DB                   DBConfig
	SMTP                 SMTPConfig
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	config := &Config{}
	if err := envconfig.Process(ctx, config); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}
	return config, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod"
}

// JWTSecrets decodes the configured keys. Keys are base64 encoded as in
// the .env files we ship; raw strings are accepted too.
func (c *Config) JWTSecrets() ([]byte, []byte) {
	return decodeSecret(c.JWTSecretKey), decodeSecret(c.JWTSecretKeyOld)
}

func decodeSecret(s string) []byte {
	if s == "" {
		return nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) >= 16 {
		return b
	}
	return []byte(s)
}
