package utils

import (
	"context"
	"encoding/base64"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123")))
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,127.0.0.1")

	config, err := LoadConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5005", config.Port)
	assert.Equal(t, "sqlite", config.DB.Driver)
	assert.Equal(t, time.Hour, config.TokenTTL)
	assert.Equal(t, time.Minute, config.AuctionSweepInterval)
	assert.False(t, config.IsProduction())
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, config.TrustedProxies)

	secret, old := config.JWTSecrets()
	assert.Equal(t, []byte("0123456789abcdef0123"), secret)
	assert.Nil(t, old)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET_KEY"))
	_, err := LoadConfig(context.Background())
	assert.Error(t, err)
}
