package config

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	ServerAddr     string
	SigningKey     []byte
	AdminTokenHash []byte
	AllowedOrigins []string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

// NewConfig validates the startup parameters. The operator token is never
// kept in memory in the clear: only its bcrypt hash is stored, and the
// admin login endpoint verifies against that.
func NewConfig(serverAddr, adminToken, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if adminToken == "" {
		return nil, fmt.Errorf("admin token cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	tokenHash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin token: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AdminTokenHash: tokenHash,
		AllowedOrigins: allowedOrigins,
	}, nil
}
