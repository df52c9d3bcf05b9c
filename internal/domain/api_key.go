package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// Environment constants
const (
	EnvTest = "test"
	EnvLive = "live"
)

// Key type constants
const (
	KeyTypeServer  = "srv" // SERVER_API_KEY, protects the HTTP surface
	KeyTypeSigning = "sig" // API_SIGNING_SECRET, signs attendance requests
)

const (
	apiKeyLength = 32
	base62Chars  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var (
	validEnvironments = map[string]bool{
		EnvTest: true,
		EnvLive: true,
	}
	validKeyTypes = map[string]bool{
		KeyTypeServer:  true,
		KeyTypeSigning: true,
	}
)

// GenerateAPIKey returns a new key and its SHA-256 hash.
// Format: <keyType>_<env>_<random32>, e.g. srv_live_A1b2C3...
func GenerateAPIKey(keyType, env string) (string, string, error) {
	if !validKeyTypes[keyType] {
		return "", "", errors.New("invalid key type: must be 'srv' or 'sig'")
	}
	if !validEnvironments[env] {
		return "", "", errors.New("invalid environment: must be 'test' or 'live'")
	}

	randomPart, err := generateSecureRandomString(apiKeyLength)
	if err != nil {
		return "", "", err
	}

	plainKey := keyType + "_" + env + "_" + randomPart

	return plainKey, HashAPIKey(plainKey), nil
}

// HashAPIKey returns the hex SHA-256 of key
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// IsValidFormat reports whether key looks like a GenerateAPIKey result
func IsValidFormat(key string) bool {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 {
		return false
	}

	if !validKeyTypes[parts[0]] || !validEnvironments[parts[1]] {
		return false
	}

	randomPart := parts[2]
	if len(randomPart) != apiKeyLength {
		return false
	}

	for _, char := range randomPart {
		if !strings.ContainsRune(base62Chars, char) {
			return false
		}
	}

	return true
}

func generateSecureRandomString(length int) (string, error) {
	result := make([]byte, length)
	base62Len := big.NewInt(int64(len(base62Chars)))

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, base62Len)
		if err != nil {
			return "", err
		}
		result[i] = base62Chars[num.Int64()]
	}

	return string(result), nil
}
