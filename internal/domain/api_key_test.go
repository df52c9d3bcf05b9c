package domain

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		keyType string
		env     string
		wantErr bool
	}{
		{
			name:    "server test key",
			keyType: KeyTypeServer,
			env:     EnvTest,
		},
		{
			name:    "signing live key",
			keyType: KeyTypeSigning,
			env:     EnvLive,
		},
		{
			name:    "invalid environment",
			keyType: KeyTypeServer,
			env:     "invalid",
			wantErr: true,
		},
		{
			name:    "invalid key type",
			keyType: "sk",
			env:     EnvTest,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plainKey, hash, err := GenerateAPIKey(tt.keyType, tt.env)

			if tt.wantErr {
				if err == nil {
					t.Errorf("GenerateAPIKey() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("GenerateAPIKey() unexpected error: %v", err)
				return
			}

			expectedPrefix := tt.keyType + "_" + tt.env + "_"
			if !strings.HasPrefix(plainKey, expectedPrefix) {
				t.Errorf("plainKey = %s, want prefix %s", plainKey, expectedPrefix)
			}

			if len(plainKey) != len(expectedPrefix)+apiKeyLength {
				t.Errorf("plainKey length = %d, want %d", len(plainKey), len(expectedPrefix)+apiKeyLength)
			}

			if hash != HashAPIKey(plainKey) {
				t.Errorf("hash = %s, want %s", hash, HashAPIKey(plainKey))
			}

			if !IsValidFormat(plainKey) {
				t.Errorf("generated key has invalid format: %s", plainKey)
			}
		})
	}
}

func TestHashAPIKey(t *testing.T) {
	key := "srv_test_ABC123XYZ789"

	hash1 := HashAPIKey(key)
	hash2 := HashAPIKey(key)

	if hash1 != hash2 {
		t.Errorf("hash not deterministic: hash1=%s, hash2=%s", hash1, hash2)
	}

	if len(hash1) != 64 {
		t.Errorf("hash length = %d, want 64 (SHA256 hex)", len(hash1))
	}
}

func TestIsValidFormat(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"valid server key", "srv_test_" + strings.Repeat("A", apiKeyLength), true},
		{"valid signing key", "sig_live_" + strings.Repeat("z", apiKeyLength), true},
		{"unknown type", "pk_test_" + strings.Repeat("A", apiKeyLength), false},
		{"unknown environment", "srv_prod_" + strings.Repeat("A", apiKeyLength), false},
		{"short random part", "srv_test_ABC", false},
		{"invalid characters", "srv_test_" + strings.Repeat("-", apiKeyLength), false},
		{"missing parts", "srv_test", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidFormat(tt.key); got != tt.want {
				t.Errorf("IsValidFormat(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestGenerateAPIKey_Uniqueness(t *testing.T) {
	keys := make(map[string]bool)
	iterations := 1000

	for i := 0; i < iterations; i++ {
		plainKey, _, err := GenerateAPIKey(KeyTypeServer, EnvTest)
		if err != nil {
			t.Fatalf("GenerateAPIKey() failed: %v", err)
		}

		if keys[plainKey] {
			t.Errorf("duplicate key generated: %s", plainKey)
		}
		keys[plainKey] = true
	}
}
