package main

import (
	"fmt"
	"os"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// Usage: genkey [server|signing] [live|test]
func main() {
	keyType := domain.KeyTypeServer
	variable := "SERVER_API_KEY"
	env := domain.EnvLive

	if len(os.Args) > 1 && os.Args[1] == "signing" {
		keyType = domain.KeyTypeSigning
		variable = "API_SIGNING_SECRET"
	}
	if len(os.Args) > 2 && os.Args[2] == "test" {
		env = domain.EnvTest
	}

	key, hash, err := domain.GenerateAPIKey(keyType, env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	fmt.Printf("%s=%s\nHASH=%s\n", variable, key, hash)
}
