package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/passbi/connscan/internal/middleware"
)

func main() {
	env := flag.String("env", "test", "Environment: test or live")
	flag.Parse()

	if *env != "test" && *env != "live" {
		fmt.Println("Error: env must be 'test' or 'live'")
		os.Exit(1)
	}

	key, err := middleware.GenerateAPIKey(*env)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("═══════════════════════════════════════════════════")
	fmt.Println("🔑 API Key Generated")
	fmt.Println("═══════════════════════════════════════════════════")
	fmt.Printf("Environment:  %s\n", *env)
	fmt.Printf("\nAPI Key (show ONLY ONCE):\n%s\n", key)
	fmt.Printf("\nHash (logged by the server):\n%s\n", middleware.HashAPIKey(key))
	fmt.Printf("\nPrefix (for display):\n%s\n", middleware.KeyPrefix(key))
	fmt.Println("═══════════════════════════════════════════════════")
	fmt.Println("\n⚠️  Save the API key now! You won't be able to see it again.")
	fmt.Println("\nTo enable it, append it to API_KEYS (comma separated):")
	fmt.Printf("AUTH_ENABLED=true\nAPI_KEYS=%s\n", key)
	fmt.Println("═══════════════════════════════════════════════════")
}
