package middleware

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClientContext identifies the caller of an authenticated request
type ClientContext struct {
	KeyPrefix string // for display and per-client limits, never the full key
	KeyHash   string
}

// HashAPIKey returns the hex sha256 of key
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// KeyPrefix returns the part of key shown in logs
func KeyPrefix(key string) string {
	if len(key) <= 12 {
		return key
	}
	return key[:12] + "..."
}

// GenerateAPIKey returns a new key of the form pk_<env>_<random>_<checksum>
func GenerateAPIKey(env string) (string, error) {
	// Generate 32 random bytes
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	randomStr := hex.EncodeToString(randomBytes)

	// Checksum is the first 2 bytes of the hash
	checksumBytes := sha256.Sum256([]byte(randomStr))
	checksum := hex.EncodeToString(checksumBytes[:2])

	return fmt.Sprintf("pk_%s_%s_%s", env, randomStr, checksum), nil
}

// AuthMiddleware accepts requests bearing one of keys. Only the key hashes
// are kept in memory.
func AuthMiddleware(keys []string) fiber.Handler {
	known := make(map[string]string, len(keys))
	for _, k := range keys {
		known[HashAPIKey(k)] = KeyPrefix(k)
	}

	return func(c *fiber.Ctx) error {
		// Extract API key from Authorization header
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(401).JSON(fiber.Map{
				"error":   "missing_api_key",
				"message": "API key is required. Use Authorization: Bearer YOUR_API_KEY",
			})
		}

		// Format: "Bearer pk_live_..."
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return c.Status(401).JSON(fiber.Map{
				"error":   "invalid_auth_format",
				"message": "Authorization header must be in format: Bearer YOUR_API_KEY",
			})
		}

		apiKey := strings.TrimSpace(parts[1])

		// Validate basic format
		if !strings.HasPrefix(apiKey, "pk_") {
			return c.Status(401).JSON(fiber.Map{
				"error":   "invalid_api_key_format",
				"message": "API key must start with pk_",
			})
		}

		keyHash := HashAPIKey(apiKey)
		prefix, ok := known[keyHash]
		if !ok {
			return c.Status(401).JSON(fiber.Map{
				"error":   "invalid_api_key",
				"message": "The provided API key is invalid or has been revoked",
			})
		}

		c.Locals("client", &ClientContext{KeyPrefix: prefix, KeyHash: keyHash})
		return c.Next()
	}
}

// ClientKey returns the rate limiting identity of a request: the API key
// hash when authenticated, the remote IP otherwise
func ClientKey(c *fiber.Ctx) string {
	if client, ok := c.Locals("client").(*ClientContext); ok {
		return "key:" + client.KeyHash
	}
	return "ip:" + c.IP()
}
