package vault

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/hashicorp/vault/api"
)

// Client wraps the HashiCorp Vault API for the transit operations the
// encrypted-value adapter needs: encrypt, decrypt, and keyed HMAC.
type Client struct {
	client       *api.Client
	transitMount string
}

// Config holds Vault configuration
type Config struct {
	Address      string
	Token        string
	TransitMount string
}

// NewClient creates a new Vault client and ensures the transit engine is mounted
func NewClient(cfg *Config) (*Client, error) {
	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Address

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	c := &Client{
		client:       client,
		transitMount: cfg.TransitMount,
	}

	if err := c.initTransitEngine(); err != nil {
		return nil, fmt.Errorf("failed to initialize transit engine: %w", err)
	}

	return c, nil
}

// initTransitEngine enables the transit secrets engine if not already mounted
func (c *Client) initTransitEngine() error {
	ctx := context.Background()

	mounts, err := c.client.Sys().ListMountsWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to list mounts: %w", err)
	}

	if _, exists := mounts[c.transitMount+"/"]; exists {
		return nil
	}

	err = c.client.Sys().MountWithContext(ctx, c.transitMount, &api.MountInput{
		Type:        "transit",
		Description: "Transit encryption for PatentVault",
	})
	if err != nil {
		return fmt.Errorf("failed to mount transit engine: %w", err)
	}

	return nil
}

// CreateKey creates a transit key of the given type if it does not exist
func (c *Client) CreateKey(keyName, keyType string) error {
	ctx := context.Background()

	path := fmt.Sprintf("%s/keys/%s", c.transitMount, keyName)
	_, err := c.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"type":       keyType,
		"exportable": false,
	})
	if err != nil {
		return fmt.Errorf("failed to create key %s: %w", keyName, err)
	}

	return nil
}

// Encrypt encrypts plaintext with the named transit key
func (c *Client) Encrypt(keyName string, plaintext []byte) (string, error) {
	ctx := context.Background()

	path := fmt.Sprintf("%s/encrypt/%s", c.transitMount, keyName)
	secret, err := c.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encrypt: %w", err)
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return "", fmt.Errorf("invalid ciphertext response")
	}

	return ciphertext, nil
}

// Decrypt decrypts a transit ciphertext with the named key
func (c *Client) Decrypt(keyName, ciphertext string) ([]byte, error) {
	ctx := context.Background()

	path := fmt.Sprintf("%s/decrypt/%s", c.transitMount, keyName)
	secret, err := c.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	encoded, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid plaintext response")
	}

	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode plaintext: %w", err)
	}

	return plaintext, nil
}

// HMAC computes a keyed HMAC-SHA256 over input with the named transit key
func (c *Client) HMAC(keyName string, input []byte) (string, error) {
	ctx := context.Background()

	path := fmt.Sprintf("%s/hmac/%s/sha2-256", c.transitMount, keyName)
	secret, err := c.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"input": base64.StdEncoding.EncodeToString(input),
	})
	if err != nil {
		return "", fmt.Errorf("failed to compute hmac: %w", err)
	}

	out, ok := secret.Data["hmac"].(string)
	if !ok {
		return "", fmt.Errorf("invalid hmac response")
	}

	return out, nil
}

// Health checks that Vault is initialized and unsealed
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if !health.Initialized {
		return fmt.Errorf("vault is not initialized")
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}
