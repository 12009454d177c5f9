package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openpa/chartcheck/internal/core/auth"
	"github.com/openpa/chartcheck/internal/core/config"
	"github.com/openpa/chartcheck/internal/core/db"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Provision an API key for a tenant",
	Long: `Generates an API key signed with the HMAC secret from CC_HMAC_SECRET
and stores its hash. The plaintext key is printed once and never stored.`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().String("tenant", "", "tenant ID to issue the key for")
	_ = keygenCmd.MarkFlagRequired("tenant")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	tenantID, _ := cmd.Flags().GetString("tenant")

	if dbURL == "" {
		return fmt.Errorf("--db-url required")
	}
	database, err := db.Open(dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set CC_HMAC_SECRET environment variable)")
	}

	// Sign with any configured secret; rotation keeps old secrets valid
	var secretID string
	var secret []byte
	for id, s := range secrets {
		secretID, secret = id, s
		break
	}

	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return fmt.Errorf("failed to generate key material: %w", err)
	}

	apiKey := auth.FormatAPIKey(secretID, hex.EncodeToString(random))
	keyHash := auth.ComputeHMAC(secret, apiKey)

	apiKeyID := uuid.Must(uuid.NewV7()).String()
	_, err = queries.Exec("insert-api-key",
		apiKeyID, tenantID, keyHash,
		time.Now().UTC().Truncate(time.Second).Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}

	fmt.Printf("api_key_id: %s\ntenant_id:  %s\napi_key:    %s\n", apiKeyID, tenantID, apiKey)
	fmt.Println("store this key now; it cannot be recovered")
	return nil
}
