package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/cv-tailor/internal/db"
	"github.com/jonathan/cv-tailor/internal/secrets"
)

var sealCredentialCmd = &cobra.Command{
	Use:   "seal-credential",
	Short: "Encrypt a provider API key and store it as an LLM preference",
	Long: `Read an API key from stdin, encrypt it with CREDENTIAL_KEY and store it with the
provider preference of a user, an organization or the deployment default.

With --print the sealed value is printed instead, for use as llm.api_key_sealed in a
config file. --generate-key prints a fresh CREDENTIAL_KEY and exits.`,
	RunE: runSealCredential,
}

var (
	sealOwner        string
	sealOwnerID      string
	sealProvider     string
	sealModel        string
	sealEndpoint     string
	sealContextClass string
	sealImages       bool
	sealPrint        bool
	sealGenerateKey  bool
)

func init() {
	f := sealCredentialCmd.Flags()
	f.StringVar(&sealOwner, "owner", db.OwnerDefault, "Who the preference belongs to: user, org or default")
	f.StringVar(&sealOwnerID, "owner-id", "", "User or organization id (required unless --owner default)")
	f.StringVar(&sealProvider, "for-provider", "", "Provider the key belongs to")
	f.StringVar(&sealModel, "for-model", "", "Model to use with the key")
	f.StringVar(&sealEndpoint, "for-endpoint", "", "Base endpoint override")
	f.StringVar(&sealContextClass, "context-class", "", "full or constrained (default: provider default)")
	f.BoolVar(&sealImages, "images", false, "The model accepts image attachments")
	f.BoolVar(&sealPrint, "print", false, "Print the sealed key instead of storing it")
	f.BoolVar(&sealGenerateKey, "generate-key", false, "Print a new CREDENTIAL_KEY and exit")
	rootCmd.AddCommand(sealCredentialCmd)
}

func runSealCredential(cmd *cobra.Command, _ []string) error {
	if sealGenerateKey {
		key, err := secrets.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	}

	box, err := secrets.NewBoxFromEnv()
	if err != nil {
		return err
	}

	var sealed string
	apiKey, err := readSecretLine()
	if err != nil {
		return err
	}
	if apiKey != "" {
		if sealed, err = box.Seal(apiKey); err != nil {
			return err
		}
	}
	if sealPrint {
		if sealed == "" {
			return fmt.Errorf("no key on stdin")
		}
		fmt.Println(sealed)
		return nil
	}

	settings := db.LLMSettings{
		OwnerKind:        sealOwner,
		Provider:         strings.ToLower(strings.TrimSpace(sealProvider)),
		Model:            sealModel,
		BaseEndpoint:     sealEndpoint,
		CredentialSealed: sealed,
		ContextClass:     sealContextClass,
	}
	if cmd.Flags().Changed("images") {
		settings.SupportsImages = &sealImages
	}
	if sealOwner != db.OwnerDefault {
		id, err := uuid.Parse(sealOwnerID)
		if err != nil {
			return fmt.Errorf("--owner-id must be a uuid: %w", err)
		}
		settings.OwnerID = &id
	}

	ctx := cmd.Context()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.UpsertLLMSettings(ctx, settings); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Stored %s preference for %s (credential present: %t)\n", settings.Provider, sealOwner, sealed != "")
	return nil
}

// readSecretLine reads one line from stdin. An empty line stores a preference
// without a credential, which suits local providers.
func readSecretLine() (string, error) {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read key from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}
