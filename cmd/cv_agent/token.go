package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/cv-tailor/internal/config"
	"github.com/jonathan/cv-tailor/internal/server"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token for a user, creating the user if needed",
	RunE:  runToken,
}

var (
	tokenEmail string
	tokenOrgID string
)

func init() {
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "User email (required)")
	tokenCmd.Flags().StringVar(&tokenOrgID, "org-id", "", "Organization to attach the user to")
	_ = tokenCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	jwtConfig, err := config.NewJWTConfig(os.Getenv)
	if err != nil {
		return err
	}
	orgID, err := optionalUUID(tokenOrgID, "--org-id")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	userID, err := database.FindOrCreateUser(ctx, tokenEmail, orgID)
	if err != nil {
		return err
	}
	token, err := server.NewJWTService(jwtConfig).GenerateToken(userID)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "user %s\n", userID)
	fmt.Println(token)
	return nil
}
