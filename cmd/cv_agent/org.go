package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var orgCmd = &cobra.Command{
	Use:   "create-org",
	Short: "Create an organization",
	Long:  "Create an organization. With --llm-opt-in, the organization's provider preference applies to members who have none of their own.",
	RunE:  runCreateOrg,
}

var (
	orgName  string
	orgOptIn bool
)

func init() {
	orgCmd.Flags().StringVar(&orgName, "name", "", "Organization name (required)")
	orgCmd.Flags().BoolVar(&orgOptIn, "llm-opt-in", false, "Apply the organization's LLM preference to its members")
	_ = orgCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(orgCmd)
}

func runCreateOrg(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	id, err := database.CreateOrganization(ctx, orgName, orgOptIn)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
