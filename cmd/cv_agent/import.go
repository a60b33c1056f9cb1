package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <document.json>",
	Short: "Store a CV document for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's documents and variants",
	RunE:  runList,
}

var docUser string

func init() {
	importCmd.Flags().StringVarP(&docUser, "user", "u", "", "User id (required)")
	listCmd.Flags().StringVarP(&docUser, "user", "u", "", "User id (required)")
	_ = importCmd.MarkFlagRequired("user")
	_ = listCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(importCmd, listCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	doc, err := readDocument(args[0])
	if err != nil {
		return err
	}
	if doc.ID != "" {
		if _, err := uuid.Parse(doc.ID); err != nil {
			return fmt.Errorf("document id %q is not a uuid; remove it to have one generated", doc.ID)
		}
	}

	ctx := cmd.Context()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	stored, err := database.InsertDocument(ctx, docUser, doc)
	if err != nil {
		return err
	}
	fmt.Println(stored.ID)
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	docs, err := database.ListDocuments(ctx, docUser)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tTITLE\tUPDATED")
	for _, d := range docs {
		source := "-"
		if d.SourceDocumentID != nil {
			source = d.SourceDocumentID.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, source, d.Title, d.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

// optionalUUID parses raw when set.
func optionalUUID(raw, flag string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a uuid: %w", flag, err)
	}
	return &id, nil
}
