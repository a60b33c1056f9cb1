package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/cv-tailor/internal/generation"
	"github.com/jonathan/cv-tailor/internal/merge"
	"github.com/jonathan/cv-tailor/internal/observability"
	"github.com/jonathan/cv-tailor/internal/types"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge saved model output into a CV document file",
	Long:  "Normalize raw model output, validate it and reconcile it with a CV document file. Nothing is stored; the merged document is written to --out.",
	RunE:  runMerge,
}

var (
	mergeDocFile    string
	mergeOutputFile string
	mergeSections   []string
	mergeOut        string
	mergeReport     bool
)

func init() {
	mergeCmd.Flags().StringVar(&mergeDocFile, "doc", "", "Path to a CV document JSON file (required)")
	mergeCmd.Flags().StringVar(&mergeOutputFile, "output", "", "File with raw model output, or - for stdin (required)")
	mergeCmd.Flags().StringSliceVarP(&mergeSections, "sections", "s", nil, "Sections the output may change (required)")
	mergeCmd.Flags().StringVarP(&mergeOut, "out", "o", "", "Write the merged document here instead of stdout")
	mergeCmd.Flags().BoolVar(&mergeReport, "report", false, "Write the full result, including the merge report, instead of the document")

	_ = mergeCmd.MarkFlagRequired("doc")
	_ = mergeCmd.MarkFlagRequired("output")
	_ = mergeCmd.MarkFlagRequired("sections")
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, _ []string) error {
	sections, err := parseSections(mergeSections)
	if err != nil {
		return err
	}
	doc, err := readDocument(mergeDocFile)
	if err != nil {
		return err
	}
	raw, err := readText(mergeOutputFile)
	if err != nil {
		return err
	}

	result, err := generation.Reconcile(merge.NewEngine(logger), logger, doc, raw, types.NewSectionSet(sections...))
	if err != nil {
		return err
	}
	if appCfg.Verbose {
		observability.NewPrinter(cmd.ErrOrStderr()).PrintResult(result)
	}
	if result.Status == types.StatusFailed {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", result.ErrorKind, result.ErrorMessage)
		return errGenerationFailed
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "matched %d entities, discarded %d\n", len(result.Merge.Matched), len(result.Merge.Discarded))

	if mergeReport {
		return writeJSON(cmd.OutOrStdout(), mergeOut, result)
	}
	return writeJSON(cmd.OutOrStdout(), mergeOut, result.Document)
}
