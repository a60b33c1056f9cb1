package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/cv-tailor/internal/generation"
	"github.com/jonathan/cv-tailor/internal/types"
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the prompt a generation would send, without calling a model",
	RunE:  runPrompt,
}

var (
	promptDocFile      string
	promptSections     []string
	promptContextFile  string
	promptInstructions string
	promptClass        string
)

func init() {
	promptCmd.Flags().StringVar(&promptDocFile, "doc", "", "Path to a CV document JSON file (required)")
	promptCmd.Flags().StringSliceVarP(&promptSections, "sections", "s", nil, "Sections to tailor (required)")
	promptCmd.Flags().StringVar(&promptContextFile, "context", "", "File with the job description, or - for stdin (required)")
	promptCmd.Flags().StringVar(&promptInstructions, "instructions", "", "Extra instructions for the model")
	promptCmd.Flags().StringVar(&promptClass, "class", string(types.ContextFull), "Context class: full or constrained")

	_ = promptCmd.MarkFlagRequired("doc")
	_ = promptCmd.MarkFlagRequired("sections")
	_ = promptCmd.MarkFlagRequired("context")
	rootCmd.AddCommand(promptCmd)
}

func runPrompt(cmd *cobra.Command, _ []string) error {
	class := types.ContextClass(promptClass)
	if class != types.ContextFull && class != types.ContextConstrained {
		return fmt.Errorf("--class must be full or constrained, got %q", promptClass)
	}
	sections, err := parseSections(promptSections)
	if err != nil {
		return err
	}
	doc, err := readDocument(promptDocFile)
	if err != nil {
		return err
	}
	contextText, err := readText(promptContextFile)
	if err != nil {
		return err
	}

	prompt, err := generation.BuildPrompt(generation.PromptInput{
		Document:     doc,
		Sections:     types.NewSectionSet(sections...),
		Context:      contextText,
		Instructions: promptInstructions,
		Class:        class,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), prompt)
	return err
}
