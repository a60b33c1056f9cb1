package main

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/cv-tailor/internal/observability"
	"github.com/jonathan/cv-tailor/internal/types"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Tailor sections of a stored CV for a job description",
	Long: `Run one generation against a document in the database, as the given user.

When the user's provider runs on their device, the command prints the deferred
contract. Run the prompt locally, then call generate again with --result pointing
at the model output to merge it.`,
	RunE: runGenerate,
}

var (
	generateUser         string
	generateDocument     string
	generateSections     []string
	generateContextFile  string
	generateContextURL   string
	generateInstructions string
	generateResultFile   string
	generateImage        string
	generateOut          string
)

// errGenerationFailed makes the process exit non-zero after printing a failed result.
var errGenerationFailed = errors.New("generation failed")

func init() {
	generateCmd.Flags().StringVarP(&generateUser, "user", "u", "", "User id (required)")
	generateCmd.Flags().StringVarP(&generateDocument, "document", "d", "", "Document id (required)")
	generateCmd.Flags().StringSliceVarP(&generateSections, "sections", "s", nil, "Sections to tailor, e.g. professionalSummary,workExperience (required)")
	generateCmd.Flags().StringVar(&generateContextFile, "context", "", "File with the job description, or - for stdin")
	generateCmd.Flags().StringVar(&generateContextURL, "context-url", "", "URL of the job posting")
	generateCmd.Flags().StringVar(&generateInstructions, "instructions", "", "Extra instructions for the model")
	generateCmd.Flags().StringVar(&generateResultFile, "result", "", "File with device-generated model output to merge (second round trip)")
	generateCmd.Flags().StringVar(&generateImage, "image", "", "Image to attach to the prompt")
	generateCmd.Flags().StringVarP(&generateOut, "out", "o", "", "Write the result JSON here instead of stdout")

	_ = generateCmd.MarkFlagRequired("user")
	_ = generateCmd.MarkFlagRequired("document")
	_ = generateCmd.MarkFlagRequired("sections")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	sections, err := parseSections(generateSections)
	if err != nil {
		return err
	}
	contextText, err := readText(generateContextFile)
	if err != nil {
		return err
	}
	resultText, err := readText(generateResultFile)
	if err != nil {
		return err
	}

	req := types.GenerationRequest{
		DocumentRef:         generateDocument,
		TargetSections:      sections,
		ContextText:         contextText,
		ContextRef:          generateContextURL,
		CustomInstructions:  generateInstructions,
		ExecutionResultText: resultText,
	}
	if generateImage != "" {
		if req.Image, err = readImage(generateImage); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	controller, err := newController(database)
	if err != nil {
		return err
	}

	result, err := controller.Generate(ctx, generateUser, req)
	if err != nil {
		return err
	}
	if err := writeJSON(cmd.OutOrStdout(), generateOut, result); err != nil {
		return err
	}
	if appCfg.Verbose {
		observability.NewPrinter(cmd.ErrOrStderr()).PrintResult(result)
	}

	switch result.Status {
	case types.StatusFailed:
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", result.ErrorKind, result.ErrorMessage)
		if result.ErrorHint != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "hint: %s\n", result.ErrorHint)
		}
		return errGenerationFailed
	case types.StatusDeferred:
		fmt.Fprintf(cmd.ErrOrStderr(), "Inference deferred to the device (model %s). Re-run with --result.\n", result.Deferred.ModelID)
	default:
		if result.Outcome == types.OutcomeMergeNoOp {
			fmt.Fprintln(cmd.ErrOrStderr(), "Model output matched nothing in the document; nothing was saved.")
		}
	}
	return nil
}

func readImage(path string) (*types.ImageAttachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%s is not an image (%s)", path, mimeType)
	}
	return &types.ImageAttachment{MIMEType: mimeType, Data: data}, nil
}
