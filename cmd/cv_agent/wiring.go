package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jonathan/cv-tailor/internal/db"
	"github.com/jonathan/cv-tailor/internal/fetch"
	"github.com/jonathan/cv-tailor/internal/generation"
	"github.com/jonathan/cv-tailor/internal/llm"
	"github.com/jonathan/cv-tailor/internal/secrets"
	"github.com/jonathan/cv-tailor/internal/tenancy"
	"github.com/jonathan/cv-tailor/internal/types"
)

// maxInputBytes bounds stdin reads.
const maxInputBytes = 16 << 20

func openDB(ctx context.Context) (*db.DB, error) {
	if appCfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL is required (set DATABASE_URL, database_url in the config file, or --db-url)")
	}
	database, err := db.Connect(ctx, appCfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

// optionalBox returns the credential box when a key is configured. Without one,
// sealed credentials fail at dispatch with a configuration error.
func optionalBox() (*secrets.Box, error) {
	if os.Getenv(secrets.KeyEnv) == "" {
		return nil, nil
	}
	return secrets.NewBoxFromEnv()
}

// newController wires the generation controller to the database-backed stores.
func newController(database *db.DB) (*generation.Controller, error) {
	box, err := optionalBox()
	if err != nil {
		return nil, err
	}

	backendOpts := []llm.Option{llm.WithTimeouts(appCfg.Timeouts())}
	if box != nil {
		backendOpts = append(backendOpts, llm.WithOpener(box))
	}

	fetchOpts := fetch.DefaultOptions()
	fetchOpts.UseBrowser = appCfg.UseBrowser

	resolver := tenancy.NewResolver(database, appCfg.DefaultTier(), logger)
	return generation.NewController(database, resolver,
		generation.WithFetcher(fetch.NewFetcher(fetchOpts, logger)),
		generation.WithBackendOptions(backendOpts...),
		generation.WithLogger(logger),
	), nil
}

func parseSections(raw []string) ([]types.SectionID, error) {
	var out []types.SectionID
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			s, err := types.ParseSection(part)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one section is required")
	}
	return out, nil
}

func readDocument(path string) (*types.CvDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	var doc types.CvDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document %s: %w", path, err)
	}
	return &doc, nil
}

// readText returns the file contents, or stdin when path is "-".
func readText(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(os.Stdin, maxInputBytes))
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// writeJSON writes v to path, or to w when path is empty or "-".
func writeJSON(w io.Writer, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	data = append(data, '\n')
	if path == "" || path == "-" {
		_, err = w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
