package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jmcleod/opweb/document"
	"github.com/jmcleod/opweb/internal/config"
	"github.com/jmcleod/opweb/storage"
)

type verifyResult struct {
	Source string         `json:"source"`
	Format string         `json:"format"` // "encrypted", "plaintext", "missing", "unreadable"
	Valid  bool           `json:"valid"`
	Counts map[string]int `json:"counts,omitempty"`
	Title  string         `json:"title,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// verifyDocument decodes the stored document without modifying it.
func verifyDocument(repo storage.Repository, secret []byte, allowPlaintext bool) verifyResult {
	var result verifyResult
	store, err := document.New(repo, secret,
		document.WithPlaintextFallback(allowPlaintext),
		document.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		result.Format = "unreadable"
		result.Error = err.Error()
		return result
	}
	defer store.Close()

	tree, sealed, err := store.Inspect()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		result.Format = "missing"
		result.Error = "no document stored yet"
		return result
	case err != nil:
		result.Format = "unreadable"
		result.Error = err.Error()
		return result
	}

	result.Valid = true
	result.Format = "plaintext"
	if sealed {
		result.Format = "encrypted"
	}
	result.Counts = tree.Counts()
	result.Title = tree.Settings.Title
	return result
}

// verifySource opens the configured backend read-only and verifies its
// document. The error is non-nil only when the backend cannot be opened.
func verifySource(ctx context.Context, cfg config.Config) (verifyResult, error) {
	source := cfg.Backend
	if cfg.Backend == config.BackendFile || cfg.Backend == config.BackendBbolt {
		source = cfg.Backend + ":" + cfg.DataFile
	}

	repo, closeRepo, err := openReadOnlyRepository(ctx, cfg)
	if errors.Is(err, storage.ErrNotFound) {
		return verifyResult{Source: source, Format: "missing", Error: "no data file"}, nil
	}
	if err != nil {
		return verifyResult{}, err
	}
	defer closeRepo()

	result := verifyDocument(repo, []byte(cfg.DataSecret), cfg.AllowPlaintext)
	result.Source = source
	return result, nil
}

func printHumanResult(w io.Writer, result verifyResult) {
	fmt.Fprintf(w, "Data verification: %s\n", result.Source)
	fmt.Fprintf(w, "Format: %s\n", result.Format)
	if result.Title != "" {
		fmt.Fprintf(w, "Title:  %s\n", result.Title)
	}
	if len(result.Counts) > 0 {
		fmt.Fprintln(w)
		names := make([]string, 0, len(result.Counts))
		for name := range result.Counts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %-16s %d\n", name, result.Counts[name])
		}
	}
	fmt.Fprintln(w)
	if result.Valid {
		fmt.Fprintln(w, "Result: VALID")
	} else {
		fmt.Fprintf(w, "Result: INVALID (%s)\n", result.Error)
	}
}

func printJSONResult(w io.Writer, result verifyResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

var verifyJSONOutput bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Decrypt the data store and report collection counts",
	Long: `Opens the configured backend with OPWEB_DATA_SECRET, checks the integrity
of the stored document and prints the number of records per collection.
The document is never written. Exits 1 when the document cannot be read.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	dataCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyJSONOutput, "json", false, "Output results as JSON")
	verifyCmd.Flags().StringVar(&dataFile, "data-file", "", "Path of the data file (OPWEB_DATA_FILE)")
	verifyCmd.Flags().StringVar(&backend, "backend", "", "Storage backend (OPWEB_BACKEND)")
	verifyCmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (OPWEB_DATABASE_URL)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := serverConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	result, err := verifySource(cmd.Context(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if verifyJSONOutput {
		if err := printJSONResult(os.Stdout, result); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
	} else {
		printHumanResult(os.Stdout, result)
	}

	if !result.Valid {
		os.Exit(1)
	}
	return nil
}
