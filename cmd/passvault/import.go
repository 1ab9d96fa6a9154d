package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/passvault/internal/cli"
	"github.com/forest6511/passvault/pkg/importer"
)

// maxImportSize bounds export files read into memory.
const maxImportSize = 50 * 1024 * 1024

var (
	importDryRun bool
	importOnly   []string
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Show what would be imported without saving")
	importCmd.Flags().StringArrayVar(&importOnly, "only", nil, "Import only items whose name matches (glob, can be repeated)")
}

// importCmd imports logins from another password manager's export.
var importCmd = &cobra.Command{
	Use:   "import [source] [file]",
	Short: "Import logins from another password manager",
	Long: `Import logins from a password manager export.

Supported sources:
  lastpass    LastPass CSV export
  1password   1Password CSV export
  bitwarden   Bitwarden unencrypted JSON export

Only logins with a password and a web URL are imported. Importing the
same export twice updates the entries instead of duplicating them.

Example:
  passvault import bitwarden ~/Downloads/bitwarden_export.json --dry-run
  passvault import lastpass export.csv --only "Git*" --only "Bank of Example"`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: importer.ValidSources(),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := importer.Source(strings.ToLower(args[0]))
		parser, err := importer.GetParser(source)
		if err != nil {
			return fmt.Errorf("invalid source '%s': must be one of %v", args[0], importer.ValidSources())
		}

		data, err := readImportFile(args[1])
		if err != nil {
			return err
		}

		result, err := parser.Parse(data)
		if err != nil {
			return fmt.Errorf("failed to parse %s file: %w", source, err)
		}

		for _, warning := range result.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
		}
		for _, skipped := range result.Skipped {
			fmt.Fprintf(os.Stderr, "Skipped: %s (%s)\n", skipped.OriginalName, skipped.Reason)
		}

		if len(result.Entries) == 0 {
			fmt.Println("No logins found in file")
			return nil
		}

		entries := result.Entries
		if len(importOnly) > 0 {
			entries, err = filterEntries(entries, importOnly)
			if err != nil {
				return err
			}
		}
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Name < entries[j].Name
		})

		if importDryRun {
			for _, e := range entries {
				fmt.Printf("[dry-run] Would import: %s (%s, %s)\n",
					e.Name, e.Credential.Username, strings.Join(e.Credential.Origins, ","))
			}
			fmt.Printf("\n%d logins would be imported\n", len(entries))
			return nil
		}

		ctx := cmd.Context()
		if err := ensureUnlocked(ctx); err != nil {
			return err
		}

		saved, rejected, err := importer.Save(ctx, v, entries)
		for _, r := range rejected {
			fmt.Fprintf(os.Stderr, "Rejected: %s (%s)\n", r.OriginalName, r.Reason)
		}
		fmt.Printf("\nImport summary:\n")
		fmt.Printf("  Imported: %d\n", saved)
		if n := len(result.Skipped); n > 0 {
			fmt.Printf("  Skipped:  %d\n", n)
		}
		if n := len(rejected); n > 0 {
			fmt.Printf("  Rejected: %d\n", n)
		}
		return err
	},
}

// readImportFile reads and validates an export file.
func readImportFile(filePath string) ([]byte, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to access file: %w", err)
	}

	// Security check: reject symlinks
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("security: refusing to read symlink: %s", absPath)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	if info.Size() > maxImportSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxImportSize)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// filterEntries keeps entries whose name matches any of patterns.
func filterEntries(entries []importer.Entry, patterns []string) ([]importer.Entry, error) {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	matched, err := cli.ExpandPatterns(patterns, names)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]bool, len(matched))
	for _, n := range matched {
		keep[n] = true
	}

	var filtered []importer.Entry
	for _, e := range entries {
		if keep[e.Name] {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}
