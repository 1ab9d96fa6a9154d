package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/passvault/internal/config"
	"github.com/forest6511/passvault/pkg/security"
	"github.com/forest6511/passvault/pkg/store"
)

// Health command flags
var (
	healthVerbose bool
	healthJSON    bool
	healthLimit   int
)

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().BoolVarP(&healthVerbose, "verbose", "v", false, "Show suggestions and storage details")
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Output in JSON format")
	healthCmd.Flags().IntVar(&healthLimit, "limit", 5, "Maximum issues shown per type (0 for all)")
}

// healthOutput is the full health result, including storage checks.
type healthOutput struct {
	*security.Report
	Storage storageHealth `json:"storage"`
}

type storageHealth struct {
	Backend       string   `json:"backend"`
	Integrity     []string `json:"integrity_problems,omitempty"`
	DiskUsedPct   int      `json:"disk_used_pct,omitempty"`
	DiskAvailable uint64   `json:"disk_available_bytes,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// healthCmd reports on credential hygiene and storage integrity.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Analyze credential health",
	Long: `Analyze stored credentials and the vault storage.

The health score is calculated from:
  - Password Strength (0-40): Average length class of passwords
  - Uniqueness (0-40): Percentage of credentials with a unique password
  - Transport (0-20): Percentage of credentials bound only to https origins

Example:
  passvault health              # Show score and top issues
  passvault health --verbose    # Include suggestions and storage details
  passvault health --json       # Output in JSON format`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureUnlocked(ctx); err != nil {
			return err
		}

		creds, err := v.ListCredentials(ctx)
		if err != nil {
			return fmt.Errorf("failed to list credentials: %w", err)
		}

		calc, err := security.NewCalculator(healthLimit)
		if err != nil {
			return err
		}
		defer calc.Close()

		out := healthOutput{
			Report:  calc.Analyze(creds),
			Storage: checkStorage(ctx),
		}

		if healthJSON {
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		printHealth(out, healthVerbose)
		return nil
	},
}

func checkStorage(ctx context.Context) storageHealth {
	h := storageHealth{Backend: cfg.Backend}

	if db, ok := st.(*store.SQLite); ok {
		problems, err := db.Check(ctx)
		if err != nil {
			h.Warnings = append(h.Warnings, err.Error())
		}
		h.Integrity = problems
	}

	if cfg.Backend != config.BackendMemory {
		info, err := store.CheckDiskSpace(cfg.DataDir)
		if err != nil {
			h.Warnings = append(h.Warnings, err.Error())
		} else {
			h.DiskUsedPct = info.UsedPct
			h.DiskAvailable = info.Available
		}
	}
	return h
}

func printHealth(out healthOutput, verbose bool) {
	r := out.Report

	var rating string
	switch {
	case r.Overall >= 80:
		rating = "Good"
	case r.Overall >= 60:
		rating = "Fair"
	default:
		rating = "Needs Attention"
	}

	fmt.Printf("Health Score: %d/100 (%s), %d credentials\n\n", r.Overall, rating, r.Credentials)

	fmt.Println("Components:")
	fmt.Printf("  Password Strength: %d/40 %s\n", r.Components.Strength, progressBar(r.Components.Strength, 40))
	fmt.Printf("  Uniqueness:        %d/40 %s\n", r.Components.Uniqueness, progressBar(r.Components.Uniqueness, 40))
	fmt.Printf("  Transport:         %d/20 %s\n", r.Components.Transport, progressBar(r.Components.Transport, 20))
	fmt.Println()

	if len(r.Issues) > 0 {
		fmt.Printf("Issues (%d):\n", len(r.Issues))
		for i, issue := range r.Issues {
			ids := issue.ID
			if len(issue.IDs) > 0 {
				ids = strings.Join(issue.IDs, ", ")
			}
			fmt.Printf("  %d. [%s] %s: %s\n", i+1, strings.ToUpper(string(issue.Type)), ids, issue.Description)
		}
		if r.Limited {
			fmt.Println("  (more issues hidden; use --limit 0 to show all)")
		}
		fmt.Println()
	}

	if verbose && len(r.Suggestions) > 0 {
		fmt.Println("Suggestions:")
		for _, s := range r.Suggestions {
			fmt.Printf("  - %s\n", s)
		}
		fmt.Println()
	}

	s := out.Storage
	if len(s.Integrity) > 0 {
		fmt.Println("Storage integrity problems:")
		for _, p := range s.Integrity {
			fmt.Printf("  - %s\n", p)
		}
	}
	if verbose {
		fmt.Printf("Storage: %s backend", s.Backend)
		if s.DiskAvailable > 0 {
			fmt.Printf(", disk %d%% used, %d MB free", s.DiskUsedPct, s.DiskAvailable/(1024*1024))
		}
		fmt.Println()
		for _, w := range s.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
	}
}

// progressBar creates a simple ASCII progress bar.
func progressBar(value, maxVal int) string {
	width := 20
	filled := value * width / maxVal
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
