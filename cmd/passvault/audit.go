package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// Audit flags
var (
	auditLimit int
	auditSince string
	auditJSON  bool

	auditPruneOlderThan string
	auditPruneForce     bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditPruneCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Show events since duration (e.g., 24h, 7d)")
	auditListCmd.Flags().BoolVar(&auditJSON, "json", false, "Output in JSON format")

	auditPruneCmd.Flags().StringVar(&auditPruneOlderThan, "older-than", "", "Delete logs older than duration (e.g., 6mo, 1y)")
	auditPruneCmd.Flags().BoolVarP(&auditPruneForce, "force", "f", false, "Skip confirmation prompt")
	_ = auditPruneCmd.MarkFlagRequired("older-than")
}

var errAuditDisabled = errors.New("audit log is disabled (audit: false or memory backend)")

// auditCmd is the parent command for audit operations
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

// auditListCmd lists audit log entries
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditLog == nil {
			return errAuditDisabled
		}

		var since time.Time
		if auditSince != "" {
			d, err := parseDuration(auditSince)
			if err != nil {
				return fmt.Errorf("invalid since format: %w", err)
			}
			since = time.Now().Add(-d)
		}

		events, err := auditLog.ListEvents(auditLimit, since)
		if err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}

		if auditJSON {
			data, err := json.MarshalIndent(events, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		now := time.Now()
		for _, event := range events {
			// Format: TIMESTAMP (AGE) OPERATION RESULT SOURCE [SUBJECT]
			line := event.Timestamp
			if ts, err := time.Parse(time.RFC3339Nano, event.Timestamp); err == nil {
				line += " (" + formatAge(ts, now) + ")"
			}
			line += fmt.Sprintf(" %s %s %s", event.Operation, event.Result, event.Source)
			if event.Subject != "" {
				subject := event.Subject
				if len(subject) > 16 {
					subject = subject[:16] + "..."
				}
				line += " id:" + subject
			}
			if event.Error != "" {
				line += " error:" + event.Error
			}
			fmt.Println(line)
		}

		fmt.Printf("\nTotal: %d events\n", len(events))
		return nil
	},
}

// auditVerifyCmd verifies audit log integrity
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log HMAC chain integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditLog == nil {
			return errAuditDisabled
		}
		// The chain key is derived from the vault key.
		if err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}

		fmt.Println("Verifying audit log integrity...")

		result, err := auditLog.Verify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}

		if !result.Valid {
			fmt.Printf("✗ Audit log verification FAILED\n")
			fmt.Printf("  Records total: %d\n", result.RecordsTotal)
			fmt.Println("  Errors:")
			for _, e := range result.Errors {
				fmt.Printf("    - %s\n", e)
			}
			return errors.New("audit log integrity check failed")
		}
		fmt.Printf("✓ Audit log verified: %d records, chain intact\n", result.RecordsTotal)
		return nil
	},
}

// auditPruneCmd deletes old audit logs
var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditLog == nil {
			return errAuditDisabled
		}

		d, err := parseDuration(auditPruneOlderThan)
		if err != nil {
			return fmt.Errorf("invalid older-than format: %w", err)
		}

		if !auditPruneForce {
			fmt.Printf("This will delete audit log files whose entries are all older than %s.\n", auditPruneOlderThan)
			fmt.Print("Are you sure? [y/N]: ")
			response, err := readLine(stdin)
			if err != nil || (response != "y" && response != "Y") {
				fmt.Println("Aborted")
				return nil
			}
		}

		deleted, err := auditLog.Prune(d)
		if err != nil {
			return fmt.Errorf("failed to prune audit logs: %w", err)
		}
		fmt.Printf("Deleted %d audit log entries\n", deleted)
		return nil
	},
}

// formatAge renders how long ago t was.
func formatAge(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
