package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forest6511/passvault/pkg/backup"
	"github.com/forest6511/passvault/pkg/crypto"
)

var (
	backupOutput      string
	backupStdout      bool
	backupKeyFile     string
	backupGenerateKey bool
	backupForce       bool

	restoreDryRun     bool
	restoreVerifyOnly bool
	restoreOverwrite  bool
	restoreKeyFile    string
)

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)

	backupCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "Output file path")
	backupCmd.Flags().BoolVar(&backupStdout, "stdout", false, "Output to stdout (for piping)")
	backupCmd.Flags().StringVar(&backupKeyFile, "key-file", "", "Encryption key file (32 bytes) instead of a backup password")
	backupCmd.Flags().BoolVar(&backupGenerateKey, "generate-key", false, "Create the --key-file before using it")
	backupCmd.Flags().BoolVarP(&backupForce, "force", "f", false, "Overwrite existing file")

	restoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "Show what would be restored without making changes")
	restoreCmd.Flags().BoolVar(&restoreVerifyOnly, "verify-only", false, "Only verify backup integrity")
	restoreCmd.Flags().BoolVar(&restoreOverwrite, "overwrite", false, "Replace an existing vault")
	restoreCmd.Flags().StringVar(&restoreKeyFile, "key-file", "", "Decryption key file")
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create encrypted backup of the vault",
	Long: `Create an encrypted backup of the vault records.

The vault record stays sealed under the master password inside the
backup; the backup password or key file adds a second layer and
protects the file's integrity.

Examples:
  passvault backup -o vault-backup.pvb
  passvault backup --stdout > vault-backup.pvb
  passvault backup -o backup.pvb --key-file backup.key --generate-key`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if backupStdout == (backupOutput != "") {
			return errors.New("specify exactly one of --output or --stdout")
		}
		if backupGenerateKey && backupKeyFile == "" {
			return errors.New("--generate-key requires --key-file")
		}

		ctx := cmd.Context()
		if err := ensureUnlocked(ctx); err != nil {
			return err
		}
		creds, err := v.ListCredentials(ctx)
		if err != nil {
			return err
		}

		opts := backup.BackupOptions{
			KeyFile:         backupKeyFile,
			Iterations:      cfg.KDFIterations,
			CredentialCount: len(creds),
		}
		if backupGenerateKey {
			if err := backup.GenerateKeyFile(backupKeyFile); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Key file written to %s; store it apart from the backup.\n", backupKeyFile)
		}
		if backupKeyFile == "" {
			pw, err := promptNewBackupPassword()
			if err != nil {
				return err
			}
			opts.Password = pw
			defer crypto.SecureWipe(pw)
		}

		var buf bytes.Buffer
		opts.Output = &buf
		if err := backup.Backup(ctx, st, opts); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		if backupStdout {
			_, err := os.Stdout.Write(buf.Bytes())
			return err
		}
		if err := writeBackupFile(backupOutput, buf.Bytes(), backupForce); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Backup of %d credentials written to %s\n", len(creds), backupOutput)
		return nil
	},
}

func promptNewBackupPassword() ([]byte, error) {
	p1, err := promptSecret("Backup password: ")
	if err != nil {
		return nil, err
	}
	if p1 == "" {
		return nil, backup.ErrEmptyPassword
	}
	p2, err := promptSecret("Confirm backup password: ")
	if err != nil {
		return nil, err
	}
	if p1 != p2 {
		return nil, errors.New("passwords do not match")
	}
	return []byte(p1), nil
}

func writeBackupFile(path string, data []byte, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("output file already exists: %s (use --force to overwrite)", path)
		}
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return f.Close()
}

var restoreCmd = &cobra.Command{
	Use:   "restore [backup-file]",
	Short: "Restore the vault from an encrypted backup",
	Long: `Restore the vault records from a backup created with 'passvault backup'.

After a restore the vault opens with the master password that was in use
when the backup was taken.

Examples:
  passvault restore vault-backup.pvb --verify-only
  passvault restore vault-backup.pvb --overwrite`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := readImportFile(args[0])
		if err != nil {
			return err
		}
		header, err := backup.ReadHeaderFrom(data)
		if err != nil {
			return err
		}

		var password []byte
		if restoreKeyFile == "" && header.EncryptionMode == backup.EncryptionModePassword {
			p, err := promptSecret("Backup password: ")
			if err != nil {
				return err
			}
			password = []byte(p)
			defer crypto.SecureWipe(password)
		}

		if restoreVerifyOnly {
			res := backup.Verify(data, password, restoreKeyFile)
			if !res.Valid {
				return fmt.Errorf("backup verification failed: %s", res.Error)
			}
			fmt.Printf("✓ Backup verified: created %s, %d credentials\n",
				res.CreatedAt.Format("2006-01-02 15:04"), res.CredentialCount)
			return nil
		}

		result, err := backup.Restore(ctx, st, data, backup.RestoreOptions{
			Overwrite: restoreOverwrite,
			DryRun:    restoreDryRun,
			Password:  password,
			KeyFile:   restoreKeyFile,
		})
		if errors.Is(err, backup.ErrConflict) {
			return fmt.Errorf("%w (use --overwrite to replace it)", err)
		}
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		if result.DryRun {
			fmt.Printf("[dry-run] Would restore backup from %s (%d credentials)\n",
				result.CreatedAt.Format("2006-01-02 15:04"), result.CredentialCount)
			return nil
		}

		// Any session belongs to the replaced vault.
		v.Lock(ctx)
		fmt.Printf("Restored backup from %s (%d credentials)\n",
			result.CreatedAt.Format("2006-01-02 15:04"), result.CredentialCount)
		return nil
	},
}
