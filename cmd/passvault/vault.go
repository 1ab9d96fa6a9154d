package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forest6511/passvault/pkg/keycache"
	"github.com/forest6511/passvault/pkg/vault"
)

// Vault command flags
var (
	statusJSON bool

	listOrigin string
	listJSON   bool

	saveID            string
	saveOrigins       []string
	saveUsername      string
	saveNotes         string
	savePasswordStdin bool
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(autolockCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")

	listCmd.Flags().StringVar(&listOrigin, "origin", "", "Only credentials bound to this origin")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format (passwords omitted)")

	saveCmd.Flags().StringVar(&saveID, "id", "", "Credential id to update (default: new credential)")
	saveCmd.Flags().StringArrayVar(&saveOrigins, "origin", nil, "Origin the credential belongs to (can be repeated)")
	saveCmd.Flags().StringVar(&saveUsername, "username", "", "Username or email")
	saveCmd.Flags().StringVar(&saveNotes, "notes", "", "Free-form notes")
	saveCmd.Flags().BoolVar(&savePasswordStdin, "password-stdin", false, "Read the password from standard input")
	_ = saveCmd.MarkFlagRequired("origin")

	registerCompletionFunctions()
}

type statusOutput struct {
	State    string `json:"state"`
	Unlocked bool   `json:"unlocked"`
	Autolock string `json:"autolock,omitempty"`
	DataDir  string `json:"data_dir"`
	Backend  string `json:"backend"`
}

// statusCmd reports the vault state, resuming a live session if one exists.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the vault is unlocked",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		unlocked := v.Status(ctx)
		state, err := v.State(ctx)
		if err != nil {
			return fmt.Errorf("failed to read vault state: %w", err)
		}

		out := statusOutput{
			State:    state.String(),
			Unlocked: unlocked,
			DataDir:  cfg.DataDir,
			Backend:  cfg.Backend,
		}
		if state != vault.StateUninitialized {
			if d, err := v.AutolockDuration(ctx); err == nil {
				out.Autolock = d.String()
			}
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		fmt.Printf("State:    %s\n", out.State)
		if out.Autolock != "" {
			fmt.Printf("Autolock: %s\n", out.Autolock)
		}
		fmt.Printf("Data dir: %s (%s)\n", out.DataDir, out.Backend)
		return nil
	},
}

// unlockCmd unlocks the vault, creating it on first use.
var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock the vault (creates it on first use)",
	Long: `Unlock the vault with the master password.

If no vault exists yet, one is created and the password becomes its
master password. With session_store: redis the unlocked session is
exported and survives until it auto-locks; with the default in-memory
session store it ends when this command exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		d, err := v.AutolockDuration(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Vault unlocked (auto-lock after %s idle)\n", d)
		if _, ok := cache.(*keycache.Memory); ok {
			fmt.Fprintln(os.Stderr, "warning: session store is in-memory; the session ends with this process")
		}
		return nil
	},
}

// lockCmd locks the vault and discards the exported session key.
var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		v.Lock(cmd.Context())
		fmt.Println("Vault locked")
		return nil
	},
}

// listCmd lists credentials without their passwords.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureUnlocked(ctx); err != nil {
			return err
		}

		var creds []vault.Credential
		var err error
		if listOrigin != "" {
			origin, nerr := vault.NormalizeOrigin(listOrigin)
			if nerr != nil {
				return nerr
			}
			creds, err = v.CredentialsForOrigin(ctx, origin)
		} else {
			creds, err = v.ListCredentials(ctx)
		}
		if err != nil {
			return fmt.Errorf("failed to list credentials: %w", err)
		}

		for i := range creds {
			creds[i].Password = ""
		}

		if listJSON {
			data, err := json.MarshalIndent(creds, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		if len(creds) == 0 {
			fmt.Println("No credentials stored")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tORIGINS")
		for _, c := range creds {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Username, strings.Join(c.Origins, ","))
		}
		return w.Flush()
	},
}

// saveCmd stores a credential, replacing the one with the same id.
var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a credential",
	Long: `Save a credential for one or more origins.

Without --id a new credential is created; with --id the stored credential
with that id is replaced.

Example:
  passvault save --origin https://example.com --username alice
  echo "$PW" | passvault save --origin https://example.com --username alice --password-stdin`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		origins := make([]string, 0, len(saveOrigins))
		for _, raw := range saveOrigins {
			o, err := vault.NormalizeOrigin(raw)
			if err != nil {
				return err
			}
			origins = append(origins, o)
		}

		password, err := readCredentialPassword()
		if err != nil {
			return err
		}

		if err := ensureUnlocked(ctx); err != nil {
			return err
		}

		saved, err := v.SaveCredential(ctx, vault.Credential{
			ID:       saveID,
			Origins:  origins,
			Username: saveUsername,
			Password: password,
			Notes:    saveNotes,
		})
		if err != nil {
			return fmt.Errorf("failed to save credential: %w", err)
		}
		fmt.Printf("Credential saved: %s\n", saved.ID)
		return nil
	},
}

func readCredentialPassword() (string, error) {
	var (
		password string
		err      error
	)
	if savePasswordStdin {
		password, err = readLine(stdin)
	} else {
		password, err = promptSecret("Credential password: ")
	}
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return password, nil
}

// deleteCmd deletes a credential by id.
var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureUnlocked(ctx); err != nil {
			return err
		}
		if err := v.DeleteCredential(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to delete credential: %w", err)
		}
		fmt.Printf("Credential '%s' deleted\n", args[0])
		return nil
	},
}

// autolockCmd shows or sets the idle time before the vault locks itself.
var autolockCmd = &cobra.Command{
	Use:   "autolock [duration]",
	Short: "Show or set the auto-lock duration",
	Long: `Show or set how long the vault stays unlocked without activity.

The minimum is one minute. Examples: 5m, 90s, 1h.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if len(args) == 0 {
			d, err := v.AutolockDuration(ctx)
			if err != nil {
				return err
			}
			fmt.Println(d)
			return nil
		}

		d, err := parseDuration(args[0])
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		if err := v.SetAutolockDuration(ctx, d.Milliseconds()); err != nil {
			return fmt.Errorf("failed to set auto-lock: %w", err)
		}
		fmt.Printf("Auto-lock set to %s\n", d)
		return nil
	},
}
