package main

import (
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/passvault/pkg/vault"
)

// isDynamicCompletionEnabled checks if dynamic completion is opt-in enabled.
func isDynamicCompletionEnabled() bool {
	return os.Getenv("PASSVAULT_COMPLETION_ENABLED") == "1"
}

// completeCredentialIDs completes credential ids when the session can be
// resumed from the key cache. It never prompts.
func completeCredentialIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 || !isDynamicCompletionEnabled() || v == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	ctx := cmd.Context()
	if !v.Status(ctx) {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	creds, err := v.ListCredentials(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return credentialCompletions(creds, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// credentialCompletions returns "id\tdescription" entries whose id starts
// with prefix, sorted by id.
func credentialCompletions(creds []vault.Credential, prefix string) []string {
	lowerPrefix := strings.ToLower(prefix)
	var out []string
	for _, c := range creds {
		if !strings.HasPrefix(strings.ToLower(c.ID), lowerPrefix) {
			continue
		}
		desc := c.Username
		if len(c.Origins) > 0 {
			if desc != "" {
				desc += " @ "
			}
			desc += vault.Host(c.Origins[0])
		}
		if desc == "" {
			out = append(out, c.ID)
		} else {
			out = append(out, c.ID+"\t"+desc)
		}
	}
	sort.Strings(out)
	return out
}

func registerCompletionFunctions() {
	deleteCmd.ValidArgsFunction = completeCredentialIDs
	_ = saveCmd.RegisterFlagCompletionFunc("id", func(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return completeCredentialIDs(cmd, nil, toComplete)
	})
}
