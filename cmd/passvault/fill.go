package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"github.com/forest6511/passvault/pkg/autofill"
	"github.com/forest6511/passvault/pkg/message"
	"github.com/forest6511/passvault/pkg/vault"
)

// Fill command flags
var (
	fillURL     string
	fillTrigger bool
	fillChoose  int
	fillCapture bool
	fillPaste   string
	fillFocus   string
)

func init() {
	rootCmd.AddCommand(fillCmd)

	fillCmd.Flags().StringVar(&fillURL, "url", "", "URL the page was loaded from (required)")
	fillCmd.Flags().BoolVar(&fillTrigger, "trigger", false, "Fill through a TRIGGER_AUTOFILL request instead of page load")
	fillCmd.Flags().IntVar(&fillChoose, "choose", 0, "Pick the Nth credential when several match")
	fillCmd.Flags().BoolVar(&fillCapture, "capture", false, "Submit the page's login form and offer to save what it contains")
	fillCmd.Flags().StringVar(&fillPaste, "paste", "", "Paste the username or password of the latest matching credential into the focused input (username|password)")
	fillCmd.Flags().StringVar(&fillFocus, "focus", "", "CSS selector of the input to focus before --paste (default: the detected login field)")
	fillCmd.MarkFlagsMutuallyExclusive("capture", "paste")
	_ = fillCmd.MarkFlagRequired("url")
}

// fillCmd runs the autofill engine against a saved HTML page.
var fillCmd = &cobra.Command{
	Use:   "fill [page.html]",
	Short: "Run autofill against a saved HTML page",
	Long: `Load a saved HTML page as if it had been opened at --url and run
autofill on it. The detected fields and their values are printed with
the password masked.

With --capture the page's login form is submitted instead, and the
credential typed into it is offered for saving.

With --paste the username or password of the most recently stored
credential for the page's origin is pasted into one input: the one
matched by --focus, or else the detected username or password field.

Example:
  passvault fill login.html --url https://example.com/login
  passvault fill login.html --url https://example.com/login --choose 2
  passvault fill login.html --url https://example.com/login --paste username --focus '#email'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if fillPaste != "" && fillPaste != pasteUsername && fillPaste != pastePassword {
			return fmt.Errorf("--paste must be %q or %q", pasteUsername, pastePassword)
		}

		page, err := loadPage(args[0], fillURL)
		if err != nil {
			return err
		}
		if page.FindFields() == nil {
			return errors.New("no visible password field found on the page")
		}

		if err := ensureUnlocked(ctx); err != nil {
			return err
		}

		d := message.NewDispatcher(v, logger)
		go func() {
			_ = d.Run(ctx)
		}()

		opts := autofill.Options{Logger: logger}
		if fillCapture {
			opts.Confirmer = ttyConfirmer{}
		} else {
			opts.Picker = &listPicker{choose: fillChoose}
		}
		engine := autofill.NewEngine(ctx, page, d, opts)
		d.AttachPage(engine)
		defer d.AttachPage(nil)

		if fillCapture {
			return capture(page)
		}
		if fillPaste != "" {
			return paste(ctx, page, engine, fillPaste, fillFocus)
		}

		if fillTrigger {
			if err := d.Send(ctx, message.TriggerAutofill{}).Err(); err != nil {
				return err
			}
		} else {
			engine.Load()
		}

		printFields(page)
		return nil
	},
}

func loadPage(path, rawURL string) (*autofill.Page, error) {
	data, err := readImportFile(path)
	if err != nil {
		return nil, err
	}
	page, err := autofill.ParsePage(rawURL, string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to load page: %w", err)
	}
	if !page.IsWeb() {
		return nil, fmt.Errorf("--url must be an http or https URL: %s", rawURL)
	}
	return page, nil
}

func capture(page *autofill.Page) error {
	fields := page.FindFields()
	if fields.Form == nil {
		return errors.New("password field is not inside a form")
	}
	if page.Value(fields.Password) == "" {
		return errors.New("password field is empty; nothing to capture")
	}
	page.Submit(fields.Form)
	return nil
}

// Paste targets.
const (
	pasteUsername = "username"
	pastePassword = "password"
)

func paste(ctx context.Context, page *autofill.Page, engine *autofill.Engine, what, selector string) error {
	target, err := pasteTarget(page, what, selector)
	if err != nil {
		return err
	}
	page.Focus(target)
	if what == pasteUsername {
		engine.PasteUsername(ctx)
	} else {
		engine.PastePassword(ctx)
	}

	value := page.Value(target)
	if what == pastePassword {
		value = maskPassword(value)
	}
	fmt.Printf("%-10s %s\n", fieldLabel(target), value)
	return nil
}

// pasteTarget resolves the input a paste goes into.
func pasteTarget(page *autofill.Page, what, selector string) (*html.Node, error) {
	if selector != "" {
		n, err := page.Query(selector)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, fmt.Errorf("no element matches %q", selector)
		}
		return n, nil
	}
	fields := page.FindFields()
	if what == pastePassword {
		return fields.Password, nil
	}
	if fields.Identifier == nil {
		return nil, errors.New("no username field found; use --focus")
	}
	return fields.Identifier, nil
}

func printFields(page *autofill.Page) {
	fields := page.FindFields()
	if fields.Identifier != nil {
		fmt.Printf("%-10s %s\n", fieldLabel(fields.Identifier), page.Value(fields.Identifier))
	}
	fmt.Printf("%-10s %s\n", fieldLabel(fields.Password), maskPassword(page.Value(fields.Password)))
	if page.Value(fields.Password) == "" {
		fmt.Fprintln(os.Stderr, "warning: nothing was filled")
	}
}

func fieldLabel(n *html.Node) string {
	for _, key := range []string{"name", "id", "type"} {
		for _, a := range n.Attr {
			if a.Key == key && a.Val != "" {
				return a.Val
			}
		}
	}
	return "input"
}

func maskPassword(p string) string {
	if p == "" {
		return "(empty)"
	}
	return strings.Repeat("*", 8)
}

// listPicker prints the candidates and applies the one chosen with --choose.
type listPicker struct {
	choose int
}

func (p *listPicker) Show(_ context.Context, _ *html.Node, creds []vault.Credential, choose func(vault.Credential)) {
	fmt.Fprintln(os.Stderr, "Several credentials match this page:")
	for i, c := range creds {
		fmt.Fprintf(os.Stderr, "  %d. %s (%s)\n", i+1, c.Username, c.ID)
	}
	if p.choose < 1 || p.choose > len(creds) {
		fmt.Fprintln(os.Stderr, "Re-run with --choose N to fill one of them.")
		return
	}
	choose(creds[p.choose-1])
}

func (p *listPicker) Close() {}

// ttyConfirmer asks on the terminal.
type ttyConfirmer struct{}

func (ttyConfirmer) Confirm(_ context.Context, prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	answer, err := readLine(stdin)
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
