package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forest6511/passvault/internal/config"
	"github.com/forest6511/passvault/internal/logging"
	"github.com/forest6511/passvault/pkg/audit"
	"github.com/forest6511/passvault/pkg/keycache"
	"github.com/forest6511/passvault/pkg/store"
	"github.com/forest6511/passvault/pkg/vault"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// passwordEnv lets scripts and the MCP server unlock without a prompt.
// It is read once and removed from the environment.
const passwordEnv = "PASSVAULT_PASSWORD"

// Global flags
var (
	flagDataDir      string
	flagBackend      string
	flagSessionStore string
	flagRedisURL     string
	flagLogLevel     string
)

// Process-wide state built by setup.
var (
	cfg      *config.Config
	logger   zerolog.Logger
	st       store.Store
	cache    keycache.Cache
	auditLog *audit.Logger
	v        *vault.Controller
	closers  []io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "passvault",
	Short:         "passvault is a local credential vault with autofill",
	Long:          `A local, passphrase-protected credential vault that fills login forms.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	// PersistentPreRunE runs before every subcommand and builds the controller.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipSetup(cmd) {
			return nil
		}
		if err := setup(cmd); err != nil {
			return err
		}
		cmd.SetContext(audit.WithSource(cmd.Context(), audit.SourceCLI))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDataDir, "data-dir", "", "Data directory (default ~/.passvault)")
	pf.StringVar(&flagBackend, "backend", "", "Store backend: sqlite, bolt, memory")
	pf.StringVar(&flagSessionStore, "session-store", "", "Session key store: memory, redis")
	pf.StringVar(&flagRedisURL, "redis-url", "", "Redis URL for the session key store")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func skipSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == completionCmd {
			return true
		}
	}
	return false
}

// setup resolves configuration and opens the store, key cache and audit log.
func setup(cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load(config.LoadOptions{DataDir: flagDataDir})
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// native-host and mcp-server own stdout, and their parent reads stderr
	// as a log stream.
	switch cmd.Name() {
	case "native-host", "mcp-server":
		logger = logging.NewJSON(cfg.LogLevel, os.Stderr)
	default:
		logger = logging.New(cfg.LogLevel, os.Stderr)
	}

	if cfg.Backend != config.BackendMemory {
		if err := os.MkdirAll(cfg.DataDir, store.DirMode); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	st, err = openStore(cfg, logger)
	if err != nil {
		return err
	}
	closers = append(closers, st)

	cache, err = openKeyCache(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	if cfg.Audit && cfg.Backend != config.BackendMemory {
		auditLog = audit.NewLogger(auditPath(cfg))
	}

	v = vault.New(vault.Options{
		Store:      st,
		KeyCache:   cache,
		Audit:      auditLog,
		Logger:     logger,
		Iterations: cfg.KDFIterations,
	})
	return nil
}

// applyFlags overrides configuration with explicitly set flags.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("backend") {
		c.Backend = flagBackend
	}
	if flags.Changed("session-store") {
		c.SessionStore = flagSessionStore
	}
	if flags.Changed("redis-url") {
		c.RedisURL = flagRedisURL
	}
	if flags.Changed("log-level") {
		c.LogLevel = flagLogLevel
	}
}

func openStore(c *config.Config, log zerolog.Logger) (store.Store, error) {
	switch c.Backend {
	case config.BackendSQLite:
		return store.OpenSQLite(c.DataDir, log)
	case config.BackendBolt:
		return store.OpenBolt(c.DataDir, log)
	case config.BackendMemory:
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalid, c.Backend)
	}
}

func openKeyCache(ctx context.Context, c *config.Config) (keycache.Cache, error) {
	switch c.SessionStore {
	case config.SessionMemory:
		return keycache.NewMemory(nil), nil
	case config.SessionRedis:
		r, err := keycache.ConnectRedis(ctx, c.RedisURL)
		if err != nil {
			return nil, err
		}
		closers = append(closers, r)
		return r, nil
	default:
		return nil, fmt.Errorf("%w: unknown session store %q", config.ErrInvalid, c.SessionStore)
	}
}

func auditPath(c *config.Config) string {
	return filepath.Join(c.DataDir, "audit")
}

func teardown() error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	closers = nil
	return errors.Join(errs...)
}

// ensureUnlocked resumes the session or prompts for the master passphrase.
// A vault that does not exist yet is created, so the passphrase is asked
// for twice.
func ensureUnlocked(ctx context.Context) error {
	if v.Status(ctx) {
		return nil
	}
	state, err := v.State(ctx)
	if err != nil {
		return err
	}

	create := state == vault.StateUninitialized
	if create {
		fmt.Fprintln(os.Stderr, "No vault found; a new one will be created.")
	}
	passphrase, err := readPassphrase(create)
	if err != nil {
		return err
	}
	if err := v.Unlock(ctx, passphrase); err != nil {
		return fmt.Errorf("failed to unlock vault: %w", err)
	}
	return nil
}

// readPassphrase takes the passphrase from the environment or the terminal.
func readPassphrase(confirm bool) (string, error) {
	if p, ok := os.LookupEnv(passwordEnv); ok {
		_ = os.Unsetenv(passwordEnv)
		if p == "" {
			return "", fmt.Errorf("%s is set but empty", passwordEnv)
		}
		return p, nil
	}

	p1, err := promptSecret("Enter master password: ")
	if err != nil {
		return "", err
	}
	if p1 == "" {
		return "", errors.New("master password must not be empty")
	}
	if !confirm {
		return p1, nil
	}
	p2, err := promptSecret("Confirm master password: ")
	if err != nil {
		return "", err
	}
	if p1 != p2 {
		return "", errors.New("passwords do not match")
	}
	return p1, nil
}

// promptSecret reads a line without echo on a terminal, or plainly from a pipe.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return readLine(stdin)
}

// stdin is shared so consecutive prompts on a pipe do not lose buffered input.
var stdin = bufio.NewReader(os.Stdin)

// readLine reads a single line, trimming the trailing newline.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// parseDuration parses a duration string like "30d", "1y", "24h"
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	unit := s[len(s)-1]
	valueStr := s[:len(s)-1]

	switch unit {
	case 'd', 'w', 'y':
	case 'm':
		// "30m" is minutes for time.ParseDuration; months need "mo".
		return time.ParseDuration(s)
	default:
		if strings.HasSuffix(s, "mo") {
			unit, valueStr = 'M', s[:len(s)-2]
			break
		}
		return time.ParseDuration(s)
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", valueStr)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative duration: %s", s)
	}

	var per time.Duration
	switch unit {
	case 'd':
		per = 24 * time.Hour
	case 'w':
		per = 7 * 24 * time.Hour
	case 'M':
		per = 30 * 24 * time.Hour
	default:
		per = 365 * 24 * time.Hour
	}
	if int64(value) > math.MaxInt64/int64(per) {
		return 0, fmt.Errorf("duration too large: %s", s)
	}
	return time.Duration(value) * per, nil
}
