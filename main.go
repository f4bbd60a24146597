package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/go-authgate/resume-cli/api"
	"github.com/go-authgate/resume-cli/credstore"
	"github.com/go-authgate/resume-cli/metrics"
	"github.com/go-authgate/resume-cli/session"
	"github.com/go-authgate/resume-cli/tui"
)

const progName = "resume-cli"

// app carries state shared by every command of one invocation.
type app struct {
	flags rootFlags
}

// env is what a command body works with once configuration is loaded.
type env struct {
	cfg     *Config
	api     *api.Client
	store   credstore.Store
	display tui.Displayer
	out     printer
}

// commandFunc is the body of a command. The returned summary is shown by
// the Displayer on success.
type commandFunc func(ctx context.Context, e *env) (summary string, err error)

// reportedError marks an error the Displayer has already shown.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func main() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   progName,
		Short: "Command line client for the resume analysis service",
		Long: "Upload resumes for analysis and browse the results.\n\n" +
			"Log in once; expired access tokens are refreshed automatically and\n" +
			"the interrupted requests are retried.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Disable completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "YAML config file (or CONFIG_PATH env)")
	pf.StringVar(&a.flags.apiURL, "api-url", "",
		"API base URL (default: http://localhost:8000 or API_URL env)")
	pf.StringVar(&a.flags.store, "store", "",
		"Credential store: file, bolt, redis or memory (default: file or STORE_BACKEND env)")
	pf.StringVar(&a.flags.tokenFile, "token-file", "",
		"Token storage file (default: .resume-cli-tokens.json or TOKEN_FILE env)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "debug, info, warn or error (or LOG_LEVEL env)")
	pf.BoolVar(&a.flags.plain, "plain", false, "Plain text progress even on a terminal")
	pf.BoolVar(&a.flags.json, "json", false, "Print results as JSON")

	rootCmd.AddCommand(a.loginCmd())
	rootCmd.AddCommand(a.signupCmd())
	rootCmd.AddCommand(a.logoutCmd())
	rootCmd.AddCommand(a.statusCmd())
	rootCmd.AddCommand(a.meCmd())
	rootCmd.AddCommand(a.resumesCmd())
	rootCmd.AddCommand(a.analysesCmd())
	rootCmd.AddCommand(a.analyzeCmd())

	return rootCmd
}

// isTTY reports whether stderr is a character device (interactive terminal).
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func (a *app) useTUI(cmd *cobra.Command) bool {
	return !a.flags.plain && cmd.ErrOrStderr() == os.Stderr && isTTY()
}

// run loads the configuration, picks a Displayer and executes fn.
func (a *app) run(cmd *cobra.Command, action string, fn commandFunc) error {
	cfg, err := loadConfig(&a.flags)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stderr := cmd.ErrOrStderr()
	warnInsecure(stderr, cfg.APIURL)

	if !a.useTUI(cmd) {
		d := tui.NewPlainDisplayer(stderr)
		return a.execute(ctx, cfg, d, cmd.OutOrStdout(), stderr, action, fn)
	}

	// Run TUI program on stderr so stdout pipes are not corrupted
	m := tui.NewModel()
	// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
	// capability queries (?2026/?2027). Ctrl+C is handled by signal.NotifyContext.
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithInput(nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
	}()

	// Results are held back until the TUI has released the terminal.
	var out bytes.Buffer
	d := tui.NewProgramDisplayer(p)
	runErr := a.execute(ctx, cfg, d, &out, nil, action, fn)
	p.Quit() // let BubbleTea drain terminal query responses before exiting
	wg.Wait()

	if _, err := io.Copy(cmd.OutOrStdout(), &out); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// execute opens the credential store, wires the session client and runs fn.
// Progress and failures are reported through d.
func (a *app) execute(
	ctx context.Context,
	cfg *Config,
	d tui.Displayer,
	stdout io.Writer,
	logOut io.Writer,
	action string,
	fn commandFunc,
) error {
	d.Banner()

	fail := func(err error) error {
		d.Fatal(err)
		return &reportedError{err: err}
	}

	logger, closeLog, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = closeLog() }()

	store, err := credstore.Open(cfg.storeConfig())
	if err != nil {
		return fail(fmt.Errorf("failed to open credential store: %w", err))
	}
	if closer, ok := store.(credstore.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Warn("failed to close credential store", slog.Any("error", err))
			}
		}()
	}

	transport, err := newTransport()
	if err != nil {
		return fail(err)
	}

	counters := metrics.NewObserver()
	sc := session.New(store, transport,
		session.WithRefreshURL(cfg.APIURL+session.DefaultRefreshPath),
		session.WithObserver(session.Observers(d, counters)),
		session.WithLogger(logger),
		session.WithRefreshTimeout(cfg.Timeouts.Refresh),
	)
	client, err := api.New(cfg.APIURL, sc)
	if err != nil {
		return fail(err)
	}

	e := &env{
		cfg:     cfg,
		api:     client,
		store:   store,
		display: d,
		out:     printer{w: stdout, json: a.flags.json},
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Request)
	defer cancel()

	d.Working(action)
	summary, runErr := fn(ctx, e)

	if cfg.MetricsFile != "" {
		if err := counters.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("failed to write metrics", slog.String("path", cfg.MetricsFile), slog.Any("error", err))
		}
	}

	if runErr != nil {
		return fail(runErr)
	}
	d.Done(summary)
	return nil
}
