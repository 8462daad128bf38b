package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alexjbarnes/healthsync/internal/catalog"
	"github.com/alexjbarnes/healthsync/internal/config"
	"github.com/alexjbarnes/healthsync/internal/logging"
	"github.com/alexjbarnes/healthsync/internal/models"
	"github.com/alexjbarnes/healthsync/internal/state"
	"github.com/alexjbarnes/healthsync/withings"
)

var Version = "dev"

const usage = `usage: healthsync <command>

commands:
  connect      authorize against the provider and store tokens
  fetch [days] fetch and print normalized metrics (default 7 days)
  status       show connection state
  disconnect   revoke access and clear stored tokens
`

// errUsage marks invocation mistakes that call for the usage text
// rather than an error line.
var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}

		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd := args[0]

	// Dispatch before touching configuration, so a typo'd command
	// prints usage instead of a config error.
	switch cmd {
	case "connect", "fetch", "status", "disconnect":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	// status only reads local state; it must work on an unconfigured
	// machine, so it skips credential validation.
	var (
		cfg *config.Config
		err error
	)

	if cmd == "status" {
		cfg, err = config.Parse()
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("healthsync starting",
		slog.String("version", Version),
		slog.String("command", cmd),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load()
	if err != nil {
		return fmt.Errorf("loading metric catalog: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer store.Close()

	client := withings.NewClient(withings.Config{
		ClientID:          cfg.ClientID,
		ClientSecret:      cfg.ClientSecret,
		RedirectURI:       cfg.RedirectURI,
		APIBaseURL:        cfg.APIBaseURL,
		AuthorizeURL:      cfg.AuthorizeURL,
		NotifyCallbackURL: cfg.NotifyCallbackURL,
	}, nil, logger)

	tokens := withings.NewTokenManager(client, store, logger)

	switch cmd {
	case "connect":
		return runConnect(ctx, cfg, client, cat, store, logger)
	case "fetch":
		return runFetch(ctx, cfg, client, cat, tokens, logger, args[1:])
	case "status":
		return runStatus(tokens)
	default: // disconnect
		if err := tokens.Disconnect(ctx); err != nil {
			return err
		}

		fmt.Println("disconnected")

		return nil
	}
}

func openStore(cfg *config.Config) (*state.Store, error) {
	if cfg.StateDB != "" {
		return state.LoadAt(cfg.StateDB)
	}

	return state.Load()
}

// runConnect drives the interactive authorization flow. The redirect
// round trip happens in the user's browser; the CLI reads the pasted
// callback URL back.
func runConnect(ctx context.Context, cfg *config.Config, client *withings.Client, cat *catalog.Catalog, store *state.Store, logger *slog.Logger) error {
	flow := withings.NewFlow(client, cat, store, store, logger)
	subscriber := withings.NewSubscriber(client, cat, logger)

	subDone := make(chan struct{})
	flow.OnAuthenticated = func(rec *models.TokenRecord, categories []string) {
		defer close(subDone)
		subscriber.Subscribe(ctx, rec.AccessToken, categories)
	}

	authURL, err := flow.StartAuth(cfg.ParseMetrics())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Open this URL in your browser and approve access:\n\n  %s\n\n", authURL)
	fmt.Fprint(os.Stderr, "Paste the full URL you were redirected to (empty to cancel): ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() || scanner.Text() == "" {
		if err := flow.Cancel(); err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, "cancelled")

		return nil
	}

	rec, err := flow.HandleCallback(ctx, scanner.Text())
	if err != nil {
		return err
	}

	// Wait for the subscription hook so its log lines land before exit.
	select {
	case <-subDone:
	case <-ctx.Done():
	}

	fmt.Fprintf(os.Stderr, "connected as provider user %s (token valid until %s)\n",
		rec.ProviderUserID, rec.ExpiresAt.Format(time.RFC3339))

	return nil
}

func runFetch(ctx context.Context, cfg *config.Config, client *withings.Client, cat *catalog.Catalog, tokens *withings.TokenManager, logger *slog.Logger, args []string) error {
	days := 7

	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid day count %q", args[0])
		}

		days = n
	}

	fetcher := withings.NewFetcher(client, tokens, cat, logger)

	end := time.Now()
	start := end.AddDate(0, 0, -days)

	payloads, err := fetcher.Fetch(ctx, cfg.ParseMetrics(), start, end)
	if err != nil {
		return err
	}

	if len(payloads) == 0 {
		if !tokens.Connected() {
			fmt.Fprintln(os.Stderr, "not connected; run: healthsync connect")
			return nil
		}

		fmt.Fprintln(os.Stderr, "no samples in range")

		return nil
	}

	out, err := json.MarshalIndent(payloads, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding payloads: %w", err)
	}

	fmt.Println(string(out))

	return nil
}

func runStatus(tokens *withings.TokenManager) error {
	if tokens.Connected() {
		fmt.Println("connected")
	} else {
		fmt.Println("not connected")
	}

	return nil
}
