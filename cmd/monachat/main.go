package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"MonaChat/internal/cache"
	"MonaChat/internal/config"
	"MonaChat/internal/fasttier"
	"MonaChat/internal/session"
	"MonaChat/internal/state"
	"MonaChat/internal/storage"
	"MonaChat/internal/telemetry"
	"MonaChat/internal/transport"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string
	var webhookURL string
	var debug bool

	rootCmd := &cobra.Command{
		Use:   "monachat",
		Short: "Offline-capable conversational session manager",
		Long: `monachat keeps a conversational session synchronized with a durable
local store, tracks connectivity and guarantees queued messages are
re-sent in order when the link returns.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if webhookURL != "" {
				cfg.WebhookURL = webhookURL
			}
			if debug {
				cfg.Debug = true
			}
			return run(cmd.Context(), cfg)
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "monachat.toml", "Path to TOML config file")
	rootCmd.Flags().StringVar(&webhookURL, "webhook-url", "", "Remote endpoint (http(s):// or ws(s)://)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	_, _, cleanup, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer cleanup()

	var remote transport.Transport
	if cfg.WebhookURL != "" {
		remote, err = transport.Dial(cfg.WebhookURL, transport.Options{Logger: logger})
		if err != nil {
			return err
		}
		defer remote.Close()
	}

	db := storage.Open(cfg.DBPath, logger)
	assets := cache.New(db, logger)

	store := state.New(state.Options{
		Storage:   db,
		FastTier:  fasttier.New(cfg.FastTierPath),
		Transport: remote,
		Logger:    logger,
	})
	defer store.Close()

	// Rendering proper belongs to the UI collaborator; here we only
	// surface connectivity transitions.
	var lastStatus string
	unsubscribe := store.Subscribe(state.SubscriberFunc(func(snap session.AppState) {
		if snap.Network.Status != lastStatus {
			lastStatus = snap.Network.Status
			logger.Info("network status", "status", lastStatus, "queued", len(snap.Network.Queue))
		}
	}))
	defer unsubscribe()

	if err := store.Bootstrap(ctx); err != nil {
		return err
	}

	snap := store.Snapshot()
	fmt.Println("=== MonaChat ===")
	fmt.Printf("Session: %s\n", snap.Session.ID)
	if snap.Degraded {
		fmt.Println("WARNING: storage unavailable, history will not be saved")
	}
	fmt.Println("Type /help for commands, /quit to exit")
	fmt.Println()

	return repl(ctx, store, assets)
}

func repl(ctx context.Context, store *state.Store, assets *cache.AssetCache) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := handleCommand(ctx, store, assets, input)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
			}
			if quit {
				break
			}
			continue
		}

		before := len(history(ctx, store))
		if err := store.Send(ctx, input); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		after := history(ctx, store)
		if before > len(after) {
			before = len(after)
		}
		for _, msg := range after[before:] {
			switch msg.Sender {
			case session.SenderBot:
				fmt.Printf("Bot: %s\n", msg.Text)
			case session.SenderSystem:
				fmt.Printf("-- %s\n", msg.Text)
			}
		}
		fmt.Println()
	}
	fmt.Println("Goodbye!")
	return nil
}

func history(ctx context.Context, store *state.Store) []session.Message {
	msgs, err := store.GetHistory(ctx, store.Snapshot().Session.ID)
	if err != nil {
		return nil
	}
	return msgs
}

func handleCommand(ctx context.Context, store *state.Store, assets *cache.AssetCache, cmd string) (bool, error) {
	parts := strings.Fields(cmd)

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/history":
		for _, msg := range history(ctx, store) {
			fmt.Printf("[%s] %s: %s\n", msg.Type, msg.Sender, msg.Text)
		}
		return false, nil

	case "/offline":
		store.Dispatch(ctx, state.NetworkStatusChanged{Status: session.StatusOffline})
		fmt.Println("Network marked offline; messages will be queued")
		return false, nil

	case "/online":
		store.Dispatch(ctx, state.NetworkStatusChanged{Status: session.StatusOnline})
		fmt.Println("Network marked online")
		return false, nil

	case "/queue":
		snap := store.Snapshot()
		if len(snap.Network.Queue) == 0 {
			fmt.Println("Queue is empty")
		}
		for i, item := range snap.Network.Queue {
			fmt.Printf("%d. %s\n", i+1, item.Text)
		}
		return false, nil

	case "/auth":
		if err := store.Authenticate(ctx); err != nil {
			return false, err
		}
		fmt.Println("Authenticated")
		return false, nil

	case "/asset":
		if len(parts) < 3 {
			return false, fmt.Errorf("usage: /asset get <url> | /asset put <url> <data>")
		}
		switch parts[1] {
		case "get":
			data, err := assets.Fetch(ctx, parts[2])
			if err != nil {
				return false, err
			}
			fmt.Printf("%d bytes cached for %s\n", len(data), parts[2])
		case "put":
			if len(parts) < 4 {
				return false, fmt.Errorf("usage: /asset put <url> <data>")
			}
			if err := assets.Put(ctx, parts[2], []byte(strings.Join(parts[3:], " "))); err != nil {
				return false, err
			}
			fmt.Printf("Stored asset %s\n", parts[2])
		default:
			return false, fmt.Errorf("unknown asset subcommand: %s", parts[1])
		}
		return false, nil

	case "/help":
		fmt.Println("Available commands:")
		fmt.Println("  /quit, /exit   - Exit")
		fmt.Println("  /history       - Show persisted conversation history")
		fmt.Println("  /offline       - Simulate losing connectivity")
		fmt.Println("  /online        - Restore connectivity (drains the queue)")
		fmt.Println("  /queue         - Show pending outbound messages")
		fmt.Println("  /auth          - Run the proof-of-identity ceremony")
		fmt.Println("  /asset get|put - Inspect the asset cache")
		fmt.Println("  /help          - Show this help message")
		return false, nil

	default:
		return false, nil
	}
}
