// Command coach uploads a tennis practice video to the analysis service and
// runs a streamed coaching conversation over it.
//
// Usage:
//
//	coach -video serve.mp4 -preset serve
//	coach -video rally.mp4 -ask "Why do I keep missing crosscourt?"
//	coach -resume <session-id> -ask "What drill should I start with?"
//	coach -sessions
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"tenniscoach/pkg/chat"
	"tenniscoach/pkg/config"
	"tenniscoach/pkg/gemini"
	"tenniscoach/pkg/logx"
	"tenniscoach/pkg/metrics"
	"tenniscoach/pkg/prompts"
	"tenniscoach/pkg/utils"
)

func main() {
	var (
		configPath   string
		videoPath    string
		presetName   string
		question     string
		resumeID     string
		listSessions bool
		interactive  bool
		debug        bool
		statsID      string
		promURL      string
	)
	flag.StringVar(&configPath, "config", "", "Path to JSON config file (optional)")
	flag.StringVar(&videoPath, "video", "", "Path to the practice video to analyze")
	flag.StringVar(&presetName, "preset", "general", "Coaching preset: "+strings.Join(prompts.Names(), ", "))
	flag.StringVar(&question, "ask", "", "Question to ask (defaults to the preset's prompt)")
	flag.StringVar(&resumeID, "resume", "", "Resume an existing session by ID")
	flag.BoolVar(&listSessions, "sessions", false, "List stored sessions and exit")
	flag.BoolVar(&interactive, "chat", false, "Keep the session open for follow-up questions")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.StringVar(&statsID, "stats", "", "Print token usage for a session ID and exit (requires Prometheus)")
	flag.StringVar(&promURL, "prom-url", "http://localhost:9090", "Prometheus base URL for -stats")
	flag.Parse()

	if debug {
		logx.SetDebug(true, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if statsID != "" {
		if err := printStats(ctx, promURL, statsID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, configPath, videoPath, presetName, question, resumeID, listSessions, interactive); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, videoPath, presetName, question, resumeID string, listSessions, interactive bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := ensureAPIKey(cfg); err != nil {
		return err
	}

	preset, err := prompts.Get(presetName)
	if err != nil {
		return err
	}

	rec, err := startMetrics(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if listSessions {
		return printSessions(ctx, store)
	}

	client := gemini.NewClient(cfg, gemini.WithRecorder(rec))

	counter, err := utils.NewTokenCounter()
	if err != nil {
		// Budget checks degrade to character estimation.
		logx.Warnf("token counter unavailable: %v", err)
	}
	manager := chat.NewManager(client, store, cfg.MaxContextTokens,
		chat.WithRecorder(rec), chat.WithTokenCounter(counter))

	var session *chat.Session
	switch {
	case resumeID != "":
		if p, perr := presetForSession(ctx, store, resumeID); perr == nil {
			preset = p
		}
		session, err = manager.ResumeSession(ctx, resumeID, preset.SystemInstruction, preset.GenerationConfig())
		if err != nil {
			return err
		}
		fmt.Printf("Resumed session %s (%d prior turns)\n", session.ID, len(session.Turns()))
	case videoPath != "":
		file, uerr := uploadVideo(ctx, client, videoPath)
		if uerr != nil {
			return uerr
		}
		session, err = manager.StartSession(ctx, chat.SessionParams{
			Video:             file,
			SystemInstruction: preset.SystemInstruction,
			PresetName:        preset.Name,
			GenerationConfig:  preset.GenerationConfig(),
		})
		if err != nil {
			return err
		}
		fmt.Printf("Session %s started\n", session.ID)
	default:
		return fmt.Errorf("either -video or -resume is required (see -h)")
	}

	if question == "" {
		question = preset.UserPrompt
	}
	if err := askStreaming(ctx, session, question); err != nil {
		return err
	}

	if interactive {
		return chatLoop(ctx, session)
	}
	return nil
}

// ensureAPIKey prompts on a terminal when no key was configured. The key is
// read without echo.
func ensureAPIKey(cfg *config.Config) error {
	if cfg.APIKey != "" {
		return nil
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return fmt.Errorf("no API key: set GEMINI_API_KEY or api_key in the config file")
	}
	fmt.Print("Gemini API key: ")
	key, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}
	cfg.APIKey = strings.TrimSpace(string(key))
	if cfg.APIKey == "" {
		return fmt.Errorf("empty API key")
	}
	return nil
}

// startMetrics exposes /metrics when an address is configured.
func startMetrics(cfg *config.Config) (metrics.Recorder, error) {
	if cfg.MetricsAddr == "" {
		return metrics.NopRecorder{}, nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Warnf("metrics server: %v", err)
		}
	}()
	return metrics.NewPrometheusRecorder(), nil
}

func openStore(cfg *config.Config) (chat.Store, error) {
	if cfg.HistoryDBPath == "" {
		return chat.NewMemoryStore(), nil
	}
	return chat.OpenSQLiteStore(cfg.HistoryDBPath)
}

func printSessions(ctx context.Context, store chat.Store) error {
	sessions, err := store.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No stored sessions.")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s  %s  preset=%s  %s\n",
			s.ID, s.CreatedAt.Format(time.RFC3339), s.Preset, s.VideoURI)
	}
	return nil
}

// printStats reports token usage for a session from a Prometheus server that
// scrapes the coach's /metrics endpoint.
func printStats(ctx context.Context, promURL, sessionID string) error {
	qs, err := metrics.NewQueryService(promURL)
	if err != nil {
		return err
	}
	sm, err := qs.GetSessionMetrics(ctx, sessionID)
	if err != nil {
		return err
	}
	retries, err := qs.GetUploadRetryRate(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Session %s\n", sm.SessionID)
	fmt.Printf("  prompt tokens:     %d\n", sm.PromptTokens)
	fmt.Printf("  completion tokens: %d\n", sm.CompletionTokens)
	fmt.Printf("  total tokens:      %d\n", sm.TotalTokens)
	fmt.Printf("Upload retries since start: %.0f\n", retries)
	return nil
}

func presetForSession(ctx context.Context, store chat.Store, id string) (prompts.Preset, error) {
	rec, err := store.GetSession(ctx, id)
	if err != nil {
		return prompts.Preset{}, err
	}
	return prompts.Get(rec.Preset)
}

func uploadVideo(ctx context.Context, client *gemini.Client, path string) (*gemini.File, error) {
	fmt.Printf("Uploading %s...\n", path)
	lastPct := -1
	file, err := client.UploadVideo(ctx, path, gemini.UploadOptions{
		Progress: func(fraction float64) {
			pct := int(fraction * 100)
			if pct/10 > lastPct/10 {
				fmt.Printf("  %d%%\n", pct)
			}
			lastPct = pct
		},
	})
	if err != nil {
		return nil, err
	}
	fmt.Printf("Upload complete: %s\n", file.Name)
	return file, nil
}

// askStreaming sends one question and prints the response as it streams.
func askStreaming(ctx context.Context, session *chat.Session, question string) error {
	fmt.Printf("\n> %s\n\n", question)
	stream, err := session.AskStream(ctx, question)
	if err != nil {
		return err
	}
	defer stream.Close()

	for chunk := range stream.Chunks() {
		if chunk.Err != nil {
			fmt.Println()
			return chunk.Err
		}
		fmt.Print(chunk.TextDelta)
	}
	fmt.Println()
	return nil
}

// chatLoop reads follow-up questions from stdin until EOF or cancellation.
func chatLoop(ctx context.Context, session *chat.Session) error {
	fmt.Println("\nFollow-up questions (Ctrl-D to finish):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("? ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if err := askStreaming(ctx, session, question); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
