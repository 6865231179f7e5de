// ABOUTME: Interactive terminal client for a loom streaming session.
// ABOUTME: Usage: loom-chat -config loom.yaml -work <work_id> [-system code] [-model <name>]
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"flag"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/loom/internal/api"
	"github.com/2389/loom/internal/archive"
	"github.com/2389/loom/internal/assemble"
	"github.com/2389/loom/internal/auth"
	"github.com/2389/loom/internal/config"
	"github.com/2389/loom/internal/conn"
	"github.com/2389/loom/internal/session"
	"github.com/2389/loom/internal/wire"
)

var (
	userColor      = color.New(color.FgCyan, color.Bold)
	assistantColor = color.New(color.FgGreen)
	systemColor    = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed, color.Bold)
)

func main() {
	configPath := flag.String("config", "loom.yaml", "path to config file")
	workID := flag.String("work", "", "work unit ID to open a session for")
	systemType := flag.String("system", "code", "system type: brain, code, or writing")
	model := flag.String("model", "", "model override for outbound messages")
	flag.Parse()

	if *workID == "" {
		fmt.Fprintln(os.Stderr, "usage: loom-chat -config loom.yaml -work <work_id> [-system code] [-model <name>]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)

	if err := run(cfg, *workID, session.SystemType(*systemType), *model); err != nil {
		errorColor.Fprintf(os.Stderr, "loom-chat: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging configures the default slog handler from config.
func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(cfg *config.Config, workID string, systemType session.SystemType, model string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	cred := auth.NewCredential(cfg.Auth.Token)
	client := api.New(cfg.Server.BaseURL, cred, logger)

	sess, err := client.CreateSession(ctx, workID, systemType)
	if err != nil {
		return err
	}

	store := session.NewStore(logger)
	defer store.Close()
	store.Dispatch(session.SetSession{Session: sess})

	if cfg.Archive.Enabled {
		arc, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer arc.Close()
		arc.Attach(ctx, store)
	}

	history, err := client.History(ctx, sess.ID)
	if err != nil {
		return err
	}
	api.Replay(store, history)
	renderHistory(history)

	mgr := conn.NewManager(conn.Config{
		URL:               streamURL(cfg.Server.StreamURL, workID),
		ConnectTimeout:    cfg.Stream.ConnectTimeout,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		BackoffBase:       cfg.Stream.BackoffBase,
		BackoffMax:        cfg.Stream.BackoffMax,
		MaxAttempts:       cfg.Stream.MaxReconnectAttempts,
	}, conn.NewWebSocketTransport(cfg.Stream.ConnectTimeout), cred, logger)
	defer mgr.Disconnect()

	if err := mgr.Connect(ctx); err != nil {
		// Reconnects are already scheduled for transient failures;
		// only auth problems are worth stopping for here.
		logger.Warn("initial connect failed", "error", err)
	}

	asm := assemble.New(store, logger)
	go pumpEvents(mgr, asm)

	go func() {
		if err, ok := <-mgr.Disconnects(); ok {
			errorColor.Fprintf(os.Stderr, "\nconnection lost: %v\n", err)
			cancel()
		}
	}()

	return inputLoop(ctx, client, store, mgr, sess.ID, model)
}

// streamURL substitutes the work unit into the endpoint template.
func streamURL(template, workID string) string {
	return strings.ReplaceAll(template, "{work_id}", workID)
}

// pumpEvents renders decoded events as they stream and applies them to
// the store.
func pumpEvents(mgr *conn.Manager, asm *assemble.Assembler) {
	for ev := range mgr.Events() {
		switch ev.Kind {
		case wire.KindStart:
			assistantColor.Print("assistant> ")
		case wire.KindContent:
			assistantColor.Print(ev.Text)
		case wire.KindJSONBlock:
			systemColor.Printf("\n[json card: %s]\n", string(ev.Block))
		case wire.KindComplete:
			fmt.Println()
		case wire.KindError:
			errorColor.Printf("\nError: %s\n", ev.ErrorMessage)
		}
		asm.Apply(ev)
	}
}

// renderHistory prints previously stored messages.
func renderHistory(messages []session.Message) {
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			userColor.Printf("you> ")
			fmt.Println(msg.Content)
		case session.RoleAssistant:
			assistantColor.Printf("assistant> ")
			fmt.Println(msg.Content)
		default:
			systemColor.Printf("[%s] %s\n", msg.Role, msg.Content)
		}
	}
}

// inputLoop reads problems from stdin and handles slash commands.
func inputLoop(ctx context.Context, client *api.Client, store *session.Store, mgr *conn.Manager, sessionID, model string) error {
	scanner := bufio.NewScanner(os.Stdin)
	userColor.Print("you> ")

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return scanner.Err()
			}
			line = strings.TrimSpace(line)
			if line == "" {
				userColor.Print("you> ")
				continue
			}

			if strings.HasPrefix(line, "/") {
				if quit := handleCommand(ctx, client, store, sessionID, line, &model); quit {
					return nil
				}
				userColor.Print("you> ")
				continue
			}

			store.Dispatch(session.AddMessage{Message: session.Message{
				ID:        uuid.New().String(),
				Role:      session.RoleUser,
				Content:   line,
				Type:      session.TypeText,
				CreatedAt: time.Now(),
			}})

			if err := mgr.Send(line, model); err != nil {
				errorColor.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
		}
	}
}

// handleCommand executes a slash command. Returns true on /quit.
func handleCommand(ctx context.Context, client *api.Client, store *session.Store, sessionID, line string, model *string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/model":
		if arg == "" {
			systemColor.Printf("current model: %s\n", orDefault(*model))
			return false
		}
		if arg != *model {
			store.Dispatch(session.AddMessage{Message: session.Message{
				ID:        uuid.New().String(),
				Role:      session.RoleModelChange,
				Content:   fmt.Sprintf("model changed to %s", arg),
				Type:      session.TypeText,
				CreatedAt: time.Now(),
			}})
			systemColor.Printf("model changed to %s\n", arg)
			*model = arg
		}

	case "/title":
		if err := client.UpdateTitle(ctx, sessionID, arg); err != nil {
			errorColor.Fprintf(os.Stderr, "title update failed: %v\n", err)
		}

	case "/reset":
		if err := client.ResetSession(ctx, sessionID); err != nil {
			errorColor.Fprintf(os.Stderr, "reset failed: %v\n", err)
			return false
		}
		store.Dispatch(session.ClearMessages{})
		systemColor.Println("session reset")

	case "/delete":
		if err := client.DeleteSession(ctx, sessionID); err != nil {
			errorColor.Fprintf(os.Stderr, "delete failed: %v\n", err)
			return false
		}
		store.Dispatch(session.ResetState{})
		systemColor.Println("session deleted")
		return true

	case "/clear":
		store.Dispatch(session.ClearMessages{})

	default:
		systemColor.Printf("commands: /model [name], /title <text>, /reset, /delete, /clear, /quit\n")
	}
	return false
}

func orDefault(model string) string {
	if model == "" {
		return "(server default)"
	}
	return model
}
