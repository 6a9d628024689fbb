// ABOUTME: Entry point for the seer-gateway binary. Dispatches the serve,
// ABOUTME: health, audit, and version commands and owns terminal output.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/seer-gateway/internal/config"
	"github.com/2389/seer-gateway/internal/gateway"
	"github.com/2389/seer-gateway/internal/mcp"
	"github.com/2389/seer-gateway/internal/store"
)

const banner = `
                                            _
 ___  ___  ___ _ __              __ _  __ _| |_ _____      ____ _ _   _
/ __|/ _ \/ _ \ '__|      _____/ _' |/ _' | __/ _ \ \ /\ / / _' | | | |
\__ \  __/  __/ |        |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|___/\___|\___|_|               \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                |___/                             |___/
`

// getConfigPath returns the path of the gateway config file, or "" when the
// gateway runs on environment variables and defaults alone.
// Priority: --config flag > SEER_CONFIG env var > XDG_CONFIG_HOME/seer/gateway.yaml > ~/.config/seer/gateway.yaml
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("SEER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	// The XDG file is optional; load it only when it exists.
	path := filepath.Join(configDir, "seer", "gateway.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Bare invocation starts the server.
	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command = args[0]
		args = args[1:]
	}

	var err error
	switch command {
	case "serve":
		err = runServe(ctx, args)
	case "health":
		err = runHealth(ctx, args)
	case "audit":
		err = runAudit(ctx, args)
	case "version":
		fmt.Printf("seer-gateway %s\n", mcp.ServerVersion)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: seer-gateway [command] [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve          Start the gateway server (default)")
	fmt.Println("  health [url]   Check gateway health")
	fmt.Println("  audit          Print recorded tool calls")
	fmt.Println("  version        Print the gateway version")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --config PATH  Config file (default: SEER_CONFIG, then the XDG config dir)")
	fmt.Println("  --tool NAME    audit: only show calls to this tool")
	fmt.Println("  --limit N      audit: number of records to print (default 20)")
	fmt.Println("  --usage        audit: print token usage instead of tool calls")
}

// parseConfigArg extracts the --config flag from command arguments.
// Supports both "--config value" and "--config=value" formats.
func parseConfigArg(args []string) (string, error) {
	var configPath string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" || arg == "-config":
			if i+1 >= len(args) {
				return "", fmt.Errorf("--config requires a value")
			}
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "-config="):
			configPath = strings.TrimPrefix(arg, "-config=")
		case strings.HasPrefix(arg, "-"):
			return "", fmt.Errorf("unknown flag: %s", arg)
		default:
			return "", fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	return configPath, nil
}

func runServe(ctx context.Context, args []string) error {
	configFlag, err := parseConfigArg(args)
	if err != nil {
		return err
	}
	configPath := getConfigPath(configFlag)

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", mcp.ServerVersion)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	if configPath != "" {
		fmt.Printf("Config:    %s\n", configPath)
	} else {
		fmt.Println("Config:    environment")
	}
	green.Print("    ▶ ")
	fmt.Printf("MCP:       http://%s/mcp\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)

	// Tailscale status
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting seer-gateway",
		"version", mcp.ServerVersion,
		"http_addr", cfg.Server.HTTPAddr,
		"think_enabled", cfg.Think.Enabled,
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context, args []string) error {
	var configFlag, url string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" || arg == "-config":
			if i+1 >= len(args) {
				return fmt.Errorf("--config requires a value")
			}
			configFlag = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			configFlag = strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		case url == "":
			url = arg
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	// Without an explicit URL, probe the address the config would serve on.
	if url == "" {
		cfg, err := config.Load(getConfigPath(configFlag))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		url = fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runAudit(ctx context.Context, args []string) error {
	var configFlag, tool string
	limit := 20
	showUsage := false
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" || arg == "-config":
			if i+1 >= len(args) {
				return fmt.Errorf("--config requires a value")
			}
			configFlag = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			configFlag = strings.TrimPrefix(arg, "--config=")
		case arg == "--tool" || arg == "-tool":
			if i+1 >= len(args) {
				return fmt.Errorf("--tool requires a value")
			}
			tool = args[i+1]
			i++
		case strings.HasPrefix(arg, "--tool="):
			tool = strings.TrimPrefix(arg, "--tool=")
		case arg == "--limit" || arg == "-limit":
			if i+1 >= len(args) {
				return fmt.Errorf("--limit requires a value")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return fmt.Errorf("parsing --limit: %w", err)
			}
			limit = n
			i++
		case strings.HasPrefix(arg, "--limit="):
			n, err := strconv.Atoi(strings.TrimPrefix(arg, "--limit="))
			if err != nil {
				return fmt.Errorf("parsing --limit: %w", err)
			}
			limit = n
		case arg == "--usage" || arg == "-usage":
			showUsage = true
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	cfg, err := config.Load(getConfigPath(configFlag))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Database.Path == ":memory:" {
		return fmt.Errorf("database.path is :memory:; audit needs a file-backed database")
	}

	// Keep store logging off the terminal; this command prints records.
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.NewSQLiteStore(cfg.Database.Path, quiet)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if showUsage {
		return printUsageRecords(ctx, st, limit)
	}
	return printToolCalls(ctx, st, tool, limit)
}

func printToolCalls(ctx context.Context, st *store.SQLiteStore, tool string, limit int) error {
	filter := store.ToolCallFilter{Limit: limit}
	if tool != "" {
		filter.Tool = &tool
	}

	calls, err := st.ListToolCalls(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing tool calls: %w", err)
	}
	if len(calls) == 0 {
		fmt.Println("no tool calls recorded")
		return nil
	}

	gray := color.New(color.FgHiBlack)
	red := color.New(color.FgRed)
	for _, call := range calls {
		gray.Printf("%s  ", call.CreatedAt.Format(time.RFC3339))
		fmt.Printf("%-12s %8s  ", call.Tool, call.Duration.Round(time.Millisecond))
		if call.IsError {
			red.Print("error")
		} else {
			fmt.Print("ok")
		}
		if call.SessionID != "" {
			gray.Printf("  session=%s", call.SessionID)
		}
		fmt.Println()
	}

	totals, err := st.ToolCallTotals(ctx)
	if err != nil {
		return fmt.Errorf("reading totals: %w", err)
	}
	fmt.Println()
	gray.Printf("%d calls recorded, %d errors\n", totals.Calls, totals.Errors)
	return nil
}

func printUsageRecords(ctx context.Context, st *store.SQLiteStore, limit int) error {
	records, err := st.ListUsage(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing usage: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("no usage recorded")
		return nil
	}

	gray := color.New(color.FgHiBlack)
	for _, u := range records {
		gray.Printf("%s  ", u.CreatedAt.Format(time.RFC3339))
		model := u.Model
		if model == "" {
			model = "-"
		}
		fmt.Printf("%-12s %-16s in=%-6d out=%-6d total=%d\n",
			u.Tool, model, u.InputTokens, u.OutputTokens, u.TotalTokens)
	}

	totals, err := st.UsageTotals(ctx)
	if err != nil {
		return fmt.Errorf("reading totals: %w", err)
	}
	fmt.Println()
	gray.Printf("%d records, %d input + %d output = %d tokens\n",
		totals.Records, totals.InputTokens, totals.OutputTokens, totals.TotalTokens)
	return nil
}
