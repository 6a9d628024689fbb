// ABOUTME: Gateway wiring and lifecycle: store, provider, tools, MCP server.
// ABOUTME: Serves the HTTP surface on a TCP listener or a tsnet node.

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/seer-gateway/internal/chat"
	"github.com/2389/seer-gateway/internal/config"
	"github.com/2389/seer-gateway/internal/mcp"
	"github.com/2389/seer-gateway/internal/provider"
	"github.com/2389/seer-gateway/internal/store"
	"github.com/2389/seer-gateway/internal/think"
	"github.com/2389/seer-gateway/internal/tools"
	"github.com/2389/seer-gateway/internal/trace"
)

// Gateway owns the assembled server components and their lifecycle.
type Gateway struct {
	config      *config.Config
	store       store.Store
	registry    *tools.Registry
	mcpServer   *mcp.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// initStore opens the telemetry store from config.
func initStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// buildThinkTool constructs the think tool. Misconfiguration degrades to a
// disabled tool with a warning instead of failing startup.
func buildThinkTool(cfg *config.Config, logger *slog.Logger) (tools.Spec, tools.Handler) {
	enabled := cfg.Think.Enabled
	var client think.Capturer

	switch {
	case !enabled:
		logger.Info("think-tool disabled by configuration")
	case cfg.Think.URL == "":
		logger.Warn("think.url not set, think-tool will be disabled")
		enabled = false
	default:
		c, err := think.NewClient(think.Config{
			URL:        cfg.Think.URL,
			Timeout:    cfg.Think.Timeout,
			RetryLimit: cfg.Think.RetryLimit,
		}, logger)
		if err != nil {
			logger.Warn("failed to create think-tool client, think-tool will be disabled", "error", err)
			enabled = false
		} else {
			client = c
		}
	}

	return think.Tool(enabled, client)
}

// buildRegistry assembles the tool registry. Every handler is wrapped so the
// store sees each invocation.
func buildRegistry(cfg *config.Config, orch *chat.Orchestrator, thinkSpec tools.Spec, thinkHandler tools.Handler, rec *recorder, logger *slog.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry(logger)

	echoSpec, echoHandler := tools.EchoTool()
	if err := registry.Register(echoSpec, rec.wrap(echoSpec.Name, echoHandler)); err != nil {
		return nil, fmt.Errorf("registering echo: %w", err)
	}

	readSpec, readHandler := tools.ReadFileTool(cfg.Files.BaseDir)
	if err := registry.Register(readSpec, rec.wrap(readSpec.Name, readHandler)); err != nil {
		return nil, fmt.Errorf("registering read_file: %w", err)
	}

	chatSpec := chat.Spec()
	if err := registry.Register(chatSpec, rec.wrap(chatSpec.Name, orch.Handler())); err != nil {
		return nil, fmt.Errorf("registering chat: %w", err)
	}

	if err := registry.Register(thinkSpec, rec.wrap(thinkSpec.Name, thinkHandler)); err != nil {
		return nil, fmt.Errorf("registering think: %w", err)
	}

	return registry, nil
}

// New creates a Gateway with all components wired from the configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	providerClient := provider.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, logger)
	poller := provider.NewPoller(providerClient, provider.PollerConfig{
		Delay:          cfg.OpenAI.PollDelay,
		MaxPolls:       cfg.OpenAI.MaxPolls,
		MaxConcurrency: cfg.OpenAI.PollMaxConcurrency,
	}, logger)

	thinkSpec, thinkHandler := buildThinkTool(cfg, logger)
	rec := newRecorder(s, logger)

	orch := chat.NewOrchestrator(chat.OrchestratorConfig{
		Submitter:    providerClient,
		Awaiter:      poller,
		ThinkHandler: thinkHandler,
		ThinkEnabled: !thinkSpec.Hidden,
		Trace: trace.Settings{
			Enabled:  cfg.LangSmith.Enabled,
			Project:  cfg.LangSmith.Project,
			APIKey:   cfg.LangSmith.APIKey,
			Endpoint: cfg.LangSmith.BaseURL,
		},
		Usage:    rec,
		MaxTurns: cfg.Chat.MaxTurns,
	}, logger)

	registry, err := buildRegistry(cfg, orch, thinkSpec, thinkHandler, rec, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Registry:       registry,
		Logger:         logger,
		RequireSession: cfg.Session.Require,
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	gw := &Gateway{
		config:    cfg,
		store:     s,
		registry:  registry,
		mcpServer: mcpServer,
		logger:    logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	mcpServer.RegisterRoutes(mux)
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/diagnostics", gw.handleDiagnostics)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Run starts the gateway and blocks until the context is canceled or the
// server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// setupListener creates the HTTP listener based on configuration.
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr,
			)
		}
		return g.setupTailscaleListener(ctx)
	}

	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// startServer serves HTTP in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "seer-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListener starts a tsnet node and returns the HTTP listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	hostname := tsCfg.Hostname
	if hostname == "" {
		hostname = "seer-gateway"
	}

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	g.logTailscaleStatus(hostname, status)

	return g.createTailscaleHTTPListener(tsCfg)
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleHTTPListener creates the appropriate listener based on config.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener()
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the gateway and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
