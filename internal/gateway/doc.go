// Package gateway assembles the seer-gateway server components.
//
// # Overview
//
// The gateway package is the composition root. It owns the telemetry store,
// the provider client and poller, the think-tool client, the chat
// orchestrator, the tool registry, and the MCP HTTP server, and it wires
// them together from a single configuration.
//
// # Wiring
//
// New builds components in dependency order:
//
//	store -> provider client -> poller -> think tool -> orchestrator
//	      -> tool registry -> MCP server -> HTTP mux
//
// Every tool handler is wrapped by a recorder before registration, so each
// invocation lands in the store with its duration, error flag, and session
// id. The recorder also serves the orchestrator as its usage sink, storing
// one token-usage sample per completed provider turn.
//
// # HTTP Surface
//
//   - POST /mcp - JSON-RPC 2.0 endpoint (see internal/mcp)
//   - GET /mcp - transport discovery
//   - GET /health - liveness check
//   - GET /diagnostics - non-secret state report with store totals
//
// # Listeners
//
// With tailscale.enabled the gateway starts a tsnet node and serves directly
// on the tailnet: plain HTTP on :80, Tailscale-provisioned TLS on :443 when
// tailscale.https is set, or a public Funnel listener when tailscale.funnel
// is set. Otherwise it binds a plain TCP listener on server.http_addr.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
// Run blocks until the context is canceled or the server fails, then
// performs a graceful shutdown with a five second budget. Shutdown errors
// are aggregated, not short-circuited.
package gateway
