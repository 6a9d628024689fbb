// Package config handles configuration loading for seer-gateway.
//
// # Overview
//
// Configuration is environment-first: the gateway starts with built-in
// defaults, applies an optional YAML file, then applies environment variable
// overrides on top. A bare OPENAI_API_KEY is enough to run.
//
// # Environment Variables
//
// Core:
//
//	PORT                             HTTP listen port (default 8000)
//	MCP_REQUIRE_SESSION              require sessionId on MCP calls (default 1)
//	SEER_DB_PATH                     audit database path (default :memory:)
//	LOG_LEVEL / LOG_FORMAT           logging setup
//
// Provider:
//
//	OPENAI_API_KEY                   provider credential (checked lazily)
//	OPENAI_BASE_URL                  Responses API base URL
//	POLL_DELAY                       delay between response polls ("2s" or "2")
//	MAX_POLLS                        per-response poll cap
//	RESPONSES_POLL_MAX_CONCURRENCY   process-wide concurrent poll cap
//	MAX_TURNS                        chat orchestration turn cap
//
// Think tool:
//
//	THINK_TOOL_ENABLED               enable the upstream think tool
//	THINK_TOOL_URL                   upstream MCP endpoint
//	THINK_TOOL_TIMEOUT_MS            per-call timeout (bad values warn and
//	                                 fall back to 2000)
//	THINK_TOOL_RETRY_LIMIT           extra attempts after a failure
//
// LangSmith:
//
//	LANGSMITH_TRACING                enable run tracing
//	LANGSMITH_PROJECT                project name
//	LANGSMITH_API_KEY                API key
//	LANGSMITH_ENDPOINT               backend URL
//
// Boolean variables accept 1, true, yes, on (case-insensitive).
//
// # Configuration File
//
// An optional YAML file (the -config flag) covers the same settings plus the
// Tailscale listener. Values reference environment variables with ${VAR_NAME}
// syntax and durations use Go's time.ParseDuration format:
//
//	server:
//	  http_addr: "0.0.0.0:8000"
//
//	openai:
//	  api_key: "${OPENAI_API_KEY}"
//	  poll_delay: "2s"
//	  max_polls: 30
//
//	think:
//	  enabled: true
//	  url: "http://think-tool:8008/mcp"
//	  timeout: "2s"
//
//	tailscale:
//	  enabled: false
//	  hostname: "seer-gateway"
//	  auth_key: "${TS_AUTHKEY}"
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load(configPath) // path may be ""
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
