/*
Package log provides structured logging for wsomgr using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("reconciler")               │          │
	│  │  - WithManagerName("manager-1")              │          │
	│  │  - WithServiceName("web")                    │          │
	│  │  - WithVmName("wso-m1-wrk-web-ab12")          │          │
	│  │  - WithToken("...")                          │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │  {"level":"info","component":"reconciler",  │          │
	│  │   "time":"...","message":"plan committed"}  │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	log.Info("wsomgr manager starting")

	recLog := log.WithComponent("reconciler")
	recLog.Info().Str("primary", st.Name).Msg("elected primary")

	vmLog := log.WithVmName(w.Name())
	vmLog.Error().Err(err).Msg("failed to create domain")

# Integration Points

This package is used by every other wsomgr package: pkg/repository logs
watch-loop reconnects, pkg/heart logs beat failures, pkg/reconciler logs
planning decisions, pkg/vmreconciler logs domain lifecycle actions, and
pkg/api logs request handling.

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces

Don't:
  - Log secrets (manager tokens, connection strings)
  - Use Debug level in production
  - Concatenate strings into the message instead of using fields
*/
package log
