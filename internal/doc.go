// Package internal contains the core implementation packages for docserve.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the docserve CLI tool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - build: Build orchestration and documentation builder execution
//   - config: Configuration management with validation
//   - errors: Build failure classification and HTML overlay generation
//   - hub: Broadcast of build updates to connected viewer sessions
//   - logging: Structured logging built on slog
//   - metrics: Prometheus instrumentation for builds and sessions
//   - server: HTTP server, WebSocket support, and reload injection
//   - version: Build-time version information
//   - watcher: File system monitoring with debouncing
//
// # Inter-Package Communication
//
// The watcher emits coalesced rebuild requests consumed by the build
// orchestrator; completed builds produce snapshots the hub broadcasts
// to browser sessions over the server's WebSocket endpoint.
package internal
