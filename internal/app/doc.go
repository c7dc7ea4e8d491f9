// Package app wires the authd process: configuration (TOML file plus
// AUTHCORE_* environment overrides), logging, storage backends, the engine
// and the HTTP server.
package app
