// Package cmd implements the command-line interface of sKV. It provides a
// hierarchical command structure for running the server, talking to it as a
// client and inspecting region files offline.
//
// The package is organized into several subpackages:
//
//   - serve: Starts the server over a vector or file backed region
//   - data: Client commands (set, get, info, perf) for the data of principals
//   - inspect: Offline report and consistency check of a region file
//   - util: Shared flag, environment and factory helpers (internal use)
//
// Global flags (--serializer, --transport) and every command flag can also be
// set as environment variables with the SKV_ prefix, e.g. SKV_LOG_LEVEL=debug.
// .env and .env.local in the working directory are loaded first.
//
// See skv -help for a list of all commands.
package cmd
