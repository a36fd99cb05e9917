// Package cmd implements the command-line interface for workspace-agent.
//
// This package provides the following commands:
//   - serve: Start the HTTP API (Google sign-in and slot finding)
//   - mcp: Start the MCP server for AI assistants
//   - slots: Find slots offline from an .ics or JSON file of busy times
//   - version: Display version information
//
// Flags of serve and mcp fall back to environment variables when they are
// not set on the command line.
package cmd
