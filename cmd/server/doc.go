// Package main is the entry point for the runbox execution server.
//
// The runbox server executes batches of untrusted programs (Python, Node.js,
// Go, C++) in isolated sandboxes and reports ordered per-program results.
// Batches arrive over AMQP or over MCP (stdio or HTTP) depending on
// configuration.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
