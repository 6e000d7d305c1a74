// Package main is the entry point for the runbox execution server.
//
// The runbox server stages untrusted program submissions into isolated
// working directories, executes them through a configurable sandbox backend
// (Docker, Podman, conty, or unconfined for development), and reports
// ordered per-program results. Batches arrive over AMQP or over MCP (stdio
// or HTTP) depending on configuration.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/logger"
	"github.com/isdmx/runbox/mcpserver"
	"github.com/isdmx/runbox/metrics"
	"github.com/isdmx/runbox/queue"
	"github.com/isdmx/runbox/sandbox"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Sandbox executor based on config
			sandbox.NewExecutor,

			// Transports
			mcpserver.New,
			queue.New,
		),

		// Start the metrics endpoint when enabled
		fx.Invoke(
			func(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) {
				if !cfg.Metrics.Enabled {
					return
				}
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						metrics.NewSystemMetrics().Collect(context.Background())
						go func() {
							if err := metrics.Serve(log, cfg.Metrics.Port); err != nil {
								log.Error("metrics server stopped", zap.Error(err))
							}
						}()
						return nil
					},
				})
			},
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, executor *sandbox.Executor, server *mcpserver.MCPServer, q *queue.Queue) {
				switch cfg.Server.Transport {
				case "amqp":
					consumeCtx, cancel := context.WithCancel(context.Background())
					lc.Append(fx.Hook{
						OnStart: func(ctx context.Context) error {
							if err := q.Connect(); err != nil {
								return err
							}
							go func() {
								if err := q.StartConsume(consumeCtx, executor); err != nil {
									log.Error("consumer stopped", zap.Error(err))
								}
							}()
							return nil
						},
						OnStop: func(ctx context.Context) error {
							cancel()
							q.Close()
							return nil
						},
					})
				case "stdio":
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}
