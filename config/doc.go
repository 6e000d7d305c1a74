// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files. It supports configuration for server
// transports, runner backends and limits, the AMQP queue, metrics, and
// language-specific settings.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Runner backend: %s\n", cfg.Runner.Backend)
package config
