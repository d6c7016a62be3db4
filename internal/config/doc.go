// Package config provides configuration management for the orders service.
//
// Configuration is loaded from environment variables using the env package.
// All values have defaults suitable for local development against Redis.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
