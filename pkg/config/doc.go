// Package config loads environment-driven configuration structs.
//
// Structs declare their variables with caarlos0/env tags. The first call to
// Load reads a .env file from the working directory when present (missing
// files are ignored), then parses the process environment. Each struct type
// is parsed once and cached for the lifetime of the process:
//
//	var cfg appstore.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
package config
