// Package config loads typed configuration from environment variables with
// github.com/caarlos0/env, reading an optional .env file through godotenv.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// Each package declares its own Config struct with env/envDefault tags.
package config
