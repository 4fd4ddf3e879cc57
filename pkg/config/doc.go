// Package config loads typed settings from environment variables.
//
// Every infrastructure package exposes a Config struct tagged for
// github.com/caarlos0/env (MONGODB_*, REDIS_*, HTTP_*, SHOPIFY_*, BILLING_*).
// Load parses such a struct once per type and caches it, so packages can call
// it independently without re-reading the environment:
//
//	var mongoCfg mongo.Config
//	config.MustLoad(&mongoCfg)
//
// A .env file in the working directory is loaded on first use via
// github.com/joho/godotenv. Values already present in the environment win.
package config
