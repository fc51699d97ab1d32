// Package config loads the daemon configuration from config.yaml, a .env
// file and environment variables, and validates it. It covers the admin API
// address, logging, probe transport, endpoint storage, notifications and
// the stdin console.
package config
