// Package logger builds the application slog logger: text output for dev
// and staging, JSON for prod, every record tagged with the environment.
package logger
