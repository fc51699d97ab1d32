// Package handler implements the JSON admin API of the heartbeat daemon.
// It translates HTTP requests into commands and command outcomes into
// status codes.
package handler
