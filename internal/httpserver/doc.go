// Package httpserver runs the admin API with a validated listen address and
// graceful shutdown.
package httpserver
