// Package endpoint defines the configuration of a heartbeat target and its
// optional retry policy. Values are validated on construction and never
// mutated afterwards.
package endpoint
