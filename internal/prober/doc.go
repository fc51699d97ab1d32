// Package prober performs a single heartbeat request and classifies the
// result. Redirects are not followed and only HTTP 200 counts as success.
package prober
