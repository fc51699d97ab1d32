// Package store persists endpoint definitions between restarts. Entries are
// keyed by endpoint name and hold the period, method, URL and the optional
// retry fields. Two backends are provided: a YAML file and Redis hashes.
package store
