package store

import (
	"context"
	"fmt"
)

const (
	fieldSeconds         = "seconds"
	fieldMethod          = "method"
	fieldURL             = "URL"
	fieldSecondsPerRetry = "seconds_per_retry"
	fieldNumRetries      = "num_retries"
)

// Record is one persisted endpoint. The retry fields are either both set or
// the endpoint has no retry policy.
type Record struct {
	Name            string `yaml:"-"`
	Seconds         int    `yaml:"seconds"`
	Method          string `yaml:"method"`
	URL             string `yaml:"URL"`
	SecondsPerRetry *int   `yaml:"seconds_per_retry,omitempty"`
	NumRetries      *int   `yaml:"num_retries,omitempty"`
}

func (r Record) HasPolicy() bool {
	return r.SecondsPerRetry != nil && r.NumRetries != nil
}

// WithPolicy returns a copy of r carrying the given retry fields.
func (r Record) WithPolicy(secondsPerRetry, numRetries int) Record {
	r.SecondsPerRetry = &secondsPerRetry
	r.NumRetries = &numRetries
	return r
}

func (r Record) String() string {
	if r.HasPolicy() {
		return fmt.Sprintf("%s(%ds %s %s, %d retries every %ds)", r.Name, r.Seconds, r.Method, r.URL, *r.NumRetries, *r.SecondsPerRetry)
	}
	return fmt.Sprintf("%s(%ds %s %s)", r.Name, r.Seconds, r.Method, r.URL)
}

// Store is the persistence collaborator of the registry.
type Store interface {
	// Load returns every persisted record, ordered by name.
	Load(ctx context.Context) ([]Record, error)
	// Save creates or replaces the record with the same name.
	Save(ctx context.Context, record Record) error
	// Delete removes the named record. Deleting a missing record is not an error.
	Delete(ctx context.Context, name string) error
}
