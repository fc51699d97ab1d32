package endpoint

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrInvalidMethod   = errors.New("invalid method")
	ErrInvalidURL      = errors.New("invalid url")
)

// MaxInterval is the longest accepted period in seconds. It keeps the
// period representable as a time.Duration.
const MaxInterval = math.MaxInt32

// Methods lists the HTTP methods a heartbeat may use.
var Methods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodHead,
	http.MethodOptions,
	http.MethodPut,
	http.MethodDelete,
	http.MethodTrace,
}

// ConfigError reports a field rejected at the boundary. Err is one of the
// sentinel errors above and is what errors.Is matches against.
type ConfigError struct {
	Field  string
	Err    error
	Reason error
}

func (e *ConfigError) Error() string {
	if e.Reason == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Config is one heartbeat target. Name is always lower case and Method
// always upper case.
type Config struct {
	Name     string
	URL      *url.URL
	Method   string
	Interval int
}

// New normalizes and validates the given values.
func New(name string, intervalSeconds int, method, rawURL string) (Config, error) {
	name = NormalizeName(name)
	method = strings.ToUpper(strings.TrimSpace(method))

	if err := validation.Validate(name, validation.Required, validation.By(validateName)); err != nil {
		return Config{}, &ConfigError{Field: "name", Err: ErrInvalidName, Reason: err}
	}

	if err := validation.Validate(intervalSeconds, validation.Min(1), validation.Max(MaxInterval)); err != nil {
		return Config{}, &ConfigError{Field: "interval", Err: ErrInvalidInterval, Reason: err}
	}

	if err := validation.Validate(method, validation.Required, validation.In(toInterfaces(Methods)...)); err != nil {
		return Config{}, &ConfigError{Field: "method", Err: ErrInvalidMethod, Reason: err}
	}

	u, err := ParseURL(rawURL)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Name:     name,
		URL:      u,
		Method:   method,
		Interval: intervalSeconds,
	}, nil
}

// NormalizeName returns the registry key for a user supplied name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ParseInterval parses a textual period in seconds.
func ParseInterval(raw string) (int, error) {
	seconds, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &ConfigError{Field: "interval", Err: ErrInvalidInterval, Reason: err}
	}
	if err := validation.Validate(seconds, validation.Min(1), validation.Max(MaxInterval)); err != nil {
		return 0, &ConfigError{Field: "interval", Err: ErrInvalidInterval, Reason: err}
	}
	return seconds, nil
}

// ParseURL accepts absolute http and https URLs only.
func ParseURL(raw string) (*url.URL, error) {
	if err := validation.Validate(raw, validation.Required, validation.By(validateURL)); err != nil {
		return nil, &ConfigError{Field: "url", Err: ErrInvalidURL, Reason: err}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ConfigError{Field: "url", Err: ErrInvalidURL, Reason: err}
	}
	return u, nil
}

// Period is the time between two regular heartbeats, given the length of
// one configured second.
func (c Config) Period(unit time.Duration) time.Duration {
	return time.Duration(c.Interval) * unit
}

func (c Config) String() string {
	return fmt.Sprintf("Name: %s, period: %d, method: %s, URL: %s", c.Name, c.Interval, c.Method, c.URL)
}

func validateName(value interface{}) error {
	name, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	for _, r := range name {
		if unicode.IsSpace(r) || r == '.' {
			return validation.NewError("validation_invalid_name", "must not contain whitespace or dots")
		}
	}

	return nil
}

func validateURL(value interface{}) error {
	rawURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
