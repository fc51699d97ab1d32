package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/angeloszaimis/http-heartbeat/internal/endpoint"
	"github.com/angeloszaimis/http-heartbeat/internal/heartbeat"
	"github.com/angeloszaimis/http-heartbeat/internal/notify"
	"github.com/angeloszaimis/http-heartbeat/internal/registry"
)

type Outcome string

const (
	Success          Outcome = "success"
	AlreadyExists    Outcome = "already_exists"
	InvalidName      Outcome = "invalid_name"
	InvalidInterval  Outcome = "invalid_interval"
	InvalidMethod    Outcome = "invalid_method"
	InvalidURL       Outcome = "invalid_url"
	NotFound         Outcome = "not_found"
	AlreadyCancelled Outcome = "already_cancelled"
	InvalidPolicy    Outcome = "invalid_policy"
	InvalidArgs      Outcome = "invalid_args"
	Unknown          Outcome = "unknown"
	Help             Outcome = "help"
)

// Reply is what a command prints back to whoever issued it.
type Reply struct {
	Outcome Outcome  `json:"outcome"`
	Lines   []string `json:"lines"`
}

func (r Reply) String() string {
	return strings.Join(r.Lines, "\n")
}

// Registry is the part of the registry the commands drive.
type Registry interface {
	Add(ctx context.Context, cfg endpoint.Config) (*heartbeat.Task, error)
	Remove(ctx context.Context, name string) error
	SetRetryPolicy(ctx context.Context, name string, secondsPerRetry, maxRetries int) error
	Get(name string) (registry.Entry, bool)
	List() []registry.Entry
}

type Console struct {
	registry Registry
	notifier notify.Notifier
	logger   *slog.Logger
}

func New(reg Registry, notifier notify.Notifier, logger *slog.Logger) *Console {
	if notifier == nil {
		notifier = notify.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Console{
		registry: reg,
		notifier: notifier,
		logger:   logger,
	}
}

// HelpLines lists the available commands.
func HelpLines() []string {
	return []string{
		"Commands:",
		"- list",
		"- delete <name>",
		"- setretries <name> <num retries> <seconds per retry>",
		"- add <name> <seconds-per> <" + strings.Join(endpoint.Methods, "|") + "> <URL>",
	}
}

// Execute parses one command line and runs it.
func (c *Console) Execute(ctx context.Context, line string) Reply {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return c.report("", reply(Help, HelpLines()...))
	}

	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "help":
		return c.report("", reply(Help, HelpLines()...))
	case "add":
		if len(args) != 4 {
			return c.report("", arity())
		}
		return c.Add(ctx, args[0], args[1], args[2], args[3])
	case "delete":
		if len(args) != 1 {
			return c.report("", arity())
		}
		return c.Delete(ctx, args[0])
	case "setretries":
		if len(args) != 3 {
			return c.report("", arity())
		}
		return c.SetRetries(ctx, args[0], args[1], args[2])
	case "list":
		return c.List()
	default:
		return c.report("", reply(Unknown, append([]string{"Unknown command."}, HelpLines()...)...))
	}
}

// Add validates the arguments in order (duplicate name, interval, method,
// URL) and registers the endpoint.
func (c *Console) Add(ctx context.Context, name, interval, method, rawURL string) Reply {
	name = endpoint.NormalizeName(name)

	if _, exists := c.registry.Get(name); exists {
		return c.report(name, reply(AlreadyExists,
			"A scheduled request of that name has already been created. Use delete <name> to remove it."))
	}

	seconds, err := endpoint.ParseInterval(interval)
	if err != nil {
		return c.report(name, reply(InvalidInterval, "Invalid second value."))
	}

	cfg, err := endpoint.New(name, seconds, method, rawURL)
	if err != nil {
		return c.report(name, configFailure(err))
	}

	if _, err := c.registry.Add(ctx, cfg); err != nil {
		if errors.Is(err, registry.ErrAlreadyExists) {
			return c.report(name, reply(AlreadyExists,
				"A scheduled request of that name has already been created. Use delete <name> to remove it."))
		}
		c.logger.Error("Add failed", slog.String("endpoint", name), slog.Any("err", err))
		return c.report(name, reply(InvalidArgs, "Could not schedule request: "+err.Error()))
	}

	return c.report(name, reply(Success, "Added"))
}

func (c *Console) Delete(ctx context.Context, name string) Reply {
	name = endpoint.NormalizeName(name)

	err := c.registry.Remove(ctx, name)
	switch {
	case err == nil:
		return c.report(name, reply(Success, "Canceled"))
	case errors.Is(err, registry.ErrNotFound):
		return c.report(name, reply(NotFound, "No scheduled task of that name."))
	case errors.Is(err, heartbeat.ErrAlreadyCancelled):
		return c.report(name, reply(AlreadyCancelled, "Already canceled"))
	default:
		c.logger.Error("Delete failed", slog.String("endpoint", name), slog.Any("err", err))
		return c.report(name, reply(InvalidArgs, "Could not cancel: "+err.Error()))
	}
}

// SetRetries takes the retry count before the delay, as typed on the
// command line.
func (c *Console) SetRetries(ctx context.Context, name, numRetries, secondsPerRetry string) Reply {
	name = endpoint.NormalizeName(name)

	if _, exists := c.registry.Get(name); !exists {
		return c.report(name, reply(NotFound, "Could not find task. List tasks with: list"))
	}

	retries, err := strconv.Atoi(strings.TrimSpace(numRetries))
	if err != nil {
		return c.report(name, reply(InvalidArgs, "Invalid retries value."))
	}

	seconds, err := strconv.Atoi(strings.TrimSpace(secondsPerRetry))
	if err != nil {
		return c.report(name, reply(InvalidArgs, "Invalid second value."))
	}

	err = c.registry.SetRetryPolicy(ctx, name, seconds, retries)
	if err == nil {
		return c.report(name, reply(Success, "Set."))
	}

	if errors.Is(err, registry.ErrNotFound) {
		return c.report(name, reply(NotFound, "Could not find task. List tasks with: list"))
	}

	var perr *endpoint.PolicyError
	if errors.As(err, &perr) {
		switch perr.Reason {
		case endpoint.PolicyTooLong:
			return c.report(name, reply(InvalidPolicy, "The retries take longer than the set periodic time."))
		case endpoint.PolicyNegative:
			return c.report(name, reply(InvalidPolicy, "You may not use negative values for retries."))
		case endpoint.PolicyZeroDelay:
			return c.report(name, reply(InvalidPolicy, "Seconds per retry must be positive when retries are enabled."))
		}
	}

	return c.report(name, reply(InvalidPolicy, err.Error()))
}

func (c *Console) List() Reply {
	entries := c.registry.List()

	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, fmt.Sprintf("Currently scheduled requests [%d]:", len(entries)))
	for _, e := range entries {
		lines = append(lines, FormatEntry(e))
	}

	return c.report("", reply(Success, lines...))
}

// FormatEntry renders one line of the list command.
func FormatEntry(e registry.Entry) string {
	if e.Policy == nil {
		return e.Config.String()
	}
	return e.Config.String() + ", " + e.Policy.String()
}

func (c *Console) report(name string, r Reply) Reply {
	level := slog.LevelInfo
	if r.Outcome != Success && r.Outcome != Help {
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, "Command",
		slog.String("endpoint", name),
		slog.String("outcome", string(r.Outcome)))

	if len(r.Lines) > 0 {
		c.notifier.Notify(notify.Event{
			Kind:     notify.KindCommand,
			Endpoint: name,
			Message:  r.Lines[0],
		})
	}
	return r
}

func configFailure(err error) Reply {
	switch {
	case errors.Is(err, endpoint.ErrInvalidName):
		return reply(InvalidName, "Invalid name. Names may not contain spaces or dots.")
	case errors.Is(err, endpoint.ErrInvalidInterval):
		return reply(InvalidInterval, "Invalid second value.")
	case errors.Is(err, endpoint.ErrInvalidMethod):
		return reply(InvalidMethod, "Invalid method. Use one of "+strings.Join(endpoint.Methods, ", ")+".")
	case errors.Is(err, endpoint.ErrInvalidURL):
		return reply(InvalidURL, "Invalid URL.")
	default:
		return reply(InvalidArgs, err.Error())
	}
}

func reply(outcome Outcome, lines ...string) Reply {
	return Reply{Outcome: outcome, Lines: lines}
}

func arity() Reply {
	return reply(InvalidArgs, append([]string{"Incorrect number of args"}, HelpLines()...)...)
}
