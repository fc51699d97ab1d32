package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Console writes one prefixed line per event.
type Console struct {
	mutex  sync.Mutex
	out    io.Writer
	prefix string
}

func NewConsole(out io.Writer, color bool) *Console {
	return &Console{
		out:    out,
		prefix: Prefix(out, color),
	}
}

func (c *Console) Notify(event Event) {
	c.Println(event.String())
}

// Println writes a prefixed line directly, bypassing any collector.
func (c *Console) Println(line string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	fmt.Fprintln(c.out, c.prefix+line)
}

// Prefix renders the console tag. Colors are only emitted when out is a
// terminal that supports them.
func Prefix(out io.Writer, color bool) string {
	if !color {
		return "[HttpHeartbeat] "
	}

	r := lipgloss.NewRenderer(out)
	bracket := r.NewStyle().Foreground(lipgloss.Color("12"))
	name := r.NewStyle().Foreground(lipgloss.Color("7"))

	return bracket.Render("[") + name.Render("HttpHeartbeat") + bracket.Render("]") + " "
}

// LogSink mirrors events into structured logs.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(event Event) {
	attrs := []any{slog.String("kind", string(event.Kind))}

	if event.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", event.Endpoint))
	}
	if event.StatusCode != 0 {
		attrs = append(attrs, slog.Int("status", event.StatusCode))
	}
	if event.Attempt != 0 {
		attrs = append(attrs, slog.Int("attempt", event.Attempt))
	}
	if event.RunID != "" {
		attrs = append(attrs, slog.String("run_id", event.RunID))
	}
	if event.Kind == KindEscalationConcluded {
		attrs = append(attrs, slog.Bool("recovered", event.Recovered))
	}
	if event.Err != nil {
		attrs = append(attrs, slog.Any("err", event.Err))
	}

	switch event.Kind {
	case KindHTTPError, KindTransportError, KindWarning, KindHeartbeatSkipped:
		s.logger.Warn(event.String(), attrs...)
	default:
		s.logger.Info(event.String(), attrs...)
	}
}
