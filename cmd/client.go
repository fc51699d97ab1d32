package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/http-heartbeat/internal/command"
)

const clientTimeout = 10 * time.Second

var errCommandFailed = errors.New("command failed")

// clientCmd sends the text command to a running daemon and prints the reply.
func clientCmd(server *string, use, short string, nargs int) *cobra.Command {
	name := strings.Fields(use)[0]

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := strings.Join(append([]string{name}, args...), " ")

			reply, err := sendCommand(cmd.Context(), *server, line)
			if err != nil {
				return err
			}

			for _, l := range reply.Lines {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}

			if reply.Outcome != command.Success && reply.Outcome != command.Help {
				return fmt.Errorf("%w: %s", errCommandFailed, reply.Outcome)
			}
			return nil
		},
	}
}

func sendCommand(ctx context.Context, server, line string) (command.Reply, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, clientTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"command": line})
	if err != nil {
		return command.Reply{}, err
	}

	endpoint := strings.TrimRight(server, "/") + "/commands"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return command.Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return command.Reply{}, fmt.Errorf("contact daemon at %s: %w", server, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return command.Reply{}, fmt.Errorf("daemon answered %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var reply command.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return command.Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}
