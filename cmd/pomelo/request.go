package main

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pomelo/internal/config"
	"github.com/vango-dev/pomelo/internal/errors"
)

func requestCmd(flags *connFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request <route> [payload]",
		Short: "Send a request and print the response",
		Long: `Connect, send one request and print the response body as JSON.

The payload is a JSON document; it defaults to {}.

Examples:
  pomelo request gate.gateHandler.queryEntry '{"uid":"1"}'
  pomelo request connector.entryHandler.entry --port 3010 --timeout 5s`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayload(args[1:])
			if err != nil {
				return err
			}
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			return runRequest(cmd.Context(), cmd.OutOrStdout(), cfg, flags.logger(cmd), args[0], payload)
		},
	}

	return cmd
}

func runRequest(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger, route string, payload json.RawMessage) error {
	s, err := newSession(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	if err := dial(ctx, s, cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.TimeoutDuration())
	defer cancel()

	body, err := s.Call(ctx, route, payload)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return errors.New(errors.CodeRequestTimeout).
				WithDetail(fmt.Sprintf("No response to %s within %s", route, cfg.TimeoutDuration())).
				WithSuggestion("Raise --timeout or check the route name").
				Wrap(err)
		}
		return err
	}

	return printJSON(out, body)
}

// printJSON writes body indented when it is JSON and verbatim otherwise.
func printJSON(out io.Writer, body []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		buf.Reset()
		buf.Write(body)
	}
	buf.WriteByte('\n')
	_, err := out.Write(buf.Bytes())
	return err
}
