package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pomelo/internal/config"
)

func notifyCmd(flags *connFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify <route> [payload]",
		Short: "Send a notify",
		Long: `Connect and send one notify. Notifies get no response.

Examples:
  pomelo notify chat.chatHandler.send '{"content":"hello"}'`,
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
			return runNotify(cmd.Context(), cmd.OutOrStdout(), cfg, flags.logger(cmd), args[0], payload)
		},
	}

	return cmd
}

func runNotify(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger, route string, payload json.RawMessage) error {
	s, err := newSession(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	if err := dial(ctx, s, cfg); err != nil {
		return err
	}
	if err := s.Notify(route, payload); err != nil {
		return err
	}

	success(out, "Sent notify %s", route)
	return nil
}
