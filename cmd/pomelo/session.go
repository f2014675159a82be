package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"math"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vango-dev/pomelo/internal/config"
	"github.com/vango-dev/pomelo/internal/errors"
	"github.com/vango-dev/pomelo/pkg/client"
	"github.com/vango-dev/pomelo/pkg/transport"
)

// connFlags are the persistent flags shared by every command that connects.
type connFlags struct {
	configPath string
	host       string
	port       int
	transport  string
	path       string
	timeout    string
	reconnect  bool
	verbose    bool
	noColor    bool
}

func (f *connFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "Path to pomelo.json (default: search from the working directory)")
	pf.StringVarP(&f.host, "host", "H", "", "Server host (default from pomelo.json)")
	pf.IntVarP(&f.port, "port", "p", 0, "Connector port (default from pomelo.json)")
	pf.StringVarP(&f.transport, "transport", "t", "", `Transport: "ws", "wss" or "tcp"`)
	pf.StringVar(&f.path, "path", "", "WebSocket path, e.g. /ws")
	pf.StringVar(&f.timeout, "timeout", "", "How long to wait for the handshake and for responses")
	pf.BoolVar(&f.reconnect, "reconnect", false, "Reconnect after unsolicited closes")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "Log protocol activity to stderr")
	pf.BoolVar(&f.noColor, "no-color", false, "Disable colored error output")
}

// load resolves the configuration: an explicit --config file, else the
// nearest pomelo.json, else defaults; flags override all of them.
func (f *connFlags) load(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, err = config.LoadFromWorkingDir()
		if errors.CodeOf(err) == errors.CodeMissingConfig {
			cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = f.host
	}
	if flags.Changed("port") {
		cfg.Port = f.port
	}
	if flags.Changed("transport") {
		cfg.Transport = strings.ToLower(f.transport)
	}
	if flags.Changed("path") {
		cfg.Path = f.path
	}
	if flags.Changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if flags.Changed("reconnect") {
		cfg.Reconnect.Enabled = f.reconnect
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *connFlags) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("component", "pomelo")
}

// newSession builds a client session from cfg. reg may be nil.
func newSession(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*client.Session, error) {
	user, err := cfg.User()
	if err != nil {
		return nil, err
	}

	topts := []transport.Option{
		transport.WithLogger(logger),
		transport.WithDialTimeout(cfg.TimeoutDuration()),
	}
	var factory transport.Factory
	if cfg.Transport == "tcp" {
		factory = transport.NewTCP(topts...)
	} else {
		factory = transport.NewWebSocket(topts...)
	}

	path := cfg.Path
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	opts := []client.Option{
		client.WithLogger(logger),
		client.WithTransport(factory),
		client.WithURLBuilder(client.SchemeURLBuilder(cfg.Transport, path)),
		client.WithReconnect(cfg.Reconnect.Enabled),
		client.WithMaxReconnectAttempts(cfg.Reconnect.MaxAttempts),
		client.WithReconnectDelay(cfg.BaseDelay()),
		client.WithMaxReconnectDelay(cfg.MaxDelay()),
		client.WithHeartbeatGapThreshold(cfg.GapThreshold()),
		client.WithClientInfo(cfg.Client.Type, cfg.Client.Version),
		client.WithUser(user),
	}
	if cfg.RateLimit > 0 {
		burst := int(math.Ceil(cfg.RateLimit))
		opts = append(opts, client.WithSendRateLimit(cfg.RateLimit, burst))
	}
	if reg != nil {
		opts = append(opts, client.WithMetrics(reg, "pomelo"))
	}

	return client.New(opts...), nil
}

// dial connects s and waits for the handshake. The first session error
// before readiness aborts the wait.
func dial(ctx context.Context, s *client.Session, cfg *config.Config) error {
	failed := make(chan error, 1)
	unsubscribe := s.Subscribe(client.EventError, func(ev client.Event) {
		select {
		case failed <- ev.Err:
		default:
		}
	})
	defer unsubscribe()

	if err := s.Connect(cfg.Host, cfg.Port); err != nil {
		return notConnected(cfg, err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.TimeoutDuration())
	defer cancel()

	ready := make(chan error, 1)
	go func() { ready <- s.WaitReady(ctx) }()

	select {
	case err := <-ready:
		if err != nil {
			return notConnected(cfg, err)
		}
		return nil
	case err := <-failed:
		cancel()
		return notConnected(cfg, err)
	}
}

func notConnected(cfg *config.Config, err error) error {
	var pe *errors.Error
	if stderrors.As(err, &pe) && pe.Code != errors.CodeConnectionFailed {
		return err
	}
	return errors.New(errors.CodeNotConnected).
		WithDetail("Could not complete the handshake with " + cfg.URL()).
		WithSuggestion("Check that the server is running and that --host, --port and --transport match its connector").
		Wrap(err)
}

// parsePayload returns the optional JSON payload argument, {} when absent.
func parsePayload(args []string) (json.RawMessage, error) {
	if len(args) == 0 || args[0] == "" {
		return json.RawMessage("{}"), nil
	}
	raw := json.RawMessage(args[0])
	if !json.Valid(raw) {
		return nil, errors.New(errors.CodeInvalidPayload).
			WithDetail("Payload " + args[0] + " is not valid JSON").
			WithExample(`pomelo request connector.entryHandler.entry '{"uid":"1"}'`)
	}
	return raw, nil
}
