package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/luciancaetano/realtime"
	"github.com/luciancaetano/realtime/internal/logging"
	"github.com/luciancaetano/realtime/internal/metrics"
	"github.com/luciancaetano/realtime/internal/relay"
	"github.com/luciancaetano/realtime/ws"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 5 * time.Second

func main() {
	rootCmd := tailCmd()
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "realtime-tail: %v\n", err)
		os.Exit(1)
	}
}

type tailFlags struct {
	configPath  string
	url         string
	topics      []string
	events      []string
	params      map[string]string
	heartbeat   time.Duration
	async       bool
	metricsAddr string
	relay       bool
	redisAddr   string
}

func tailCmd() *cobra.Command {
	var flags tailFlags

	cmd := &cobra.Command{
		Use:   "realtime-tail",
		Short: "Subscribe to realtime channels and print their events",
		Long: `realtime-tail connects to a Phoenix-protocol realtime server, joins the
given topics and prints every matching event as one JSON line on stdout.

Settings can come from a TOML file (--config) and are overridden by flags.
Events can be republished to Redis pub/sub with --relay.`,
		Example: `  realtime-tail --url wss://example.com/realtime/v1/websocket \
      --param apikey=anon --topic realtime:public:todos --event INSERT`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runTail(ctx, cfg, cmd.OutOrStdout(), logging.New("realtime-tail", cmd.ErrOrStderr()))
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVarP(&flags.url, "url", "u", "", "Server URL (ws:// or wss://)")
	cmd.Flags().StringSliceVarP(&flags.topics, "topic", "t", nil, "Topic to join (repeatable)")
	cmd.Flags().StringSliceVarP(&flags.events, "event", "e", nil, "Event to print (repeatable, default INSERT,UPDATE,DELETE)")
	cmd.Flags().StringToStringVarP(&flags.params, "param", "p", nil, "Connection param as key=value (repeatable)")
	cmd.Flags().DurationVar(&flags.heartbeat, "heartbeat", 0, "Heartbeat interval (default 5s)")
	cmd.Flags().BoolVar(&flags.async, "async", false, "Run callbacks on their own goroutines")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&flags.relay, "relay", false, "Republish events to Redis pub/sub")
	cmd.Flags().StringVar(&flags.redisAddr, "redis-addr", "", "Redis address for --relay (default from REDIS_ADDR)")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "realtime-tail %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// resolveConfig layers defaults, the config file and explicitly set flags.
func resolveConfig(cmd *cobra.Command, flags tailFlags) (tailConfig, error) {
	cfg := defaultTailConfig()

	if flags.configPath != "" {
		loaded, err := loadTailConfig(flags.configPath, cfg)
		if err != nil {
			return tailConfig{}, err
		}
		cfg = loaded
	}

	set := cmd.Flags().Changed
	if set("url") {
		cfg.URL = flags.url
	}
	if set("topic") {
		cfg.Topics = normalizeList(flags.topics)
	}
	if set("event") {
		cfg.Events = normalizeList(flags.events)
	}
	if set("param") {
		if cfg.Params == nil {
			cfg.Params = map[string]any{}
		}
		for k, v := range flags.params {
			cfg.Params[k] = v
		}
	}
	if set("heartbeat") {
		cfg.Heartbeat = flags.heartbeat
	}
	if set("async") {
		cfg.Async = flags.async
	}
	if set("metrics-addr") {
		cfg.MetricsAddr = flags.metricsAddr
	}
	if set("relay") {
		cfg.Relay = flags.relay
	}
	if set("redis-addr") {
		cfg.RedisAddr = flags.redisAddr
	}

	if err := cfg.validate(); err != nil {
		return tailConfig{}, err
	}
	return cfg, nil
}

func runTail(ctx context.Context, cfg tailConfig, out io.Writer, logger zerolog.Logger) error {
	reg := metrics.NewRegistry()
	clientMetrics := metrics.NewClientMetrics(reg)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
	}

	var redisRelay *relay.RedisRelay
	if cfg.Relay {
		relayCfg := relay.ConfigFromEnv()
		if cfg.RedisAddr != "" {
			relayCfg.Addr = cfg.RedisAddr
		}
		redisRelay = relay.NewRedisRelay(relayCfg, logger)
		if err := redisRelay.Start(ctx); err != nil {
			redisRelay.Stop()
			return fmt.Errorf("start relay: %w", err)
		}
		defer redisRelay.Stop()
	}

	wsCfg := ws.NewConfig(cfg.URL, cfg.Params, cfg.Heartbeat)
	wsCfg.Logger = logger
	wsCfg.Metrics = clientMetrics
	if cfg.Async {
		wsCfg.Dispatch = ws.AsyncDispatch
	}

	conn := ws.New(wsCfg)
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		conn.Close(closeCtx)
	}()

	printer := newPrinter(out)
	for _, topic := range cfg.Topics {
		ch, err := conn.SetChannel(topic)
		if err != nil {
			return err
		}
		for _, event := range cfg.Events {
			ch.On(event, printer(topic, event))
		}
		if redisRelay != nil {
			redisRelay.Attach(ch, cfg.Events...)
		}
		if err := ch.Join(ctx); err != nil {
			return err
		}
		logger.Info().Str("topic", topic).Strs("events", cfg.Events).Msg("joined channel")
	}

	err := conn.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// eventLine is the JSON shape printed for every received event
type eventLine struct {
	Time    time.Time        `json:"time"`
	Topic   string           `json:"topic"`
	Event   string           `json:"event"`
	Payload realtime.Payload `json:"payload"`
}

// newPrinter returns a factory of callbacks that write one JSON line per
// event to out. Writes are serialised so async dispatch cannot interleave.
func newPrinter(out io.Writer) func(topic, event string) realtime.Callback {
	var mu sync.Mutex
	enc := json.NewEncoder(out)

	return func(topic, event string) realtime.Callback {
		return func(payload realtime.Payload) {
			mu.Lock()
			defer mu.Unlock()
			enc.Encode(eventLine{
				Time:    time.Now().UTC(),
				Topic:   topic,
				Event:   event,
				Payload: payload,
			})
		}
	}
}
