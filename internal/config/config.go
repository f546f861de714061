package config

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	flag "github.com/spf13/pflag"

	"github.com/demendet/Stunserver/internal/origin"
)

const (
	envVarPort            = "PORT"
	envVarListenHost      = "SIGNALING_LISTEN_HOST"
	envVarConfigFile      = "SIGNALING_CONFIG"
	envVarMode            = "SIGNALING_MODE"
	envVarLogFormat       = "SIGNALING_LOG_FORMAT"
	envVarLogLevel        = "SIGNALING_LOG_LEVEL"
	envVarShutdownTimeout = "SIGNALING_SHUTDOWN_TIMEOUT"

	// Session lifecycle.
	envVarSessionSweepInterval = "SESSION_SWEEP_INTERVAL"
	envVarSessionMaxAge        = "SESSION_MAX_AGE"

	// Signaling WebSocket hardening. All of these default to off so the
	// server behaves like a plain relay unless told otherwise.
	envVarOutboundQueueLimit       = "OUTBOUND_QUEUE_LIMIT"
	envVarMaxSignalingMessageBytes = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarSignalingWSPingInterval  = "SIGNALING_WS_PING_INTERVAL"
	envVarSignalingWSIdleTimeout   = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarAllowedOrigins           = "ALLOWED_ORIGINS"

	DefaultPort                           = 3000
	DefaultListenHost                     = "0.0.0.0"
	DefaultShutdown                       = 15 * time.Second
	DefaultSessionSweepInterval           = 30 * time.Minute
	DefaultSessionMaxAge                  = 30 * time.Minute
	DefaultMaxSignalingMessageBytes       = int64(1 << 20) // 1MiB
	DefaultMode                      Mode = ModeDev
)

const (
	flagConfig = "config"

	flagSignalingWSPingInterval = "signaling-ws-ping-interval"
	flagSignalingWSIdleTimeout  = "signaling-ws-idle-timeout"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenHost string
	Port       int
	// ConfigFile is the TOML file values were read from, if any.
	ConfigFile string

	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	SessionSweepInterval time.Duration
	SessionMaxAge        time.Duration

	// OutboundQueueLimit caps queued outbound messages per client. Zero means
	// unbounded.
	OutboundQueueLimit       int
	MaxSignalingMessageBytes int64
	// SignalingWSPingInterval and SignalingWSIdleTimeout are either both zero
	// (keepalive disabled) or both set with ping < idle.
	SignalingWSPingInterval time.Duration
	SignalingWSIdleTimeout  time.Duration
	// AllowedOrigins restricts browser Origins on the signaling WebSocket.
	// Empty or "*" accepts any origin.
	AllowedOrigins []string

	ICEServers []webrtc.ICEServer

	iceConfigErr error
}

// ICEConfigError reports why the ICE server settings were rejected. A bad
// ICE list does not stop the signaling server; it only fails readiness.
func (c Config) ICEConfigError() error {
	return c.iceConfigErr
}

func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.Port))
}

// KeepaliveEnabled reports whether signaling WebSockets are pinged and closed
// when idle.
func (c Config) KeepaliveEnabled() bool {
	return c.SignalingWSPingInterval > 0 && c.SignalingWSIdleTimeout > 0
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(envLookup func(string) (string, bool), args []string) (Config, error) {
	configFile, err := configFileFromArgs(envLookup, args)
	if err != nil {
		return Config{}, err
	}
	lookup := envLookup
	var fileICEServers []iceServerEntry
	if configFile != "" {
		file, err := readConfigFile(configFile)
		if err != nil {
			return Config{}, err
		}
		lookup = layeredLookup(envLookup, lookupMap(file.values))
		fileICEServers = file.iceServers
	}

	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenHost := envOrDefault(lookup, envVarListenHost, DefaultListenHost)
	port, err := envIntOrDefault(lookup, envVarPort, DefaultPort)
	if err != nil {
		return Config{}, err
	}

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}
	sessionSweepInterval, err := envDurationOrDefault(lookup, envVarSessionSweepInterval, DefaultSessionSweepInterval)
	if err != nil {
		return Config{}, err
	}
	sessionMaxAge, err := envDurationOrDefault(lookup, envVarSessionMaxAge, DefaultSessionMaxAge)
	if err != nil {
		return Config{}, err
	}

	outboundQueueLimit, err := envIntOrDefault(lookup, envVarOutboundQueueLimit, 0)
	if err != nil {
		return Config{}, err
	}
	maxSignalingMessageBytes := DefaultMaxSignalingMessageBytes
	if raw, ok := lookup(envVarMaxSignalingMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxSignalingMessageBytes, raw, err)
		}
		maxSignalingMessageBytes = n
	}
	signalingWSPingInterval, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, 0)
	if err != nil {
		return Config{}, err
	}
	signalingWSIdleTimeout, err := envDurationOrDefault(lookup, envVarSignalingWSIdleTimeout, 0)
	if err != nil {
		return Config{}, err
	}

	allowedOrigins := envOrDefault(lookup, envVarAllowedOrigins, "")

	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, DefaultStunURLs)
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")

	fs := flag.NewFlagSet("p2p-signaling", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	fs.StringVar(&configFile, flagConfig, configFile, "TOML config file; values sit below env vars and flags (env "+envVarConfigFile+")")
	fs.IntVarP(&port, "port", "p", port, "HTTP listen port (env "+envVarPort+")")
	fs.StringVar(&listenHost, "listen-host", listenHost, "HTTP listen host (env "+envVarListenHost+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod (env "+envVarMode+")")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json (env "+envVarLogFormat+")")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error (env "+envVarLogLevel+")")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (env "+envVarShutdownTimeout+")")

	fs.DurationVar(&sessionSweepInterval, "session-sweep-interval", sessionSweepInterval, "Interval between session sweeps (env "+envVarSessionSweepInterval+")")
	fs.DurationVar(&sessionMaxAge, "session-max-age", sessionMaxAge, "Age bound used by the session sweep (env "+envVarSessionMaxAge+")")

	fs.IntVar(&outboundQueueLimit, "outbound-queue-limit", outboundQueueLimit, "Max queued outbound messages per client (0 = unbounded; env "+envVarOutboundQueueLimit+")")
	fs.Int64Var(&maxSignalingMessageBytes, "max-signaling-message-bytes", maxSignalingMessageBytes, "Max inbound signaling WS message size in bytes (env "+envVarMaxSignalingMessageBytes+")")
	fs.DurationVar(&signalingWSPingInterval, flagSignalingWSPingInterval, signalingWSPingInterval, "Send ping frames on signaling WebSocket connections at this interval (0 = off; env "+envVarSignalingWSPingInterval+")")
	fs.DurationVar(&signalingWSIdleTimeout, flagSignalingWSIdleTimeout, signalingWSIdleTimeout, "Close signaling WebSocket connections idle for this long (0 = off; env "+envVarSignalingWSIdleTimeout+")")

	fs.StringVar(&allowedOrigins, "allowed-origins", allowedOrigins, "Comma-separated browser origins allowed to connect; empty or * allows any (env "+envVarAllowedOrigins+")")

	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON advertised on /webrtc/ice (env "+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "Comma-separated STUN URLs (env "+envStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "Comma-separated TURN URLs (env "+envTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username (env "+envTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential (env "+envTurnCredential+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	if !envLogFormatSet && !fs.Changed("log-format") {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !fs.Changed("log-level") {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	if port < 1 || port > 65535 {
		return Config{}, fmt.Errorf("%s/--port must be in 1..65535, got %d", envVarPort, port)
	}
	if strings.TrimSpace(listenHost) == "" {
		return Config{}, fmt.Errorf("%s/--listen-host must not be empty", envVarListenHost)
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be > 0")
	}
	if sessionSweepInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--session-sweep-interval must be > 0", envVarSessionSweepInterval)
	}
	if sessionMaxAge <= 0 {
		return Config{}, fmt.Errorf("%s/--session-max-age must be > 0", envVarSessionMaxAge)
	}
	if outboundQueueLimit < 0 {
		return Config{}, fmt.Errorf("%s/--outbound-queue-limit must be >= 0", envVarOutboundQueueLimit)
	}
	if maxSignalingMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-message-bytes must be > 0", envVarMaxSignalingMessageBytes)
	}
	if signalingWSPingInterval < 0 || signalingWSIdleTimeout < 0 {
		return Config{}, fmt.Errorf("--%s and --%s must be >= 0", flagSignalingWSPingInterval, flagSignalingWSIdleTimeout)
	}
	if (signalingWSPingInterval > 0) != (signalingWSIdleTimeout > 0) {
		return Config{}, fmt.Errorf("%s and %s must be set together", envVarSignalingWSPingInterval, envVarSignalingWSIdleTimeout)
	}
	if signalingWSPingInterval > 0 && signalingWSPingInterval >= signalingWSIdleTimeout {
		return Config{}, fmt.Errorf("--%s must be < --%s", flagSignalingWSPingInterval, flagSignalingWSIdleTimeout)
	}

	origins := splitCommaSeparated(allowedOrigins)
	if _, err := origin.NewAllowList(origins); err != nil {
		return Config{}, fmt.Errorf("%s/--allowed-origins: %w", envVarAllowedOrigins, err)
	}

	cfg := Config{
		ListenHost:               strings.TrimSpace(listenHost),
		Port:                     port,
		ConfigFile:               configFile,
		Mode:                     mode,
		LogFormat:                logFormat,
		LogLevel:                 level,
		ShutdownTimeout:          shutdownTimeout,
		SessionSweepInterval:     sessionSweepInterval,
		SessionMaxAge:            sessionMaxAge,
		OutboundQueueLimit:       outboundQueueLimit,
		MaxSignalingMessageBytes: maxSignalingMessageBytes,
		SignalingWSPingInterval:  signalingWSPingInterval,
		SignalingWSIdleTimeout:   signalingWSIdleTimeout,
		AllowedOrigins:           origins,
	}

	iceServers, err := iceInputs{
		JSON:           iceServersJSON,
		FileServers:    fileICEServers,
		StunURLs:       stunURLs,
		TurnURLs:       turnURLs,
		TurnUsername:   turnUsername,
		TurnCredential: turnCredential,
	}.servers()
	if err != nil {
		cfg.iceConfigErr = err
	} else {
		cfg.ICEServers = iceServers
	}

	return cfg, nil
}

// configFileFromArgs resolves the config file path ahead of the main flag
// pass, since file values become flag defaults.
func configFileFromArgs(lookup func(string) (string, bool), args []string) (string, error) {
	path := envOrDefault(lookup, envVarConfigFile, "")

	fs := flag.NewFlagSet("p2p-signaling", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fs.ParseErrorsWhitelist.UnknownFlags = true
	// Keep --help for the main pass.
	fs.BoolP("help", "h", false, "")
	fs.StringVar(&path, flagConfig, path, "")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return strings.TrimSpace(path), nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg Config, w io.Writer) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(w, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// layeredLookup consults each lookup in order and returns the first non-empty
// value.
func layeredLookup(lookups ...func(string) (string, bool)) func(string) (string, bool) {
	return func(key string) (string, bool) {
		for _, lookup := range lookups {
			if v, ok := lookup(key); ok && v != "" {
				return v, true
			}
		}
		return "", false
	}
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}
