package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// fileConfig is the TOML config file layout. Durations are Go duration
// strings ("30m", "15s").
type fileConfig struct {
	Port            int    `toml:"port"`
	ListenHost      string `toml:"listen_host"`
	Mode            string `toml:"mode"`
	LogFormat       string `toml:"log_format"`
	LogLevel        string `toml:"log_level"`
	ShutdownTimeout string `toml:"shutdown_timeout"`

	SessionSweepInterval string `toml:"session_sweep_interval"`
	SessionMaxAge        string `toml:"session_max_age"`

	OutboundQueueLimit       int    `toml:"outbound_queue_limit"`
	MaxSignalingMessageBytes int64  `toml:"max_signaling_message_bytes"`
	SignalingWSPingInterval  string `toml:"signaling_ws_ping_interval"`
	SignalingWSIdleTimeout   string `toml:"signaling_ws_idle_timeout"`

	AllowedOrigins []string `toml:"allowed_origins"`

	ICE fileICEConfig `toml:"ice"`
}

// fileICEConfig holds either URL lists or full [[ice.servers]] tables; the
// tables win when both are present.
type fileICEConfig struct {
	Servers        []iceServerEntry `toml:"servers"`
	StunURLs       []string         `toml:"stun_urls"`
	TurnURLs       []string         `toml:"turn_urls"`
	TurnUsername   string           `toml:"turn_username"`
	TurnCredential string           `toml:"turn_credential"`
}

// configFileValues is what a config file contributes: scalar settings keyed
// by the env var they sit beneath, and any [[ice.servers]] tables.
type configFileValues struct {
	values     map[string]string
	iceServers []iceServerEntry
}

// readConfigFile decodes path. Keys the file leaves out are absent from the
// result so env vars and defaults still apply.
func readConfigFile(path string) (configFileValues, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return configFileValues{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return configFileValues{}, fmt.Errorf("load config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	out := make(map[string]string)
	set := func(key, envVar, value string) {
		if meta.IsDefined(strings.Split(key, ".")...) {
			out[envVar] = value
		}
	}

	set("port", envVarPort, strconv.Itoa(raw.Port))
	set("listen_host", envVarListenHost, raw.ListenHost)
	set("mode", envVarMode, raw.Mode)
	set("log_format", envVarLogFormat, raw.LogFormat)
	set("log_level", envVarLogLevel, raw.LogLevel)
	set("shutdown_timeout", envVarShutdownTimeout, raw.ShutdownTimeout)
	set("session_sweep_interval", envVarSessionSweepInterval, raw.SessionSweepInterval)
	set("session_max_age", envVarSessionMaxAge, raw.SessionMaxAge)
	set("outbound_queue_limit", envVarOutboundQueueLimit, strconv.Itoa(raw.OutboundQueueLimit))
	set("max_signaling_message_bytes", envVarMaxSignalingMessageBytes, strconv.FormatInt(raw.MaxSignalingMessageBytes, 10))
	set("signaling_ws_ping_interval", envVarSignalingWSPingInterval, raw.SignalingWSPingInterval)
	set("signaling_ws_idle_timeout", envVarSignalingWSIdleTimeout, raw.SignalingWSIdleTimeout)
	set("allowed_origins", envVarAllowedOrigins, strings.Join(raw.AllowedOrigins, ","))
	set("ice.stun_urls", envStunURLs, strings.Join(raw.ICE.StunURLs, ","))
	set("ice.turn_urls", envTurnURLs, strings.Join(raw.ICE.TurnURLs, ","))
	set("ice.turn_username", envTurnUsername, raw.ICE.TurnUsername)
	set("ice.turn_credential", envTurnCredential, raw.ICE.TurnCredential)

	file := configFileValues{values: out}
	if meta.IsDefined("ice", "servers") {
		file.iceServers = raw.ICE.Servers
		if file.iceServers == nil {
			file.iceServers = []iceServerEntry{}
		}
	}
	return file, nil
}
