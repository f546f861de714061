package main

import (
	"log/slog"

	"github.com/demendet/Stunserver/internal/config"
)

const largeSignalingMessageBytes = 1 << 20

func logStartupWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.OutboundQueueLimit <= 0 {
		logger.Warn("startup warning: OUTBOUND_QUEUE_LIMIT is unset/0 (a slow client can queue unbounded outbound messages)",
			"warning_code", "outbound_queue_unbounded",
			"outbound_queue_limit", cfg.OutboundQueueLimit,
			"mode", cfg.Mode,
		)
	}

	if !cfg.KeepaliveEnabled() {
		logger.Warn("startup warning: signaling WebSocket keepalive is disabled (half-open connections are never reaped)",
			"warning_code", "signaling_ws_keepalive_disabled",
			"signaling_ws_ping_interval", cfg.SignalingWSPingInterval,
			"signaling_ws_idle_timeout", cfg.SignalingWSIdleTimeout,
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxSignalingMessageBytes > largeSignalingMessageBytes {
		logger.Warn("startup warning: MAX_SIGNALING_MESSAGE_BYTES is very large (increases per-message allocation risk)",
			"warning_code", "max_signaling_message_bytes_large",
			"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
			"mode", cfg.Mode,
		)
	}

	if err := cfg.ICEConfigError(); err != nil {
		logger.Warn("startup warning: ICE server configuration is invalid; /readyz will report not ready",
			"warning_code", "ice_config_invalid",
			"err", err,
			"mode", cfg.Mode,
		)
	}
}
