package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "ICE_SERVERS_JSON"

	envStunURLs       = "STUN_URLS"
	envTurnURLs       = "TURN_URLS"
	envTurnUsername   = "TURN_USERNAME"
	envTurnCredential = "TURN_CREDENTIAL"

	// DefaultStunURLs is advertised when nothing else is configured.
	DefaultStunURLs = "stun:stun.l.google.com:19302"
)

var errInvalidICEServer = errors.New("invalid ice server")

// iceServerEntry is one advertised server as written in ICE_SERVERS_JSON or
// an [[ice.servers]] table.
type iceServerEntry struct {
	URLs       urlList `json:"urls" toml:"urls"`
	Username   string  `json:"username" toml:"username"`
	Credential string  `json:"credential" toml:"credential"`
}

// urlList decodes RTCIceServer.urls, which browsers accept as a single
// string or a list.
type urlList []string

func (l *urlList) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		*l = urlList{v}
	case []any:
		urls := make(urlList, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("urls: want strings, got %T", item)
			}
			urls = append(urls, s)
		}
		*l = urls
	default:
		return fmt.Errorf("urls: want a string or a list of strings, got %T", v)
	}
	return nil
}

// server validates the entry and converts it to the pion form served on
// /webrtc/ice.
func (e iceServerEntry) server() (webrtc.ICEServer, error) {
	urls := make([]string, 0, len(e.URLs))
	needsCredentials := false
	for _, u := range e.URLs {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		scheme, _, _ := strings.Cut(u, ":")
		switch strings.ToLower(scheme) {
		case "stun", "stuns":
		case "turn", "turns":
			needsCredentials = true
		default:
			return webrtc.ICEServer{}, fmt.Errorf("%w: unsupported scheme in %q", errInvalidICEServer, u)
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return webrtc.ICEServer{}, fmt.Errorf("%w: no urls", errInvalidICEServer)
	}

	s := webrtc.ICEServer{URLs: urls, Username: strings.TrimSpace(e.Username)}
	if cred := strings.TrimSpace(e.Credential); cred != "" {
		s.Credential = cred
	}
	if needsCredentials && (s.Username == "" || s.Credential == nil) {
		return webrtc.ICEServer{}, fmt.Errorf("%w: turn urls need a username and credential", errInvalidICEServer)
	}
	return s, nil
}

// iceInputs gathers every source of the advertised ICE list. A full list
// (ICE_SERVERS_JSON from env or flag, else [[ice.servers]] tables from the
// config file) replaces the STUN/TURN URL lists.
type iceInputs struct {
	JSON        string
	FileServers []iceServerEntry

	StunURLs       string
	TurnURLs       string
	TurnUsername   string
	TurnCredential string
}

func (in iceInputs) entries() (source string, entries []iceServerEntry, err error) {
	if raw := strings.TrimSpace(in.JSON); raw != "" {
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return "", nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return envICEServersJSON, entries, nil
	}
	if in.FileServers != nil {
		return "ice.servers", in.FileServers, nil
	}

	if stun := splitCommaSeparated(in.StunURLs); len(stun) > 0 {
		entries = append(entries, iceServerEntry{URLs: stun})
	}
	if turn := splitCommaSeparated(in.TurnURLs); len(turn) > 0 {
		entries = append(entries, iceServerEntry{
			URLs:       turn,
			Username:   in.TurnUsername,
			Credential: in.TurnCredential,
		})
	}
	return envStunURLs + "/" + envTurnURLs, entries, nil
}

// servers resolves the inputs to the list served on /webrtc/ice. An empty
// list is returned as a non-nil slice.
func (in iceInputs) servers() ([]webrtc.ICEServer, error) {
	source, entries, err := in.entries()
	if err != nil {
		return nil, err
	}
	out := make([]webrtc.ICEServer, 0, len(entries))
	for i, e := range entries {
		s, err := e.server()
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", source, i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func splitCommaSeparated(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
