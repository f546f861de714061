// Package origin checks browser Origin headers against an allow-list.
package origin

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var ErrInvalidOrigin = errors.New("invalid origin")

// Normalize validates a browser Origin value and returns it as
// scheme://host[:port], lowercased, with the scheme's default port dropped.
// The opaque origin "null" is returned unchanged.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	switch s {
	case "":
		return "", fmt.Errorf("%w: empty", ErrInvalidOrigin)
	case "null":
		return s, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidOrigin, raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidOrigin, raw)
	}
	if u.Opaque != "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" || (u.Path != "" && u.Path != "/") {
		return "", fmt.Errorf("%w %q: want scheme://host[:port]", ErrInvalidOrigin, raw)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w %q: missing host", ErrInvalidOrigin, raw)
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	if p := u.Port(); p != "" {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || n == 0 {
			return "", fmt.Errorf("%w %q: bad port", ErrInvalidOrigin, raw)
		}
		if !(scheme == "http" && n == 80) && !(scheme == "https" && n == 443) {
			host += ":" + strconv.FormatUint(n, 10)
		}
	}
	return scheme + "://" + host, nil
}

// AllowList is a set of permitted origins. The zero value permits every
// origin.
type AllowList struct {
	any     bool
	origins map[string]struct{}
}

// NewAllowList builds an AllowList from configured entries. "*" permits any
// origin; every other entry must pass Normalize.
func NewAllowList(entries []string) (AllowList, error) {
	var a AllowList
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if e == "*" {
			a.any = true
			continue
		}
		n, err := Normalize(e)
		if err != nil {
			return AllowList{}, err
		}
		if a.origins == nil {
			a.origins = make(map[string]struct{})
		}
		a.origins[n] = struct{}{}
	}
	return a, nil
}

// Restricted reports whether some origins are rejected.
func (a AllowList) Restricted() bool {
	return !a.any && len(a.origins) > 0
}

// Allow reports whether a request carrying the given Origin header may
// proceed. A missing header comes from a non-browser client and is allowed.
func (a AllowList) Allow(header string) bool {
	if !a.Restricted() || strings.TrimSpace(header) == "" {
		return true
	}
	n, err := Normalize(header)
	if err != nil {
		return false
	}
	_, ok := a.origins[n]
	return ok
}
