package client

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// BuildWebSocketURL turns the configured controller address into a WebSocket
// URL. http and https become ws and wss, a port in raw wins over
// defaultPort, and an empty path becomes "/". Query and fragment are dropped.
func BuildWebSocketURL(raw string, defaultPort int) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid websocket url %q: %w", raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "", "http":
		scheme = "ws"
	case "https":
		scheme = "wss"
	}

	host := u.Hostname()
	if host == "" {
		host = "127.0.0.1"
	}

	port := u.Port()
	if port == "" {
		port = strconv.Itoa(defaultPort)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	out := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
	return out.String(), nil
}
