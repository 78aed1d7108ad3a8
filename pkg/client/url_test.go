package client

import "testing"

func TestBuildWebSocketURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		port int
		want string
	}{
		{"http becomes ws with default port", "http://host/", 81, "ws://host:81/"},
		{"https becomes wss", "https://host", 81, "wss://host:81/"},
		{"explicit port and path kept", "wss://host:9999/path", 81, "wss://host:9999/path"},
		{"ws kept", "ws://10.0.0.5:8080", 81, "ws://10.0.0.5:8080/"},
		{"bare host", "192.168.1.50", 81, "ws://192.168.1.50:81/"},
		{"bare host with port", "192.168.1.50:82", 81, "ws://192.168.1.50:82/"},
		{"ipv6 host", "http://[fe80::1]/ws", 81, "ws://[fe80::1]:81/ws"},
		{"empty uses loopback", "", 81, "ws://127.0.0.1:81/"},
		{"query dropped", "http://host/ws?x=1", 81, "ws://host:81/ws"},
		{"scheme case insensitive", "HTTPS://host/", 443, "wss://host:443/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildWebSocketURL(tt.raw, tt.port)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if got != tt.want {
				t.Errorf("BuildWebSocketURL(%q, %d): expected %s, got %s", tt.raw, tt.port, tt.want, got)
			}
		})
	}
}

func TestBuildWebSocketURLInvalid(t *testing.T) {
	if _, err := BuildWebSocketURL("http://host:notaport/", 81); err == nil {
		t.Error("Expected error for invalid port")
	}
}
