package main

import "testing"

func TestWebSocketURL(t *testing.T) {
	cases := []struct {
		advertise, web, path, want string
	}{
		{"10.0.0.5:7331", ":7332", "/scene", "ws://10.0.0.5:7332/scene"},
		{"viewer.lan:7331", "0.0.0.0:8080", "/ws", "ws://viewer.lan:8080/ws"},
		{"viewer.lan", ":7332", "/scene", "ws://viewer.lan:7332/scene"},
		{"10.0.0.5:7331", "bad", "/scene", ""},
	}
	for _, c := range cases {
		if got := webSocketURL(c.advertise, c.web, c.path); got != c.want {
			t.Errorf("webSocketURL(%q, %q) = %q, want %q", c.advertise, c.web, got, c.want)
		}
	}
}
