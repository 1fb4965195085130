package reqctx

import (
	"context"
	"net/http"
	"testing"

	"github.com/maruel/ksid"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"X-Forwarded-For single IP", map[string]string{"X-Forwarded-For": "203.0.113.195"}, "127.0.0.1:8080", "203.0.113.195"},
		{"X-Forwarded-For multiple IPs", map[string]string{"X-Forwarded-For": "203.0.113.195, 70.41.3.18"}, "127.0.0.1:8080", "203.0.113.195"},
		{"X-Real-IP", map[string]string{"X-Real-IP": "203.0.113.7"}, "127.0.0.1:8080", "203.0.113.7"},
		{"X-Forwarded-For over X-Real-IP", map[string]string{"X-Forwarded-For": "203.0.113.195", "X-Real-IP": "10.0.0.1"}, "127.0.0.1:8080", "203.0.113.195"},
		{"RemoteAddr with port", nil, "192.168.1.1:12345", "192.168.1.1"},
		{"RemoteAddr without port", nil, "192.168.1.1", "192.168.1.1"},
		{"IPv6 RemoteAddr with port", nil, "[::1]:8080", "::1"},
		{"IPv6 RemoteAddr without port", nil, "[::1]", "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{Header: http.Header{}, RemoteAddr: tt.remoteAddr}
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	if ClientIP(ctx) != "" || !RequestID(ctx).IsZero() {
		t.Fatal("empty context carries values")
	}
	id := ksid.NewID()
	ctx = WithRequestID(WithClientIP(ctx, "192.0.2.1"), id)
	if got := ClientIP(ctx); got != "192.0.2.1" {
		t.Errorf("ClientIP() = %q", got)
	}
	if got := RequestID(ctx); got != id {
		t.Errorf("RequestID() = %v, want %v", got, id)
	}
}
