package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/gateway/pkg/apps"
	"github.com/vango-dev/gateway/pkg/gateway"
)

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{"-profile", "fast", "-clients", "3", "-duration", "250ms"})
	if err != nil {
		t.Fatalf("parseConfig() error: %v", err)
	}
	if cfg.Profile != "fast" || cfg.Clients != 3 || cfg.Duration != 250*time.Millisecond {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.RPS != profiles["fast"].RPS || cfg.JSONOutput != "-" || cfg.Timeout < 2*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}

	for _, args := range [][]string{
		{"-profile", "nope"},
		{"-clients", "0"},
		{"-rps", "0"},
		{"-duration", "soon"},
		{"-path", "no-slash"},
	} {
		if _, err := parseConfig(args); err == nil {
			t.Errorf("parseConfig(%v) should fail", args)
		}
	}
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0, 1},
		{0.5, 5},
		{0.95, 10},
		{1, 10},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if percentile(nil, 0.5) != 0 {
		t.Error("percentile of no samples should be 0")
	}
}

func TestRoundTrip(t *testing.T) {
	srv, err := gateway.Listen(context.Background(), &gateway.Config{
		Host:   "127.0.0.1",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	srv.SetApplication(apps.Hello(""))
	go func() { _ = srv.Serve(context.Background()) }()
	defer srv.Close()

	var counters benchCounters
	var errCounts benchErrors
	n, err := roundTrip(context.Background(), &net.Dialer{}, srv.Addr().String(),
		[]byte("GET / HTTP/1.1\r\n\r\n"), 2*time.Second, &counters, &errCounts)
	if err != nil {
		t.Fatalf("roundTrip() error: %v", err)
	}
	if n == 0 || counters.requestsSent.Load() != 1 {
		t.Fatalf("n=%d sent=%d", n, counters.requestsSent.Load())
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	writeSummary(&buf, benchReport{
		Workload:  workloadInfo{Profile: "fast", Clients: 2},
		LatencyMS: latencyInfo{Min: 1, P50: 2, P95: 3, P99: 4, Max: 5},
	})
	out := buf.String()
	if !strings.Contains(out, "Profile: fast") || !strings.Contains(out, "p99: 4.00 ms") {
		t.Fatalf("summary:\n%s", out)
	}
}
