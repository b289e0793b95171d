// Command gateway-bench drives an in-process gateway with concurrent
// single-shot clients and reports round-trip latency, throughput and GC
// cost.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"net"
	"os"
	"runtime"
	"runtime/metrics"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/gateway/pkg/apps"
	"github.com/vango-dev/gateway/pkg/gateway"
)

type profile struct {
	Name     string
	Clients  int
	Duration time.Duration
	RPS      float64
	MaxProcs int
}

var profiles = map[string]profile{
	"fast": {
		Name:     "fast",
		Clients:  20,
		Duration: 5 * time.Second,
		RPS:      20,
	},
	"standard": {
		Name:     "standard",
		Clients:  100,
		Duration: 20 * time.Second,
		RPS:      50,
	},
	"stress": {
		Name:     "stress",
		Clients:  400,
		Duration: 60 * time.Second,
		RPS:      100,
		MaxProcs: 4,
	},
}

type benchConfig struct {
	Profile    string
	Clients    int
	Duration   time.Duration
	RPS        float64
	Path       string
	MaxProcs   int
	JSONOutput string
	Timeout    time.Duration
}

type benchCounters struct {
	requestsSent     atomic.Uint64
	requestsComplete atomic.Uint64
	bytesReceived    atomic.Uint64
}

type benchErrors struct {
	dialFailures  atomic.Uint64
	writeFailures atomic.Uint64
	readFailures  atomic.Uint64
	badResponses  atomic.Uint64
	totalErrors   atomic.Uint64
}

func main() {
	log.SetFlags(0)

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}

	srv, err := gateway.Listen(context.Background(), &gateway.Config{
		Host:   "127.0.0.1",
		Port:   0,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	srv.SetApplication(apps.Hello(""))
	go func() {
		_ = srv.Serve(context.Background())
	}()
	defer srv.Close()

	addr := srv.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	samplesCh := make(chan time.Duration, sampleBuffer(cfg.Clients))
	var samples []time.Duration
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for rtt := range samplesCh {
			samples = append(samples, rtt)
		}
	}()

	var counters benchCounters
	var errCounts benchErrors

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	beforeMetrics := readRuntimeMetrics()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(cfg.Clients)
	for i := 0; i < cfg.Clients; i++ {
		go func() {
			defer wg.Done()
			runClient(ctx, addr, cfg, &counters, &errCounts, samplesCh)
		}()
	}

	wg.Wait()
	close(samplesCh)
	<-collectorDone

	elapsed := time.Since(start)

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)
	afterMetrics := readRuntimeMetrics()

	slices.Sort(samples)
	report := buildReport(cfg, elapsed, samples, &counters, &errCounts, before, after, beforeMetrics, afterMetrics)

	writeSummary(os.Stderr, report)
	if err := writeJSON(cfg.JSONOutput, report); err != nil {
		log.Fatalf("write json: %v", err)
	}
}

func sampleBuffer(clients int) int {
	return max(1024, clients*4)
}

func parseConfig(args []string) (benchConfig, error) {
	fs := flag.NewFlagSet("gateway-bench", flag.ContinueOnError)
	profileFlag := fs.String("profile", "standard", "profile: fast|standard|stress")
	clientsFlag := fs.Int("clients", -1, "number of concurrent clients")
	durationFlag := fs.String("duration", "", "benchmark duration, e.g. 30s")
	rpsFlag := fs.Float64("rps", -1, "target requests/sec per client")
	pathFlag := fs.String("path", "/", "request path")
	maxProcsFlag := fs.Int("max-procs", -1, "GOMAXPROCS cap (0 to leave unchanged)")
	jsonFlag := fs.String("json", "-", "JSON output path ('-' for stdout)")
	if err := fs.Parse(args); err != nil {
		return benchConfig{}, err
	}

	name := strings.ToLower(strings.TrimSpace(*profileFlag))
	if name == "" {
		name = "standard"
	}
	base, ok := profiles[name]
	if !ok {
		return benchConfig{}, fmt.Errorf("unknown profile %q", name)
	}

	cfg := benchConfig{
		Profile:    base.Name,
		Clients:    base.Clients,
		Duration:   base.Duration,
		RPS:        base.RPS,
		Path:       *pathFlag,
		MaxProcs:   base.MaxProcs,
		JSONOutput: strings.TrimSpace(*jsonFlag),
	}

	if *clientsFlag != -1 {
		cfg.Clients = *clientsFlag
	}
	if *durationFlag != "" {
		d, err := time.ParseDuration(*durationFlag)
		if err != nil {
			return benchConfig{}, fmt.Errorf("invalid -duration: %w", err)
		}
		cfg.Duration = d
	}
	if *rpsFlag != -1 {
		cfg.RPS = *rpsFlag
	}
	if *maxProcsFlag != -1 {
		cfg.MaxProcs = *maxProcsFlag
	}
	if cfg.JSONOutput == "" {
		cfg.JSONOutput = "-"
	}

	if cfg.Clients <= 0 {
		return benchConfig{}, errors.New("-clients must be > 0")
	}
	if cfg.Duration <= 0 {
		return benchConfig{}, errors.New("-duration must be > 0")
	}
	if cfg.RPS <= 0 {
		return benchConfig{}, errors.New("-rps must be > 0")
	}
	if cfg.MaxProcs < 0 {
		return benchConfig{}, errors.New("-max-procs must be >= 0")
	}
	if !strings.HasPrefix(cfg.Path, "/") || strings.ContainsAny(cfg.Path, " \r\n") {
		return benchConfig{}, fmt.Errorf("invalid -path %q", cfg.Path)
	}

	cfg.Timeout = requestTimeout(cfg.RPS)
	return cfg, nil
}

func requestTimeout(rps float64) time.Duration {
	period := time.Duration(float64(time.Second) / rps)
	return max(2*time.Second, period*10)
}

// runClient opens one connection per request at the configured rate until
// ctx is done.
func runClient(
	ctx context.Context,
	addr string,
	cfg benchConfig,
	counters *benchCounters,
	errCounts *benchErrors,
	samples chan<- time.Duration,
) {
	request := []byte("GET " + cfg.Path + " HTTP/1.1\r\nHost: bench\r\n\r\n")
	ticker := time.NewTicker(time.Duration(float64(time.Second) / cfg.RPS))
	defer ticker.Stop()

	dialer := net.Dialer{Timeout: cfg.Timeout}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		begin := time.Now()
		n, err := roundTrip(ctx, &dialer, addr, request, cfg.Timeout, counters, errCounts)
		if err != nil {
			errCounts.totalErrors.Add(1)
			continue
		}
		counters.requestsComplete.Add(1)
		counters.bytesReceived.Add(uint64(n))
		samples <- time.Since(begin)
	}
}

func roundTrip(
	ctx context.Context,
	dialer *net.Dialer,
	addr string,
	request []byte,
	timeout time.Duration,
	counters *benchCounters,
	errCounts *benchErrors,
) (int, error) {
	conn, err := dialer.DialContext(ctx, "tcp4", addr)
	if err != nil {
		if ctx.Err() == nil {
			errCounts.dialFailures.Add(1)
		}
		return 0, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	counters.requestsSent.Add(1)
	if _, err := conn.Write(request); err != nil {
		errCounts.writeFailures.Add(1)
		return 0, err
	}
	resp, err := io.ReadAll(conn)
	if err != nil {
		errCounts.readFailures.Add(1)
		return 0, err
	}
	if !strings.HasPrefix(string(resp), "HTTP/1.1 200 ") {
		errCounts.badResponses.Add(1)
		return 0, fmt.Errorf("unexpected response %q", firstLine(resp))
	}
	return len(resp), nil
}

func firstLine(b []byte) string {
	s, _, _ := strings.Cut(string(b), "\n")
	return s
}

type runtimeMetricsSnapshot struct {
	cpuTotalSeconds   float64
	cpuGCSeconds      float64
	heapAllocsObjects uint64
}

func readRuntimeMetrics() runtimeMetricsSnapshot {
	samples := []metrics.Sample{
		{Name: "/cpu/classes/total:cpu-seconds"},
		{Name: "/cpu/classes/gc/total:cpu-seconds"},
		{Name: "/gc/heap/allocs:objects"},
	}
	metrics.Read(samples)

	var out runtimeMetricsSnapshot
	for _, s := range samples {
		if s.Value.Kind() == metrics.KindBad {
			continue
		}
		switch s.Name {
		case "/cpu/classes/total:cpu-seconds":
			out.cpuTotalSeconds = s.Value.Float64()
		case "/cpu/classes/gc/total:cpu-seconds":
			out.cpuGCSeconds = s.Value.Float64()
		case "/gc/heap/allocs:objects":
			out.heapAllocsObjects = s.Value.Uint64()
		}
	}
	return out
}

func cpuFraction(after, before runtimeMetricsSnapshot) float64 {
	total := after.cpuTotalSeconds - before.cpuTotalSeconds
	if total <= 0 {
		return 0
	}
	gc := after.cpuGCSeconds - before.cpuGCSeconds
	if gc < 0 {
		return 0
	}
	return gc / total
}

// percentile returns the p-quantile of sorted using the nearest-rank method.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	idx = min(max(idx, 0), len(sorted)-1)
	return sorted[idx]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type benchReport struct {
	Version    string         `json:"version"`
	Run        runInfo        `json:"run"`
	Workload   workloadInfo   `json:"workload"`
	LatencyMS  latencyInfo    `json:"latency_ms"`
	Throughput throughputInfo `json:"throughput"`
	GC         gcInfo         `json:"gc"`
	Errors     errorInfo      `json:"errors"`
}

type runInfo struct {
	Timestamp string `json:"timestamp"`
	Go        string `json:"go"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPUCount  int    `json:"cpu_count"`
}

type workloadInfo struct {
	Profile      string  `json:"profile"`
	Clients      int     `json:"clients"`
	DurationMS   int64   `json:"duration_ms"`
	RPSPerClient float64 `json:"rps_per_client"`
	Path         string  `json:"path"`
	MaxProcs     int     `json:"max_procs"`
	TimeoutMS    int64   `json:"timeout_ms"`
}

type latencyInfo struct {
	Min float64 `json:"min"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type throughputInfo struct {
	RequestsSent     uint64  `json:"requests_sent"`
	RequestsTotal    uint64  `json:"requests_total"`
	RequestsPerSec   float64 `json:"requests_per_sec"`
	AvgResponseBytes float64 `json:"avg_response_bytes"`
}

type gcInfo struct {
	AllocMB       float64 `json:"alloc_mb"`
	HeapLiveMB    float64 `json:"heap_live_mb"`
	NumGC         uint32  `json:"num_gc"`
	PauseTotalMS  float64 `json:"pause_total_ms"`
	GCCPUFraction float64 `json:"gc_cpu_fraction"`
	AllocsObjects uint64  `json:"allocs_objects"`
}

type errorInfo struct {
	TotalErrors   uint64 `json:"total_errors"`
	DialFailures  uint64 `json:"dial_failures"`
	WriteFailures uint64 `json:"write_failures"`
	ReadFailures  uint64 `json:"read_failures"`
	BadResponses  uint64 `json:"bad_responses"`
}

func buildReport(
	cfg benchConfig,
	elapsed time.Duration,
	latencies []time.Duration,
	counters *benchCounters,
	errCounts *benchErrors,
	before runtime.MemStats,
	after runtime.MemStats,
	beforeMetrics runtimeMetricsSnapshot,
	afterMetrics runtimeMetricsSnapshot,
) benchReport {
	total := counters.requestsComplete.Load()
	received := counters.bytesReceived.Load()
	elapsedSeconds := math.Max(0.001, elapsed.Seconds())

	latency := latencyInfo{}
	if len(latencies) > 0 {
		latency = latencyInfo{
			Min: ms(latencies[0]),
			P50: ms(percentile(latencies, 0.50)),
			P95: ms(percentile(latencies, 0.95)),
			P99: ms(percentile(latencies, 0.99)),
			Max: ms(latencies[len(latencies)-1]),
		}
	}

	avgBytes := 0.0
	if total > 0 {
		avgBytes = float64(received) / float64(total)
	}

	return benchReport{
		Version: "1",
		Run: runInfo{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Go:        runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPUCount:  runtime.NumCPU(),
		},
		Workload: workloadInfo{
			Profile:      cfg.Profile,
			Clients:      cfg.Clients,
			DurationMS:   cfg.Duration.Milliseconds(),
			RPSPerClient: cfg.RPS,
			Path:         cfg.Path,
			MaxProcs:     cfg.MaxProcs,
			TimeoutMS:    cfg.Timeout.Milliseconds(),
		},
		LatencyMS: latency,
		Throughput: throughputInfo{
			RequestsSent:     counters.requestsSent.Load(),
			RequestsTotal:    total,
			RequestsPerSec:   float64(total) / elapsedSeconds,
			AvgResponseBytes: avgBytes,
		},
		GC: gcInfo{
			AllocMB:       float64(after.TotalAlloc-before.TotalAlloc) / (1024 * 1024),
			HeapLiveMB:    float64(after.HeapAlloc) / (1024 * 1024),
			NumGC:         after.NumGC - before.NumGC,
			PauseTotalMS:  ms(time.Duration(after.PauseTotalNs - before.PauseTotalNs)),
			GCCPUFraction: cpuFraction(afterMetrics, beforeMetrics),
			AllocsObjects: afterMetrics.heapAllocsObjects - beforeMetrics.heapAllocsObjects,
		},
		Errors: errorInfo{
			TotalErrors:   errCounts.totalErrors.Load(),
			DialFailures:  errCounts.dialFailures.Load(),
			WriteFailures: errCounts.writeFailures.Load(),
			ReadFailures:  errCounts.readFailures.Load(),
			BadResponses:  errCounts.badResponses.Load(),
		},
	}
}

func writeSummary(w io.Writer, report benchReport) {
	fmt.Fprintln(w, "=== Gateway Benchmark ===")
	fmt.Fprintf(w, "Profile: %s\n", report.Workload.Profile)
	fmt.Fprintf(w, "Clients: %d\n", report.Workload.Clients)
	fmt.Fprintf(w, "Duration: %s\n", time.Duration(report.Workload.DurationMS)*time.Millisecond)
	fmt.Fprintf(w, "Target per-client rate: %.2f req/s\n", report.Workload.RPSPerClient)
	if report.Workload.MaxProcs > 0 {
		fmt.Fprintf(w, "GOMAXPROCS cap: %d\n", report.Workload.MaxProcs)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Total requests: %d (sent %d)\n", report.Throughput.RequestsTotal, report.Throughput.RequestsSent)
	fmt.Fprintf(w, "Throughput: %.1f req/s\n", report.Throughput.RequestsPerSec)
	fmt.Fprintf(w, "Errors: %d\n", report.Errors.TotalErrors)
	fmt.Fprintln(w)

	if report.LatencyMS.Max == 0 {
		fmt.Fprintln(w, "No latency samples recorded.")
	} else {
		fmt.Fprintln(w, "RTT (dial -> request -> response read to EOF):")
		fmt.Fprintf(w, "  min: %.2f ms\n", report.LatencyMS.Min)
		fmt.Fprintf(w, "  p50: %.2f ms\n", report.LatencyMS.P50)
		fmt.Fprintf(w, "  p95: %.2f ms\n", report.LatencyMS.P95)
		fmt.Fprintf(w, "  p99: %.2f ms\n", report.LatencyMS.P99)
		fmt.Fprintf(w, "  max: %.2f ms\n", report.LatencyMS.Max)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Go runtime / GC (process-wide):")
	fmt.Fprintf(w, "  alloc:     %.2f MB\n", report.GC.AllocMB)
	fmt.Fprintf(w, "  heap_live: %.2f MB\n", report.GC.HeapLiveMB)
	fmt.Fprintf(w, "  num_gc:    %d\n", report.GC.NumGC)
	fmt.Fprintf(w, "  gc_pause:  %.2f ms (total)\n", report.GC.PauseTotalMS)
	fmt.Fprintf(w, "  gc_cpu:    %.2f%%\n", report.GC.GCCPUFraction*100)
}

func writeJSON(path string, report benchReport) error {
	var out io.Writer
	if path == "-" {
		out = os.Stdout
	} else {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
