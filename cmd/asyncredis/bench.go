package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/asyncredis"
	"github.com/pior/asyncredis/promexporter"
	"github.com/pior/asyncredis/resp"
	"github.com/spf13/cobra"
)

type benchResult struct {
	Command      string
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
	Correctness  bool
	ErrorMessage string
}

func (c *cli) benchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run one command in a loop and report throughput",
		Long: `Bench runs --concurrency chains of commands for --duration. Each chain issues
its next command from the callback of the previous one.

With --command incr the counter is read back at the end and compared with the
number of successful increments.`,
		Args: cobra.NoArgs,
		RunE: c.withClient(func(cmd *cobra.Command, client *asyncredis.Client, _ []string) error {
			command := c.v.GetString("command")
			if _, ok := benchCommands[command]; !ok {
				return fmt.Errorf("invalid command %q: must be one of get, set, incr, ping", command)
			}

			exporter := promexporter.NewExporter(client)
			if addr := c.v.GetString("metrics-addr"); addr != "" {
				mux := http.NewServeMux()
				exporter.Mount(mux)
				server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						fmt.Fprintf(cmd.ErrOrStderr(), "metrics server: %v\n", err)
					}
				}()
				defer server.Close()
			}

			b := &bench{
				client:      client,
				metrics:     exporter.BenchMetrics(),
				command:     command,
				key:         c.v.GetString("key"),
				duration:    c.v.GetDuration("duration"),
				concurrency: c.v.GetInt("concurrency"),
				timeout:     c.timeout(),
			}
			result := b.run()
			printResult(cmd.OutOrStdout(), result)
			if result.ErrorMessage != "" {
				return fmt.Errorf("bench failed: %s", result.ErrorMessage)
			}
			return nil
		}),
	}

	cmd.Flags().String("command", "incr", "Command to run (get, set, incr, ping)")
	cmd.Flags().String("key", "bench-key", "Key the commands operate on")
	cmd.Flags().Duration("duration", 5*time.Second, "Duration of the run")
	cmd.Flags().Int("concurrency", 1, "Number of concurrent command chains")
	cmd.Flags().String("metrics-addr", "", "Expose Prometheus metrics on this address during the run")
	return cmd
}

var benchCommands = map[string]func(client *asyncredis.Client, key string, cb asyncredis.Callback){
	"get": func(client *asyncredis.Client, key string, cb asyncredis.Callback) {
		client.Get(key, cb)
	},
	"set": func(client *asyncredis.Client, key string, cb asyncredis.Callback) {
		client.Set(key, []byte("bench-value"), cb)
	},
	"incr": func(client *asyncredis.Client, key string, cb asyncredis.Callback) {
		client.Incr(key, cb)
	},
	"ping": func(client *asyncredis.Client, _ string, cb asyncredis.Callback) {
		client.Invoke("PING", nil, cb)
	},
}

type bench struct {
	client      *asyncredis.Client
	metrics     *promexporter.BenchMetrics
	command     string
	key         string
	duration    time.Duration
	concurrency int
	timeout     time.Duration

	totalOps, successes, failures, totalLatency atomic.Int64
}

func (b *bench) run() *benchResult {
	result := &benchResult{Command: b.command, Correctness: true}
	issue := benchCommands[b.command]

	if b.command == "incr" {
		if _, ok, err := await(b.timeout, func(cb asyncredis.Callback) {
			b.client.Set(b.key, []byte("0"), cb)
		}); err != nil || !ok {
			result.Correctness = false
			result.ErrorMessage = "failed to initialize counter"
			return result
		}
	}

	b.metrics.SetActive(true)
	defer b.metrics.SetActive(false)

	startTime := time.Now()
	deadline := startTime.Add(b.duration)

	var wg sync.WaitGroup
	var active atomic.Int64
	for range max(b.concurrency, 1) {
		wg.Add(1)
		active.Add(1)

		var next func()
		next = func() {
			opStart := time.Now()
			issue(b.client, b.key, func(reply resp.Reply, ok bool) {
				b.record(ok, time.Since(opStart))
				if !time.Now().Before(deadline) || errors.Is(reply.Err, asyncredis.ErrClientClosed) {
					active.Add(-1)
					wg.Done()
					return
				}
				next()
			})
		}
		next()
	}

	// A chain whose server stops replying never finishes: stop waiting once
	// its last command has had the full timeout.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	var stalled int64
	select {
	case <-done:
	case <-time.After(b.duration + b.timeout):
		stalled = active.Load()
	}

	result.Duration = time.Since(startTime)
	result.TotalOps = b.totalOps.Load() + stalled
	result.Successes = b.successes.Load()
	result.Failures = b.failures.Load() + stalled
	if result.TotalOps > 0 {
		result.AvgLatency = time.Duration(b.totalLatency.Load() / result.TotalOps)
		result.OpsPerSecond = float64(result.TotalOps) / result.Duration.Seconds()
	}

	if stalled > 0 {
		result.Correctness = false
		result.ErrorMessage = fmt.Sprintf("%d chains without a reply after %s", stalled, b.duration+b.timeout)
		b.metrics.RecordRun(false, result.OpsPerSecond)
		return result
	}

	if b.command == "incr" {
		b.verifyCounter(result)
	}

	b.metrics.RecordRun(result.ErrorMessage == "", result.OpsPerSecond)
	return result
}

func (b *bench) record(ok bool, latency time.Duration) {
	b.totalOps.Add(1)
	b.totalLatency.Add(int64(latency))
	if ok {
		b.successes.Add(1)
	} else {
		b.failures.Add(1)
	}
	b.metrics.RecordOperation(b.command, ok, latency)
}

// verifyCounter reads the counter back: it must equal the successful increments.
func (b *bench) verifyCounter(result *benchResult) {
	reply, ok, err := await(b.timeout, func(cb asyncredis.Callback) {
		b.client.Get(b.key, cb)
	})
	if err != nil || !ok {
		result.Correctness = false
		result.ErrorMessage = "failed to read counter"
		return
	}

	n, err := strconv.ParseInt(reply.Str, 10, 64)
	if err != nil {
		result.Correctness = false
		result.ErrorMessage = "counter value is not a number"
		return
	}
	if n != result.Successes {
		result.Correctness = false
		result.ErrorMessage = fmt.Sprintf("counter is %d after %d successful increments", n, result.Successes)
	}
}

func printResult(w io.Writer, result *benchResult) {
	fmt.Fprintf(w, "Command: %s\n", result.Command)
	fmt.Fprintf(w, "Duration: %v\n", result.Duration)
	fmt.Fprintf(w, "Total Operations: %d\n", result.TotalOps)
	fmt.Fprintf(w, "Successes: %d\n", result.Successes)
	fmt.Fprintf(w, "Failures: %d\n", result.Failures)
	if result.TotalOps > 0 {
		fmt.Fprintf(w, "Success Rate: %.2f%%\n", float64(result.Successes)/float64(result.TotalOps)*100)
		fmt.Fprintf(w, "Ops/sec: %.2f\n", result.OpsPerSecond)
		fmt.Fprintf(w, "Avg Latency: %v\n", result.AvgLatency)
	}
	fmt.Fprintf(w, "Correctness: %t\n", result.Correctness)
	if result.ErrorMessage != "" {
		fmt.Fprintf(w, "Error: %s\n", result.ErrorMessage)
	}
}
