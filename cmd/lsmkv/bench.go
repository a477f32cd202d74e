package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

// BenchmarkResult holds the outcome of one benchmark phase.
type BenchmarkResult struct {
	Operation  string
	TotalOps   int
	Errors     int
	Duration   time.Duration
	OpsPerSec  float64
	AvgLatency time.Duration
	MinLatency time.Duration
	MaxLatency time.Duration
}

type benchClient struct {
	baseURL string
	http    *http.Client
}

func newBenchCmd() *cobra.Command {
	var (
		baseURL     string
		numOps      int
		concurrency int
		keyPrefix   string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load a running server with put and get requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if numOps <= 0 || concurrency <= 0 {
				return fmt.Errorf("ops and concurrency must be positive")
			}
			c := &benchClient{
				baseURL: baseURL,
				http:    &http.Client{Timeout: 10 * time.Second},
			}
			if err := c.health(); err != nil {
				return fmt.Errorf("server is not reachable at %s: %w", baseURL, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Benchmarking %s: %d ops, %d workers\n\n", baseURL, numOps, concurrency)

			writes := runPhase("PUT", numOps, concurrency, func(i int) error {
				return c.put(fmt.Sprintf("%s%d", keyPrefix, i), fmt.Sprintf("value_%d", i))
			})
			printResult(out, writes)

			reads := runPhase("GET", numOps, concurrency, func(i int) error {
				return c.get(fmt.Sprintf("%s%d", keyPrefix, i))
			})
			printResult(out, reads)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:5000", "server base URL")
	cmd.Flags().IntVarP(&numOps, "ops", "n", 1000, "operations per phase")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "w", 10, "number of concurrent workers")
	cmd.Flags().StringVar(&keyPrefix, "prefix", "bench_key_", "key prefix")
	return cmd
}

// runPhase splits numOps across workers and records per-request latency.
func runPhase(name string, numOps, concurrency int, op func(i int) error) BenchmarkResult {
	if concurrency > numOps {
		concurrency = numOps
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		latencies = make([]time.Duration, 0, numOps)
		errCount  int
	)

	perWorker := numOps / concurrency
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		from := w * perWorker
		to := from + perWorker
		if w == concurrency-1 {
			to = numOps
		}

		wg.Add(1)
		go func(from, to int) {
			defer wg.Done()
			for i := from; i < to; i++ {
				opStart := time.Now()
				err := op(i)
				latency := time.Since(opStart)

				mu.Lock()
				if err != nil {
					errCount++
				} else {
					latencies = append(latencies, latency)
				}
				mu.Unlock()
			}
		}(from, to)
	}
	wg.Wait()

	return summarize(name, numOps, errCount, time.Since(start), latencies)
}

func summarize(name string, total, errCount int, elapsed time.Duration, latencies []time.Duration) BenchmarkResult {
	res := BenchmarkResult{
		Operation: name,
		TotalOps:  total,
		Errors:    errCount,
		Duration:  elapsed,
	}
	if elapsed > 0 {
		res.OpsPerSec = float64(len(latencies)) / elapsed.Seconds()
	}
	if len(latencies) == 0 {
		return res
	}

	var sum time.Duration
	res.MinLatency = latencies[0]
	for _, l := range latencies {
		sum += l
		if l < res.MinLatency {
			res.MinLatency = l
		}
		if l > res.MaxLatency {
			res.MaxLatency = l
		}
	}
	res.AvgLatency = sum / time.Duration(len(latencies))
	return res
}

func printResult(w io.Writer, r BenchmarkResult) {
	fmt.Fprintf(w, "=== %s ===\n", r.Operation)
	fmt.Fprintf(w, "Total operations: %d (errors: %d)\n", r.TotalOps, r.Errors)
	fmt.Fprintf(w, "Duration:         %v\n", r.Duration)
	fmt.Fprintf(w, "Throughput:       %.2f ops/sec\n", r.OpsPerSec)
	fmt.Fprintf(w, "Latency:          min %v, avg %v, max %v\n\n", r.MinLatency, r.AvgLatency, r.MaxLatency)
}

func (c *benchClient) health() error {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func (c *benchClient) put(key, value string) error {
	body, err := json.Marshal(map[string]string{"key": key, "value": value})
	if err != nil {
		return err
	}

	resp, err := c.http.Post(c.baseURL+"/put", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("put %q: status %d", key, resp.StatusCode)
	}
	return nil
}

func (c *benchClient) get(key string) error {
	resp, err := c.http.Get(c.baseURL + "/get?key=" + url.QueryEscape(key))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %q: status %d", key, resp.StatusCode)
	}

	var out struct {
		Found bool `json:"found"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if !out.Found {
		return fmt.Errorf("get %q: not found", key)
	}
	return nil
}
