// Package stats provides a goroutine-safe metrics collector that aggregates
// performance data from multiple load test clients and prints a summary report
// with percentile distributions.
package stats

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Collector aggregates metrics from multiple load test clients. All methods
// are goroutine-safe and can be called concurrently from many client
// goroutines.
type Collector struct {
	mu             sync.Mutex
	startLatencies []time.Duration // POST /match/start round trips
	matchLatencies []time.Duration // start to matched=true
	matched        int
	users          int
	errors         int
	startTime      time.Time
	scraper        *Scraper
}

// SetScraper attaches a Prometheus metrics scraper to this collector. When set,
// Report() will also print server-side metrics collected by the scraper.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// NewCollector creates a new Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// AddStart records one virtual user entering the queue, with the latency of
// the start call.
func (c *Collector) AddStart(d time.Duration) {
	c.mu.Lock()
	c.startLatencies = append(c.startLatencies, d)
	c.users++
	c.mu.Unlock()
}

// AddMatch records the time from entering the queue to observing a match.
func (c *Collector) AddMatch(d time.Duration) {
	c.mu.Lock()
	c.matchLatencies = append(c.matchLatencies, d)
	c.matched++
	c.mu.Unlock()
}

// AddError increments the error counter.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// UserCount returns the number of virtual users that entered the queue.
func (c *Collector) UserCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.users
}

// ErrorCount returns the current number of recorded errors.
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Report prints a formatted summary of the collected metrics to stdout,
// including total duration, user and match counts, error count, and
// percentile distributions for start and match latencies.
func (c *Collector) Report() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startTime)

	fmt.Println("\n=== Load Test Results ===")
	fmt.Printf("Duration:     %s\n", elapsed.Round(time.Second))
	fmt.Printf("Users:        %d\n", c.users)
	fmt.Printf("Matched:      %d\n", c.matched)
	fmt.Printf("Errors:       %d\n", c.errors)

	if c.users > 0 {
		matchRate := float64(c.matched) / float64(c.users) * 100
		fmt.Printf("Match rate:   %.2f%%\n", matchRate)
	}

	if len(c.startLatencies) > 0 {
		fmt.Println("\n--- Start Latency ---")
		printPercentiles(c.startLatencies)
	}

	if len(c.matchLatencies) > 0 {
		fmt.Println("\n--- Time To Match ---")
		printPercentiles(c.matchLatencies)
	}

	if c.scraper != nil {
		c.scraper.Report()
	}

	fmt.Println()
}

// printPercentiles sorts the given durations and prints avg, p50, p95, p99,
// and max values along with the sample count.
func printPercentiles(durations []time.Duration) {
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	n := len(durations)
	p50 := durations[n/2]
	p95 := durations[int(math.Ceil(float64(n)*0.95))-1]
	p99 := durations[int(math.Ceil(float64(n)*0.99))-1]

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	avg := sum / time.Duration(n)

	fmt.Printf("  avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)\n",
		avg.Round(time.Microsecond),
		p50.Round(time.Microsecond),
		p95.Round(time.Microsecond),
		p99.Round(time.Microsecond),
		durations[n-1].Round(time.Microsecond),
		n,
	)
}
