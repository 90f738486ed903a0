package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mingle/matchd/loadtest/client"
	"github.com/mingle/matchd/loadtest/stats"
)

// runMatch implements the matchmaking load test. It spawns N simulated
// users who enter the waiting pool, poll for a result, and accept the match
// when one appears. This measures pairing throughput and time-to-match
// under concurrent load.
//
// Session tokens must be provisioned beforehand; they are read as
// "token-<n>" unless a prefix is given, matching the seeding script.
func runMatch(args []string) {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	url := fs.String("url", "http://localhost:8080", "matchd base URL")
	users := fs.Int("users", 1000, "Number of simulated users (should be even)")
	rampUp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration for start calls")
	matchTimeout := fs.Duration("match-timeout", 60*time.Second, "Timeout waiting for a match")
	pollInterval := fs.Duration("poll-interval", 2*time.Second, "Result polling interval")
	tokenPrefix := fs.String("token-prefix", "token-", "Session token prefix; token is prefix+index")
	metricsURL := fs.String("metrics-url", "http://localhost:8080/metrics", "Prometheus metrics endpoint URL")
	scrapeInterval := fs.Duration("scrape-interval", 2*time.Second, "Interval between metrics scrapes")
	fs.Parse(args)

	fmt.Printf("Match test: %d users against %s (ramp=%s, match-timeout=%s, poll=%s)\n",
		*users, *url, *rampUp, *matchTimeout, *pollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()

	scraper := stats.NewScraper(*metricsURL, *scrapeInterval)
	collector.SetScraper(scraper)
	scraper.Start(ctx)

	interval := *rampUp / time.Duration(*users)
	if interval <= 0 {
		interval = time.Millisecond
	}

	var wg sync.WaitGroup
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

launch:
	for i := 0; i < *users; i++ {
		select {
		case <-ctx.Done():
			fmt.Println("interrupted during ramp-up")
			break launch
		case <-ticker.C:
		}

		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runUser(ctx, collector, *url, fmt.Sprintf("%s%d", *tokenPrefix, n), *matchTimeout, *pollInterval)
		}(i)
	}

	wg.Wait()
	scraper.Stop()
	collector.Report()
}

// runUser drives one simulated user through a full seeking lifecycle.
func runUser(ctx context.Context, collector *stats.Collector, url, token string, matchTimeout, pollInterval time.Duration) {
	c := client.New(url, token)

	if _, err := c.Start(ctx, map[string]interface{}{"matching_mode": "random"}); err != nil {
		collector.AddError()
		return
	}
	collector.AddStart(c.GetMetrics().StartLatency)

	pollCtx, cancel := context.WithTimeout(ctx, matchTimeout)
	defer cancel()

	res, err := c.PollUntilMatched(pollCtx, pollInterval)
	if err != nil {
		// Timed out or interrupted: leave the pool cleanly.
		cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelCleanup()
		_ = c.Cancel(cleanupCtx)
		return
	}
	if !res.Matched {
		return // rejected by the counterpart
	}
	collector.AddMatch(c.GetMetrics().TimeToMatch)

	if _, err := c.Accept(ctx); err != nil {
		collector.AddError()
	}
}
