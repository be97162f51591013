// Package main is the entry point for the rate limiter's load generator.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/ratelimiter/internal/loadgen"
)

// stringList collects repeated occurrences of a flag into a slice, giving
// --nodes/--api-keys the same repeatable-option behavior as the original
// CLI's typer.Option(...) list arguments.
type stringList []string

func (s *stringList) String() string {
	return fmt.Sprint([]string(*s))
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var nodes, apiKeys stringList
	flag.Var(&nodes, "nodes", "base URL of a rate limiter node (repeatable)")
	flag.Var(&apiKeys, "api-keys", "API key to rotate through during the test (repeatable)")
	duration := flag.Int("duration", 20, "test duration in seconds")
	concurrency := flag.Int("concurrency", 50, "number of concurrent workers")
	payloadCacheSize := flag.Int("payload-cache-size", 512, "pre-generated payload variants")
	maxConnections := flag.Int("max-connections", 2000, "HTTP connection pool size")
	flag.Parse()

	if len(nodes) == 0 {
		log.Println("provide at least one --nodes URL")
		return 1
	}
	if len(apiKeys) == 0 {
		log.Println("provide at least one --api-keys value")
		return 1
	}

	cfg := loadgen.Config{
		Nodes:            nodes,
		APIKeys:          apiKeys,
		Duration:         time.Duration(*duration) * time.Second,
		Concurrency:      *concurrency,
		PayloadCacheSize: *payloadCacheSize,
		MaxConnections:   *maxConnections,
	}

	log.Printf("starting load generator: nodes=%v duration=%s concurrency=%d", nodes, cfg.Duration, *concurrency)

	runner := loadgen.NewRunner(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration+30*time.Second)
	defer cancel()

	stats := runner.Run(ctx)
	summary := stats.Summarize()

	encoded, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Printf("failed to marshal summary: %v", err)
		return 1
	}
	fmt.Println(string(encoded))
	return 0
}
