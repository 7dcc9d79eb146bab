package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

type LoadConfig struct {
	BaseURL     string   // Demo frontend base URL
	Paths       []string // Endpoints hit in round-robin-ish fashion
	Users       int      // Number of virtual users
	DurationSec int      // Test duration in seconds
}

// worker sends HTTP requests against the demo frontend and records
// response times
func worker(ctx context.Context, loadConfig LoadConfig, results chan<- time.Duration) error {
	client := &http.Client{Timeout: 15 * time.Second}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			path := loadConfig.Paths[rand.Intn(len(loadConfig.Paths))]
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, loadConfig.BaseURL+path, nil)
			if err != nil {
				return err
			}

			start := time.Now()
			resp, _ := client.Do(req)
			duration := time.Since(start)

			results <- duration
			if resp != nil {
				resp.Body.Close()
			}
		}
	}
}

func runLoadTest(loadConfig LoadConfig) {
	results := make(chan time.Duration, 1000)

	ctx, cancel := context.WithTimeout(
		context.Background(),
		time.Duration(loadConfig.DurationSec)*time.Second,
	)
	defer cancel()

	var g errgroup.Group

	fmt.Printf("Starting load test against %s: %d users, %d s\n",
		loadConfig.BaseURL, loadConfig.Users, loadConfig.DurationSec)

	for i := 0; i < loadConfig.Users; i++ {
		g.Go(func() error {
			return worker(ctx, loadConfig, results)
		})
	}

	go func() {
		g.Wait()
		close(results)
	}()

	// Process results
	var totalRequests int
	var totalTime time.Duration

	for r := range results {
		totalRequests++
		totalTime += r
	}

	avgTime := time.Duration(0)
	if totalRequests > 0 {
		avgTime = totalTime / time.Duration(totalRequests)
	}

	fmt.Printf("\nLoad Test Results:\n")
	fmt.Printf("Total Requests: %d\n", totalRequests)
	fmt.Printf("Average Response Time: %s\n", avgTime)

	if err := g.Wait(); err != nil {
		fmt.Println("Load test encountered errors:", err)
	}

	fmt.Println("Load test completed.")
}

func envIntOr(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func main() {
	baseURL := os.Getenv("FRONTEND_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	loadConfig := LoadConfig{
		BaseURL:     baseURL,
		Paths:       []string{"/api/users", "/api/orders", "/api/products"},
		Users:       envIntOr("USERS", 5),
		DurationSec: envIntOr("DURATION_SEC", 60),
	}

	runLoadTest(loadConfig)
}
