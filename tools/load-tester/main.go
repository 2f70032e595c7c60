package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/V4T54L/worksync/internal/client"
	"github.com/V4T54L/worksync/internal/domain"
)

func main() {
	targetURL := flag.String("url", "http://localhost:8080", "API base URL")
	apiKey := flag.String("api-key", "supersecretkey", "API Key for authentication")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 200, "Requests per second limit")
	batch := flag.Int("batch", 1, "Events per request; more than one is sent as NDJSON")
	employees := flag.Int("employees", 50, "Number of distinct synthetic employees")
	flag.Parse()

	log.Printf("Starting load test on %s", *targetURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d, Batch: %d", *concurrency, *duration, *rps, *batch)

	var wg sync.WaitGroup
	var successCount, errorCount, eventCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 100) // Allow bursts up to 100
	c := client.New(*targetURL, *apiKey, client.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			gen := client.NewGenerator(uint64(workerID)+1, *employees)

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				eventType := domain.EventTypes[int(eventCount.Load())%len(domain.EventTypes)]
				events := make([]domain.Event, *batch)
				for j := range events {
					events[j] = gen.Next(eventType)
				}

				_, code, err := c.SubmitEvents(ctx, eventType, events)
				if err != nil || (code != http.StatusAccepted && code != http.StatusCreated) {
					if ctx.Err() != nil {
						return
					}
					errorCount.Add(1)
					continue
				}
				successCount.Add(1)
				eventCount.Add(int64(len(events)))
			}
		}(i)
	}

	wg.Wait()

	totalRequests := successCount.Load() + errorCount.Load()
	actualRPS := float64(totalRequests) / duration.Seconds()

	log.Println("Load test finished.")
	log.Printf("Total Requests: %d", totalRequests)
	log.Printf("Successful (201/202): %d", successCount.Load())
	log.Printf("Events accepted: %d", eventCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual RPS: %.2f", actualRPS)
}
