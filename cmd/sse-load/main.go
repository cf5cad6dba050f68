// Command sse-load holds many board streams open and counts the projections they receive.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"studyboard/client"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return i
}

func main() {
	baseURL := getenv("API_URL", "http://localhost:8080")
	conns := getenvInt("SSE_CONNECTIONS", 200)
	duration := time.Duration(getenvInt("DURATION_SEC", 120)) * time.Second
	bearer := os.Getenv("TEST_BEARER")
	if bearer == "" {
		log.Fatal("missing TEST_BEARER")
	}

	var events, attempts, failures atomic.Uint64

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	c := client.NewHTTPClient(baseURL, bearer)
	var wg sync.WaitGroup
	wg.Add(conns)
	for range conns {
		go func() {
			defer wg.Done()
			backoff := time.Second
			for ctx.Err() == nil {
				attempts.Add(1)
				st, err := c.Subscribe(ctx)
				if err != nil {
					failures.Add(1)
					time.Sleep(backoff)
					backoff = min(backoff*2, 5*time.Second)
					continue
				}
				backoff = time.Second
				for range st.Updates() {
					events.Add(1)
				}
				if ctx.Err() != nil {
					return
				}
				log.WithError(st.Err()).Debug("stream lost")
				failures.Add(1)
			}
		}()
	}

	go func() {
		select {
		case <-time.After(60 * time.Second):
			if events.Load() == 0 {
				fmt.Println("no events received in 60s")
				os.Exit(1)
			}
		case <-ctx.Done():
		}
	}()

	wg.Wait()
	failureRate := 0.0
	if n := attempts.Load(); n > 0 {
		failureRate = float64(failures.Load()) / float64(n)
	}
	fmt.Printf("connections=%d duration_sec=%d events_received=%d connection_failures=%d\n",
		conns, int(duration.Seconds()), events.Load(), failures.Load())
	if events.Load() == 0 || failureRate > 0.01 {
		os.Exit(1)
	}
}
