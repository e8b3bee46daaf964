package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

func post(client *http.Client, url string, body []byte) ([]byte, error) {
	resp, err := client.Post(url, "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func pollAPI(pollURL string, stop <-chan struct{}) {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			resp, err := client.Get(pollURL)
			if err != nil {
				log.Printf("poll error: %v", err)
				continue
			}
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			// try to pretty-print JSON
			var out bytes.Buffer
			if err := json.Indent(&out, body, "", "  "); err == nil {
				log.Printf("API: %s", out.String())
			} else {
				log.Printf("API: %s", strings.TrimSpace(string(body)))
			}
		}
	}
}

// load_sender drives encode/decode round trips against a running service
// and reports throughput while polling /api/stats.
func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "codec service base URL")
	message := flag.String("message", "Hello, world! ", "message to send")
	repeat := flag.Int("repeat", 10, "times the message is repeated per request")
	count := flag.Int("count", 100, "round trips per worker")
	workers := flag.Int("workers", 4, "concurrent workers")
	poll := flag.Bool("poll", true, "poll /api/stats every second")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	payload := []byte(strings.Repeat(*message, *repeat))

	stop := make(chan struct{})
	if *poll {
		go pollAPI(*addr+"/api/stats", stop)
	}

	log.Printf("running %d workers x %d round trips of %d bytes", *workers, *count, len(payload))

	var ok, failed atomic.Int64
	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < *count; i++ {
				packet, err := post(client, *addr+"/api/encode", payload)
				if err == nil {
					var decoded []byte
					decoded, err = post(client, *addr+"/api/decode", packet)
					if err == nil && !bytes.Equal(decoded, payload) {
						err = fmt.Errorf("round trip mismatch")
					}
				}
				if err != nil {
					failed.Add(1)
					log.Printf("worker %d request %d: %v", w, i, err)
					continue
				}
				ok.Add(1)
			}
		}(w)
	}
	wg.Wait()
	close(stop)

	elapsed := time.Since(start)
	log.Printf("%d ok, %d failed in %s (%.1f round trips/s)",
		ok.Load(), failed.Load(), elapsed.Round(time.Millisecond), float64(ok.Load())/elapsed.Seconds())
}
