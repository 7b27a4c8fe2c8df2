// Package main - agitator
// Load generator: many concurrent websocket clients spamming the robot with overrides
// while it streams telemetry back.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/emotion"
	"github.com/dewwy/petbot/internal/engine"
	"github.com/dewwy/petbot/internal/network"
	"github.com/gorilla/websocket"
)

// Config for the agitator
type Config struct {
	ServerURL      string
	NumClients     int
	ActionInterval time.Duration
	TestDuration   time.Duration
	Output         string
}

// Stats tracks performance metrics
type Stats struct {
	MessagesSent int64
	Acks         int64
	Rejected     int64
	Telemetry    int64
	Errors       int64
	Latencies    []time.Duration
	mu           sync.Mutex
}

var phrases = []string{
	"come here",
	"good robot",
	"let's play",
	"go to sleep",
	"wake up",
	"turn left",
	"explore",
	"hello",
	"do a barrel roll",
}

var nudges = []string{"forward", "backward", "left", "right"}

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	numClients := flag.Int("clients", 20, "Number of concurrent clients")
	interval := flag.Duration("interval", 200*time.Millisecond, "Override interval per client")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	output := flag.String("out", "agitator_results.json", "Where to write the JSON summary")
	flag.Parse()

	config := Config{
		ServerURL:      *serverURL,
		NumClients:     *numClients,
		ActionInterval: *interval,
		TestDuration:   *duration,
		Output:         *output,
	}

	fmt.Println("=========================================")
	fmt.Println("AGITATOR - override load test")
	fmt.Println("=========================================")
	fmt.Printf("Server:   %s\n", config.ServerURL)
	fmt.Printf("Clients:  %d\n", config.NumClients)
	fmt.Printf("Interval: %v\n", config.ActionInterval)
	fmt.Printf("Duration: %v\n", config.TestDuration)

	ctx, cancel := context.WithTimeout(context.Background(), config.TestDuration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupt received, stopping...")
		cancel()
	}()

	stats := runStressTest(ctx, config)
	if !printResults(stats, config) {
		os.Exit(1)
	}
}

func runStressTest(ctx context.Context, config Config) *Stats {
	stats := &Stats{Latencies: make([]time.Duration, 0, 10000)}
	var wg sync.WaitGroup

	for i := 0; i < config.NumClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			runClient(ctx, clientID, config, stats)
		}(i)

		// Stagger client starts to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}
	fmt.Printf("All %d clients started\n\n", config.NumClients)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Printf("Progress: sent=%d acks=%d rejected=%d telemetry=%d errors=%d\n",
					atomic.LoadInt64(&stats.MessagesSent), atomic.LoadInt64(&stats.Acks),
					atomic.LoadInt64(&stats.Rejected), atomic.LoadInt64(&stats.Telemetry),
					atomic.LoadInt64(&stats.Errors))
			}
		}
	}()

	wg.Wait()
	return stats
}

func runClient(ctx context.Context, clientID int, config Config, stats *Stats) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(clientID)))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		log.Printf("client %d: connection failed: %v", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	var pending sync.Map // id -> send time

	go func() {
		for {
			var msg network.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case network.MsgTypeEvent:
				atomic.AddInt64(&stats.Telemetry, 1)
			case network.MsgTypeAck, network.MsgTypeError:
				if msg.Type == network.MsgTypeAck {
					atomic.AddInt64(&stats.Acks, 1)
				} else {
					atomic.AddInt64(&stats.Rejected, 1)
				}
				if sent, ok := pending.LoadAndDelete(msg.Ref); ok {
					stats.mu.Lock()
					stats.Latencies = append(stats.Latencies, time.Since(sent.(time.Time)))
					stats.mu.Unlock()
				}
			}
		}
	}()

	ticker := time.NewTicker(config.ActionInterval)
	defer ticker.Stop()

	for seq := 0; ; seq++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id := fmt.Sprintf("c%03d-%d", clientID, seq)
			frame := network.InboundOverride{ID: id, Override: generateRandomOverride(rng)}
			pending.Store(id, time.Now())
			if err := conn.WriteJSON(frame); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}
			atomic.AddInt64(&stats.MessagesSent, 1)
		}
	}
}

func generateRandomOverride(rng *rand.Rand) engine.Override {
	switch rng.Intn(5) {
	case 0:
		states := behavior.All()
		return engine.Override{Type: engine.OverrideTransition, State: string(states[rng.Intn(len(states))])}
	case 1:
		emotions := emotion.All()
		return engine.Override{Type: engine.OverrideEmotion, Emotion: string(emotions[rng.Intn(len(emotions))])}
	case 2:
		return engine.Override{Type: engine.OverrideNudge, Nudge: nudges[rng.Intn(len(nudges))]}
	case 3:
		return engine.Override{Type: engine.OverrideTeach, Keyword: "shake", Response: "*offers a paw*"}
	default:
		return engine.Override{Type: engine.OverrideCommand, Text: phrases[rng.Intn(len(phrases))]}
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}

// printResults reports the run and returns false when the error rate is too high.
func printResults(stats *Stats, config Config) bool {
	sent := atomic.LoadInt64(&stats.MessagesSent)
	acks := atomic.LoadInt64(&stats.Acks)
	rejected := atomic.LoadInt64(&stats.Rejected)
	errs := atomic.LoadInt64(&stats.Errors)
	throughput := float64(sent) / config.TestDuration.Seconds()

	fmt.Println("\n=========================================")
	fmt.Println("RESULTS")
	fmt.Println("=========================================")
	fmt.Printf("Overrides sent:  %d\n", sent)
	fmt.Printf("Acknowledged:    %d\n", acks)
	fmt.Printf("Rejected:        %d\n", rejected)
	fmt.Printf("Telemetry in:    %d\n", atomic.LoadInt64(&stats.Telemetry))
	fmt.Printf("Errors:          %d\n", errs)
	fmt.Printf("Throughput:      %.2f overrides/sec\n", throughput)

	stats.mu.Lock()
	lat := append([]time.Duration(nil), stats.Latencies...)
	stats.mu.Unlock()
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
	if len(lat) > 0 {
		fmt.Printf("\nAck latency:\n  p50: %v\n  p95: %v\n  max: %v\n",
			percentile(lat, 0.5), percentile(lat, 0.95), lat[len(lat)-1])
	}

	errorRate := float64(errs) / float64(sent+1)
	ok := errorRate < 0.05
	fmt.Println("-----------------------------------------")
	if ok {
		fmt.Println("PASSED: the robot kept up")
	} else {
		fmt.Println("FAILED: high error rate")
	}

	results := map[string]interface{}{
		"overrides_sent":     sent,
		"acks":               acks,
		"rejected":           rejected,
		"errors":             errs,
		"throughput_per_sec": throughput,
		"p95_latency_ms":     float64(percentile(lat, 0.95)) / 1e6,
		"config": map[string]interface{}{
			"clients":  config.NumClients,
			"interval": config.ActionInterval.String(),
			"duration": config.TestDuration.String(),
		},
	}
	jsonData, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile(config.Output, jsonData, 0644); err != nil {
		log.Printf("failed to write %s: %v", config.Output, err)
	} else {
		fmt.Printf("Results saved to %s\n", config.Output)
	}
	return ok
}
