package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/unigate/backend/internal/ingress"
	"github.com/unigate/backend/internal/observability"
)

var (
	addr        string
	filePath    string
	size        int
	count       int
	concurrency int
	timeout     time.Duration
)

func main() {
	flag.StringVar(&addr, "addr", "127.0.0.1:4433", "Ingress address (host:port)")
	flag.StringVar(&filePath, "file", "", "Send the content of this file as each packet")
	flag.IntVar(&size, "size", 512, "Random packet size in bytes when --file is not set")
	flag.IntVar(&count, "count", 1, "Number of packets to send")
	flag.IntVar(&concurrency, "concurrency", 4, "Streams in flight at once")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "Overall deadline")
	flag.Parse()

	// Init tracing if configured
	if shutdown, err := observability.InitTracing(context.Background(), "unigate-unisend"); err == nil {
		defer shutdown(context.Background())
	}

	if count < 1 || concurrency < 1 {
		fmt.Fprintln(os.Stderr, "--count and --concurrency must be positive")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := sendPackets(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadPayload() ([]byte, error) {
	if filePath != "" {
		return os.ReadFile(filePath)
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func sendPackets() error {
	tr := otel.Tracer("unigate-unisend")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx, span := tr.Start(ctx, "sendPackets")
	defer span.End()

	payload, err := loadPayload()
	if err != nil {
		return fmt.Errorf("failed to load payload: %w", err)
	}
	if len(payload) > ingress.MaxPacketSize {
		fmt.Fprintf(os.Stderr, "WARNING: %d bytes exceeds the default server limit of %d\n", len(payload), ingress.MaxPacketSize)
	}
	span.SetAttributes(attribute.Int("unigate.packet_size", len(payload)), attribute.Int("unigate.packets", count))

	fmt.Printf("Connecting to %s...\n", addr)
	conn, err := ingress.Dial(ctx, addr, nil)
	if err != nil {
		return err
	}
	defer conn.CloseWithError(0, "done")
	fmt.Println("Connection established")

	start := time.Now()
	var sent, failed atomic.Int64
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := ingress.Send(ctx, conn, payload); err != nil {
				failed.Add(1)
				fmt.Fprintf(os.Stderr, "packet %d: %v\n", i, err)
				return
			}
			sent.Add(1)
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("Sent %d/%d packets (%d bytes each) in %s\n", sent.Load(), count, len(payload), elapsed.Round(time.Millisecond))

	// Give the server a moment to read the last streams before closing the connection
	time.Sleep(100 * time.Millisecond)
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d packets failed", n)
	}
	return nil
}
