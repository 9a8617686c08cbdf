// Command bookwatch subscribes to an aggregator's book stream and prints a
// derived view of the consolidated book: the best bid/offer, volume band
// boundaries, or basis-point price bands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/aggstream/aggbook/internal/client"
	"github.com/aggstream/aggbook/internal/domain"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "aggregator stream endpoint")
	symbol := flag.String("symbol", "BTCUSDT", "symbol to subscribe to")
	viewName := flag.String("view", "bbo", "view to print: bbo, volband, priceband")
	bandsFlag := flag.String("bands", "", "comma-separated notional thresholds for volband")
	bpsFlag := flag.String("bps", "", "comma-separated basis-point offsets for priceband")
	flag.Parse()

	view, err := buildView(*viewName, *symbol, *bandsFlag, *bpsFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bookwatch: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(*addr, *symbol)
	c.OnStatus(func(status domain.StatusPayload) {
		fmt.Printf("subscribed to %s (%d subscribers, up %ds)\n",
			status.Symbol, status.Subscribers, status.UptimeSeconds)
	})
	c.OnBatch(view.Apply)

	if err := c.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bookwatch: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	select {
	case <-ctx.Done():
	case <-c.Done():
		fmt.Fprintln(os.Stderr, "bookwatch: connection closed by server")
		os.Exit(1)
	}
}

func buildView(name, symbol, bandsFlag, bpsFlag string) (client.View, error) {
	switch name {
	case "bbo":
		return client.NewBBOView(symbol, os.Stdout), nil
	case "volband":
		thresholds, err := parseFloatList(bandsFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid -bands: %w", err)
		}
		return client.NewVolumeBandView(symbol, thresholds, os.Stdout), nil
	case "priceband":
		bps, err := parseIntList(bpsFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid -bps: %w", err)
		}
		return client.NewPriceBandView(symbol, bps, os.Stdout), nil
	default:
		return nil, fmt.Errorf("unknown view %q (valid: bbo, volband, priceband)", name)
	}
}

func parseFloatList(raw string) ([]float64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func parseIntList(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
