//go:build ignore

// smoke.go walks a running ledger through a full custody chain and checks
// that the chain verifies locally and that a backwards transition is refused.
//
// Run with tokens printed by cmd/seed:
//
//	MFR_TOKEN=... DIST_TOKEN=... ADMIN_TOKEN=... go run scripts/smoke.go http://localhost:8080
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmerrifield20/provenance/internal/hashchain"
	"github.com/jmerrifield20/provenance/pkg/client"
)

func main() {
	base := "http://localhost:8080"
	if len(os.Args) > 1 {
		base = os.Args[1]
	}
	if err := run(base); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK")
}

func mustClient(base, envVar string) *client.Client {
	tok := os.Getenv(envVar)
	if tok == "" {
		fmt.Fprintf(os.Stderr, "%s is not set\n", envVar)
		os.Exit(2)
	}
	c, err := client.New(base, client.WithBearerToken(tok))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return c
}

func run(base string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mfr := mustClient(base, "MFR_TOKEN")
	dist := mustClient(base, "DIST_TOKEN")
	admin := mustClient(base, "ADMIN_TOKEN")

	p, err := mfr.CreateProduct(ctx, client.CreateProductRequest{
		Name:        fmt.Sprintf("smoke-%d", time.Now().Unix()),
		Category:    "pharmaceutical",
		Origin:      "Basel",
		BatchNumber: "SMOKE-1",
		GPS:         &client.GPS{Lat: 47.5596, Lng: 7.5886, Accuracy: 10},
	})
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	id := p.ID.String()
	fmt.Printf("created %s\n", id)

	steps := []struct {
		c     *client.Client
		stage string
		loc   string
		gps   *client.GPS
	}{
		{mfr, "manufacturing", "Basel plant", &client.GPS{Lat: 47.5596, Lng: 7.5886, Accuracy: 10}},
		{mfr, "quality_check", "Basel QA lab", &client.GPS{Lat: 47.5601, Lng: 7.5890, Accuracy: 10}},
		{dist, "warehouse", "Basel depot", &client.GPS{Lat: 47.5480, Lng: 7.5900, Accuracy: 25}},
	}
	for _, s := range steps {
		b, err := s.c.AppendCheckpoint(ctx, id, client.CheckpointRequest{
			Stage: s.stage, Location: s.loc, Handler: "smoke", GPS: s.gps,
		})
		if err != nil {
			return fmt.Errorf("append %s: %w", s.stage, err)
		}
		fmt.Printf("  block %d %s\n", b.BlockNumber, b.Stage)
	}

	_, err = dist.AppendCheckpoint(ctx, id, client.CheckpointRequest{
		Stage: "manufacturing", Location: "Basel depot", Handler: "smoke",
	})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != "InvalidTransition" {
		return fmt.Errorf("warehouse -> manufacturing: want InvalidTransition, got %v", err)
	}

	full, err := mfr.GetProduct(ctx, id)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	if res := hashchain.VerifyChain(full.Chain); !res.Valid {
		return fmt.Errorf("local verification: %w", res.Err())
	}

	report, err := admin.VerifyChain(ctx, id)
	if err != nil {
		return fmt.Errorf("remote verification: %w", err)
	}
	if !report.Valid {
		return fmt.Errorf("remote verification reported invalid chain: %s", report.Reason)
	}
	fmt.Printf("chain of %d blocks verified\n", len(full.Chain))
	return nil
}
