// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"dxwatch/pkg/challenge"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "build":
		runBuild()
	case "stats":
		runStats()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: challenge-build <command> [options]

Commands:
  build   Convert a LoTW DXCC-credit ADIF export into a challenge snapshot
  stats   Show snapshot statistics

Options:
  --db=<path>       Snapshot database path (default: ./challengedb)
  --adif=<path>     LoTW credit ADIF export (build only)
  --version         Show version

Examples:
  # Build the snapshot from a fresh LoTW export
  challenge-build build --adif=lotw-credits.adi --db=./data/challengedb

  # Inspect an existing snapshot
  challenge-build stats --db=./data/challengedb
`)
}

type Config struct {
	dbPath      string
	adifPath    string
	showVersion bool
}

func parseFlags(args []string) *Config {
	fs := flag.NewFlagSet("challenge-build", flag.ExitOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.dbPath, "db", "./challengedb", "Snapshot database path")
	fs.StringVar(&cfg.adifPath, "adif", "", "LoTW credit ADIF export")
	fs.BoolVar(&cfg.showVersion, "version", false, "Show version")

	fs.Parse(args)

	if cfg.showVersion {
		fmt.Printf("challenge-build version %s\n", version)
		os.Exit(0)
	}

	return cfg
}

func runBuild() {
	cfg := parseFlags(os.Args[2:])
	if cfg.adifPath == "" {
		log.Fatalf("ERROR: --adif is required for build")
	}

	f, err := os.Open(cfg.adifPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to open ADIF export: %v", err)
	}
	defer f.Close()

	credits, err := challenge.ParseADIF(f)
	if err != nil {
		log.Fatalf("ERROR: Failed to parse ADIF export: %v", err)
	}
	log.Printf("INFO: Parsed %d credits from %s", len(credits), cfg.adifPath)

	slots := make([]challenge.Slot, 0, len(credits))
	names := make(map[int]string)
	skipped := 0
	for _, credit := range credits {
		if credit.Band == "" {
			skipped++
			continue
		}
		slots = append(slots, challenge.Slot{
			EntityID:  credit.DXCC,
			Band:      credit.Band,
			Mode:      credit.Mode,
			Confirmed: true,
		})
		if credit.Country != "" {
			names[credit.DXCC] = credit.Country
		}
	}
	if skipped > 0 {
		log.Printf("WARN: Skipped %d credits without a band", skipped)
	}

	store, err := challenge.Open(cfg.dbPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to open snapshot store: %v", err)
	}
	defer store.Close()

	if err := store.PutSlots(slots); err != nil {
		log.Fatalf("ERROR: Failed to write slots: %v", err)
	}
	if err := store.PutEntityNames(names); err != nil {
		log.Fatalf("ERROR: Failed to write entity names: %v", err)
	}
	if err := store.InitializeMetadata(cfg.adifPath); err != nil {
		log.Fatalf("ERROR: Failed to write metadata: %v", err)
	}

	log.Printf("INFO: Snapshot built at %s: %d slots, %d entities", cfg.dbPath, len(slots), len(names))
}

func runStats() {
	cfg := parseFlags(os.Args[2:])

	store, err := challenge.OpenExisting(cfg.dbPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to open snapshot store: %v", err)
	}
	defer store.Close()

	slots, err := store.Slots()
	if err != nil {
		log.Fatalf("ERROR: Failed to read slots: %v", err)
	}
	names, err := store.EntityNames()
	if err != nil {
		log.Fatalf("ERROR: Failed to read entity names: %v", err)
	}

	confirmed := 0
	perBand := make(map[string]int)
	for _, slot := range slots {
		if slot.Confirmed {
			confirmed++
			perBand[slot.Band]++
		}
	}

	fmt.Printf("Snapshot:           %s\n", cfg.dbPath)
	fmt.Printf("Slots:              %d (%d confirmed)\n", len(slots), confirmed)
	fmt.Printf("Entities:           %d\n", len(names))
	for _, band := range []string{"160m", "80m", "60m", "40m", "30m", "20m", "17m", "15m", "12m", "10m", "6m"} {
		if n := perBand[band]; n > 0 {
			fmt.Printf("  %-6s            %d\n", band, n)
		}
	}

	if builtAt, err := store.BuiltAt(); err == nil && !builtAt.IsZero() {
		fmt.Printf("Built:              %s\n", builtAt.Format("2006-01-02 15:04:05 MST"))
	}
	if source, err := store.GetMetadata("source_file"); err == nil && source != "" {
		fmt.Printf("Source:             %s\n", source)
	}
}
