// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"dxwatch/pkg/challenge"
	"dxwatch/pkg/ctydb"
	"dxwatch/pkg/model"
)

const version = "1.0.0"

var allBands = []string{"160m", "80m", "60m", "40m", "30m", "20m", "17m", "15m", "12m", "10m", "6m"}

type lookupResult struct {
	Callsign      string   `json:"callsign"`
	Entity        string   `json:"entity"`
	EntityID      int      `json:"entity_id,omitempty"`
	PrimaryPrefix string   `json:"primary_prefix"`
	Continent     string   `json:"continent"`
	CQZone        int      `json:"cq_zone"`
	ITUZone       int      `json:"itu_zone"`
	MatchedBy     string   `json:"matched_by"`
	Exact         bool     `json:"exact"`
	Deleted       bool     `json:"deleted,omitempty"`
	NeededBands   []string `json:"needed_bands,omitempty"`
}

func main() {
	ctyPath := flag.String("cty", "./cty.dat", "Path to CTY.DAT country database")
	challengePath := flag.String("db", "", "Challenge snapshot path (optional)")
	jsonOutput := flag.Bool("json", true, "Output as JSON")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dxcc-lookup version %s\n", version)
		return
	}

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: dxcc-lookup [options] <callsign>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  dxcc-lookup 3B8XYZ\n")
		fmt.Fprintf(os.Stderr, "  dxcc-lookup --cty=/data/cty.dat --db=/data/challengedb W1AW\n")
		os.Exit(1)
	}

	call := flag.Arg(0)

	db := ctydb.New()
	if err := db.LoadFile(*ctyPath); err != nil {
		log.Fatalf("ERROR: Failed to load country database: %v", err)
	}

	state := challenge.NewState()
	if *challengePath != "" {
		if err := state.LoadStore(*challengePath); err != nil {
			log.Fatalf("ERROR: Failed to load challenge snapshot: %v", err)
		}
		matched := db.SetEntityNumbers(state.EntityNames())
		log.Printf("INFO: Matched %d entities to DXCC numbers", matched)
	}

	res, err := db.Resolve(call)
	if err != nil {
		if errors.Is(err, model.ErrUnresolved) {
			if *jsonOutput {
				fmt.Printf("{\"error\":\"callsign matches no prefix rule\",\"callsign\":\"%s\"}\n", call)
			} else {
				fmt.Printf("Callsign %s matches no prefix rule\n", call)
			}
			os.Exit(1)
		}
		log.Fatalf("ERROR: Lookup failed: %v", err)
	}

	result := &lookupResult{
		Callsign:      ctydb.NormalizeCall(call),
		Entity:        res.Entity.Name,
		EntityID:      res.Entity.ID,
		PrimaryPrefix: res.Entity.PrimaryPrefix,
		Continent:     res.Entity.Continent,
		CQZone:        res.CQZone,
		ITUZone:       res.ITUZone,
		MatchedBy:     res.MatchedBy,
		Exact:         res.Exact,
		Deleted:       res.Entity.Deleted,
	}
	if state.Loaded() && res.Entity.ID > 0 {
		for _, band := range allBands {
			if state.IsNeeded(res.Entity.ID, band) {
				result.NeededBands = append(result.NeededBands, band)
			}
		}
	}

	if *jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("ERROR: Failed to marshal JSON: %v", err)
		}
		fmt.Println(string(data))
	} else {
		printHumanReadable(result)
	}
}

func printHumanReadable(result *lookupResult) {
	fmt.Printf("Callsign:           %s\n", result.Callsign)
	fmt.Printf("Entity:             %s\n", result.Entity)
	if result.EntityID > 0 {
		fmt.Printf("DXCC Number:        %d\n", result.EntityID)
	}
	fmt.Printf("Primary Prefix:     %s\n", result.PrimaryPrefix)
	fmt.Printf("Continent:          %s\n", result.Continent)
	fmt.Printf("CQ Zone:            %d\n", result.CQZone)
	fmt.Printf("ITU Zone:           %d\n", result.ITUZone)
	if result.Exact {
		fmt.Printf("Matched By:         %s (exact exception)\n", result.MatchedBy)
	} else {
		fmt.Printf("Matched By:         %s\n", result.MatchedBy)
	}
	if result.Deleted {
		fmt.Printf("Deleted:            yes\n")
	}
	if len(result.NeededBands) > 0 {
		fmt.Printf("Needed Bands:       %v\n", result.NeededBands)
	}
}
