// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"dxwatch/pkg/challenge"
	"dxwatch/pkg/cluster"
	"dxwatch/pkg/ctydb"
	"dxwatch/pkg/geo"
	"dxwatch/pkg/lotw"
	"dxwatch/pkg/model"
	"dxwatch/pkg/spot"
	"dxwatch/pkg/util/workers"
)

const version = "1.0.0"

func defaultSettings() model.Settings {
	return model.Settings{
		Server:          "www.ve7cc.net:23",
		AutoConnect:     true,
		AutoReconnect:   true,
		RefreshInterval: 24 * time.Hour,
	}
}

func loadSettings(path string) (model.Settings, error) {
	settings := defaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("failed to parse settings: %w", err)
	}
	return settings, nil
}

func main() {
	configPath := flag.String("config", "", "Path to YAML settings file")
	server := flag.String("server", "", "Cluster host:port (overrides config)")
	callsign := flag.String("call", "", "Login callsign (overrides config)")
	ctyPath := flag.String("cty", "", "Path to CTY.DAT (overrides config; fetched when unset)")
	challengePath := flag.String("challenge-db", "", "Challenge snapshot path (overrides config)")
	refresh := flag.Duration("refresh", 0, "Activity refresh interval (overrides config)")
	jsonOutput := flag.Bool("json", false, "Emit enriched spots as JSON lines")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dxwatch version %s\n", version)
		return
	}

	settings := defaultSettings()
	if *configPath != "" {
		var err error
		if settings, err = loadSettings(*configPath); err != nil {
			log.Fatalf("ERROR: %v", err)
		}
	}
	if *server != "" {
		settings.Server = *server
	}
	if *callsign != "" {
		settings.Callsign = *callsign
	}
	if *ctyPath != "" {
		settings.CTYPath = *ctyPath
	}
	if *challengePath != "" {
		settings.ChallengeDB = *challengePath
	}
	if *refresh > 0 {
		settings.RefreshInterval = *refresh
	}
	if settings.Callsign == "" {
		log.Fatalf("ERROR: a login callsign is required (--call or the settings file)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := ctydb.New()
	activity := lotw.NewCache()
	activitySource := lotw.NewHTTPSource("", "")
	state := challenge.NewState()

	// Independent startup loads run concurrently. Only a missing country
	// database is fatal; the watcher degrades without the others.
	g := workers.NewGroup(ctx, 3)
	g.Go(func(ctx context.Context) error {
		path := settings.CTYPath
		if path == "" {
			fetcher := ctydb.NewFetcher("", "./cache/cty")
			meta, err := fetcher.Fetch(ctx)
			if err != nil {
				return fmt.Errorf("country database fetch failed: %w", err)
			}
			path = meta.CachePath
		}
		if err := db.LoadFile(path); err != nil {
			return err
		}
		entities, rules := db.Counts()
		log.Printf("INFO: Loaded %d entities, %d prefix rules from %s", entities, rules, path)
		return nil
	})
	g.Go(func(ctx context.Context) error {
		if err := activity.Refresh(ctx, activitySource); err != nil {
			log.Printf("WARN: Activity refresh failed, spots will show not-user: %v", err)
			return nil
		}
		log.Printf("INFO: Activity table loaded, %d callsigns", activity.Len())
		return nil
	})
	g.Go(func(ctx context.Context) error {
		if settings.ChallengeDB == "" {
			log.Printf("INFO: No challenge snapshot configured, needed-slot tracking disabled")
			return nil
		}
		if err := state.LoadStore(settings.ChallengeDB); err != nil {
			log.Printf("WARN: Challenge snapshot load failed: %v", err)
			return nil
		}
		slots, entities := state.Counts()
		log.Printf("INFO: Challenge snapshot loaded, %d confirmed slots across %d entities", slots, entities)
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("ERROR: Startup failed: %v", err)
	}

	if state.Loaded() {
		matched := db.SetEntityNumbers(state.EntityNames())
		log.Printf("INFO: Matched %d entities to DXCC numbers", matched)
	}

	var geoLookup spot.GeoLookup
	if settings.MMDBCityPath != "" {
		reader, err := geo.Open(settings.MMDBCityPath)
		if err != nil {
			log.Printf("WARN: Spotter geo lookup disabled: %v", err)
		} else {
			defer reader.Close()
			geoLookup = reader
		}
	}

	pipeline := &spot.Pipeline{
		Parser:   spot.NewParser(),
		Enricher: spot.NewEnricher(db, activity, state, geoLookup),
		Sink: func(es model.EnrichedSpot) {
			if *jsonOutput {
				data, err := json.Marshal(es)
				if err != nil {
					log.Printf("ERROR: Failed to marshal spot: %v", err)
					return
				}
				fmt.Println(string(data))
				return
			}
			printSpot(es)
		},
	}
	if !*jsonOutput {
		pipeline.NonSpot = func(line string) { fmt.Println(line) }
	}

	client := cluster.NewClient(cluster.Config{
		Addr:            settings.Server,
		Callsign:        settings.Callsign,
		AutoReconnect:   settings.AutoReconnect,
		CommandInterval: time.Second,
	})
	if settings.AutoConnect {
		if err := client.Connect(ctx); err != nil {
			log.Fatalf("ERROR: Connect failed: %v", err)
		}
	} else {
		log.Printf("INFO: Auto-connect disabled, type /connect to start the session")
	}

	commands := readCommands()
	ticker := time.NewTicker(settings.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			client.Disconnect()
			log.Printf("INFO: Shutting down")
			return

		case line := <-client.Lines():
			if err := pipeline.HandleLine(line); err != nil {
				log.Printf("WARN: Dropped line: %v", err)
			}

		case ev := <-client.Events():
			if ev.Err != nil {
				log.Printf("WARN: Cluster %s: %v", ev.State, ev.Err)
			} else {
				log.Printf("INFO: Cluster %s", ev.State)
			}

		case <-ticker.C:
			go func() {
				if err := activity.Refresh(ctx, activitySource); err != nil {
					log.Printf("WARN: Activity refresh failed, keeping prior table: %v", err)
					return
				}
				log.Printf("INFO: Activity table refreshed, %d callsigns", activity.Len())
			}()

		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			handleCommand(ctx, cmd, client, state, db, settings)
		}
	}
}

// readCommands forwards stdin lines; the channel closes on EOF
func readCommands() <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				ch <- line
			}
		}
	}()
	return ch
}

// handleCommand runs a local /command or forwards the line to the cluster
func handleCommand(ctx context.Context, cmd string, client *cluster.Client, state *challenge.State, db *ctydb.DB, settings model.Settings) {
	switch cmd {
	case "/connect":
		if err := client.Connect(ctx); err != nil {
			log.Printf("WARN: %v", err)
		}
	case "/disconnect":
		client.Disconnect()
	case "/reload":
		if settings.ChallengeDB == "" {
			log.Printf("WARN: No challenge snapshot configured")
			return
		}
		if err := state.LoadStore(settings.ChallengeDB); err != nil {
			log.Printf("WARN: Challenge reload failed, keeping prior matrix: %v", err)
			return
		}
		matched := db.SetEntityNumbers(state.EntityNames())
		slots, entities := state.Counts()
		log.Printf("INFO: Challenge snapshot reloaded: %d slots, %d entities, %d matched", slots, entities, matched)
	case "/quit":
		client.Disconnect()
		os.Exit(0)
	default:
		if err := client.Send(cmd); err != nil {
			log.Printf("WARN: Command not sent: %v", err)
		}
	}
}

// printSpot writes one human-readable row. A leading * marks a spot whose
// (entity, band) credit is still missing.
func printSpot(es model.EnrichedSpot) {
	marker := " "
	if es.Needed {
		marker = "*"
	}
	entity := "?"
	if es.Entity != nil {
		entity = es.Entity.Name
	}
	band := es.Band
	if band == "" {
		band = "?"
	}
	fmt.Printf("%s %s %-5s %9.1f %-12s %-26s %-8s %s\n",
		marker,
		es.Time.Format("1504Z"),
		band,
		float64(es.FrequencyHz)/1000,
		es.DXCall,
		entity,
		es.ActivityLabel,
		es.Comment)
}
