package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/davidhag/gtfsnext"
	"github.com/spf13/pflag"
)

func usageAndDie() {
	fmt.Println("Example usage:\n" +
		"    gtfsnext --config config.yml --update\n" +
		"    gtfsnext --config config.yml --status\n" +
		"    gtfsnext --config config.yml --departures <stop_id> --route <route_id>\n" +
		"    gtfsnext --config config.yml --stop <stop_id>")
	os.Exit(1)
}

func main() {
	configPath := pflag.StringP("config", "c", "config.yml", "Path to the YAML config")

	update := pflag.BoolP("update", "u", false, "Run the full update pipeline")
	status := pflag.Bool("status", false, "Show lifecycle state and run metadata")
	departuresStop := pflag.String("departures", "", "List next departures from a stop (requires --route)")
	resolveStop := pflag.String("stop", "", "Resolve a stop and the routes serving it")
	primaryCount := 0

	route := pflag.String("route", "", "Route id for --departures")
	direction := pflag.Int("direction", 1, "Direction id for --departures")
	limit := pflag.Int("limit", 3, "Number of departures for --departures")

	pflag.Parse()

	if *update {
		primaryCount++
	}
	if *status {
		primaryCount++
	}
	if *departuresStop != "" {
		primaryCount++
	}
	if *resolveStop != "" {
		primaryCount++
	}
	if primaryCount != 1 {
		usageAndDie()
	}

	cfg, err := gtfsnext.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	manager, err := gtfsnext.NewManager(cfg)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}

	if *update {
		err = manager.TriggerUpdate(context.Background())
	} else if *status {
		printStatus(manager)
	} else if *departuresStop != "" {
		if *route == "" {
			usageAndDie()
		}
		err = printDepartures(manager, *departuresStop, *route, *direction, *limit)
	} else {
		err = printStop(manager, *resolveStop)
	}

	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
}

func printStatus(manager *gtfsnext.Manager) {
	state := manager.State()
	fmt.Printf("State: %s\n", state.Phase)
	if state.Progress != gtfsnext.ProgressNone {
		fmt.Printf("Progress: %d%%\n", state.Progress)
	}
	if state.Err != "" {
		fmt.Printf("Last error: %s\n", state.Err)
	}

	meta := manager.Metadata()
	if meta.LastDownload.IsZero() {
		fmt.Println("No dataset installed yet")
		return
	}
	fmt.Printf("Last download: %s\n", meta.LastDownload.Format(time.RFC3339))
	fmt.Printf("Database size: %.1f MB\n", meta.DBSizeMB)
	if manager.UpdateRecommended(time.Now()) {
		fmt.Println("An update is recommended")
	}
}

func printDepartures(manager *gtfsnext.Manager, stopID, routeID string, direction, limit int) error {
	departures, err := manager.NextDepartures(stopID, routeID, direction, limit)
	if err != nil {
		return err
	}
	if len(departures) == 0 {
		fmt.Printf("Fewer than %d upcoming departures found\n", limit)
		return nil
	}
	for _, d := range departures {
		fmt.Printf("%s  %s  %s\n", d.At.Format("2006-01-02"), d.Time, d.Headsign)
	}
	return nil
}

func printStop(manager *gtfsnext.Manager, stopID string) error {
	stop, err := manager.ResolveStop(stopID)
	if err != nil {
		return err
	}
	if stop == nil {
		fmt.Printf("No stop with id %s\n", stopID)
		return nil
	}
	fmt.Printf("%s (%s) at %f,%f\n", stop.Name, stop.ID, stop.Lat, stop.Lon)
	for _, r := range stop.Routes {
		fmt.Printf("  %s dir %d -> %s (%s)\n", r.ShortName, r.Direction, r.Headsign, r.AgencyName)
	}
	return nil
}
