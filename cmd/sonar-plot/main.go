// Command sonar-plot renders the readings of a recorded session to a PNG.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/sonar/internal/db"
	"github.com/banshee-data/sonar/internal/units"
)

var (
	dbPath    = flag.String("db", "sonar.db", "SQLite database path")
	sessionID = flag.String("session", "", "Session to plot (default: most recent)")
	out       = flag.String("out", "", "Output PNG path (default: session-<id>.png)")
	limit     = flag.Int("limit", db.MaxReadingLimit, "Maximum readings to plot")
	unitsFlag = flag.String("units", units.M, "Distance units ("+units.GetValidUnitsString()+")")
	width     = flag.Float64("width", 14, "Image width in inches")
	height    = flag.Float64("height", 6, "Image height in inches")
)

func main() {
	flag.Parse()

	unit, err := units.ParseUnits(*unitsFlag)
	if err != nil {
		log.Fatal(err)
	}

	store, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	s, err := findSession(ctx, store, *sessionID)
	if err != nil {
		log.Fatal(err)
	}

	rs, err := store.Readings(ctx, db.ReadingQuery{SessionID: s.ID, Limit: *limit})
	if err != nil {
		log.Fatalf("failed to load readings: %v", err)
	}

	p, err := sessionPlot(s, rs, unit)
	if err != nil {
		log.Fatal(err)
	}

	path := *out
	if path == "" {
		path = fmt.Sprintf("session-%s.png", shortID(s.ID))
	}
	if err := p.Save(vg.Length(*width)*vg.Inch, vg.Length(*height)*vg.Inch, path); err != nil {
		log.Fatalf("failed to save plot: %v", err)
	}
	log.Printf("wrote %d readings to %s", len(rs), path)
}

func findSession(ctx context.Context, store *db.DB, id string) (*db.Session, error) {
	if id != "" {
		return store.GetSession(ctx, id)
	}
	ss, err := store.Sessions(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(ss) == 0 {
		return nil, fmt.Errorf("no sessions recorded in %s", *dbPath)
	}
	return ss[0], nil
}
