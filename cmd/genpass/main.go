// Command genpass generates synthetic satellite pass messages for
// feeding the source topic in development and test setups. Detections
// are scattered around a center point with a fixed seed, so repeated
// runs produce identical fixtures.
//
// Usage:
//
//	go run ./cmd/genpass \
//	  -count 25 \
//	  -center-lat 59.33 -center-lon 18.06 \
//	  -out testdata/pass_afimg.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/adybbroe/activefires-pp/internal/domain"
)

var passStart = time.Date(2023, time.June, 16, 11, 20, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	count := flag.Int("count", 25, "number of detections in the pass")
	centerLat := flag.Float64("center-lat", 59.33, "center latitude, decimal degrees")
	centerLon := flag.Float64("center-lon", 18.06, "center longitude, decimal degrees")
	spread := flag.Float64("spread", 2.0, "max offset from center, degrees")
	product := flag.String("product", "afimg", "product identifier")
	platform := flag.String("platform", "Suomi-NPP", "platform name")
	seed := flag.Int64("seed", 1, "random seed")
	out := flag.String("out", "", "output path for the pass message JSON")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	rng := rand.New(rand.NewSource(*seed))

	pass := domain.PassMessage{
		Product:      *product,
		PlatformName: *platform,
		StartTime:    passStart,
		EndTime:      passStart.Add(90 * time.Second),
		OrbitNumber:  54321,
		Detections:   make([]domain.Detection, *count),
	}

	for i := range pass.Detections {
		pass.Detections[i] = domain.Detection{
			Latitude:      *centerLat + (rng.Float64()*2-1)**spread,
			Longitude:     *centerLon + (rng.Float64()*2-1)**spread,
			TB:            300 + rng.Float64()*50,
			AlongScanRes:  0.375,
			AlongTrackRes: 0.375,
			Confidence:    7 + rng.Intn(3),
			Power:         1 + rng.Float64()*30,
		}
	}

	if err := writeJSON(*out, pass); err != nil {
		return fmt.Errorf("writing pass fixture: %w", err)
	}
	log.Printf("wrote %d detections to %s", *count, *out)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
