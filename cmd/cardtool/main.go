// Command cardtool prepares card catalogs offline:
//   - imports a JSON catalog (or generated demo cards) into SQLite
//   - optionally bakes every label to PNG for a static CDN
//
// USAGE:
//
//	CARDS_SOURCE=data/cards.json CATALOG_DB=data/cards.db go run ./cmd/cardtool
//	DEMO_CARDS=5000 LABEL_DIR=out/labels LABEL_TIER=mobile go run ./cmd/cardtool
package main

import (
	"context"
	"image/png"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"card-field/internal/cards"
	"card-field/internal/config"
	"card-field/internal/resource"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	}

	log.Println("🃏 ================================")
	log.Println("🃏  CARD FIELD - CATALOG TOOL")
	log.Println("🃏 ================================")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source := os.Getenv("CARDS_SOURCE")
	dbPath := getEnvWithDefault("CATALOG_DB", "data/cards.db")
	labelDir := os.Getenv("LABEL_DIR")
	tier := resource.ParseTier(getEnvWithDefault("LABEL_TIER", "desktop"))
	workers := getEnvInt("LABEL_WORKERS", 4)

	var list []cards.Card
	if source != "" {
		catalog, err := cards.Load(ctx, source)
		if err != nil {
			log.Fatalf("❌ Failed to load %s: %v", source, err)
		}
		list = catalog.All()
		log.Printf("✅ Loaded %d cards from %s", len(list), source)
	} else {
		list = cards.Demo(getEnvInt("DEMO_CARDS", 1000))
		log.Printf("💡 CARDS_SOURCE not set, generated %d demo cards", len(list))
	}

	start := time.Now()
	if err := cards.WriteSQLite(ctx, dbPath, list); err != nil {
		log.Fatalf("❌ Failed to write %s: %v", dbPath, err)
	}
	log.Printf("💾 Wrote %d cards to %s in %v", len(list), dbPath, time.Since(start).Round(time.Millisecond))

	if labelDir == "" {
		return
	}
	if err := bakeLabels(ctx, list, labelDir, tier, workers); err != nil {
		log.Fatalf("❌ Label bake failed: %v", err)
	}
}

// bakeLabels renders one PNG per card into dir/<tier>/<id>.png.
func bakeLabels(ctx context.Context, list []cards.Card, dir string, tier resource.Tier, workers int) error {
	synth, err := resource.NewGGLabelSynthesizer()
	if err != nil {
		return err
	}
	res := config.DefaultResources()
	size := res.DesktopLabelPx
	if tier == resource.TierMobile {
		size = res.MobileLabelPx
	}

	out := filepath.Join(dir, tier.String())
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}

	log.Printf("🖼️ Baking %d %s labels (%dpx) into %s with %d workers", len(list), tier, size, out, workers)
	start := time.Now()
	var done, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, c := range list {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			img, err := synth.Synthesize(c, size)
			if err != nil {
				failed.Add(1)
				log.Printf("⚠️ Label %s: %v", c.ID, err)
				return nil
			}
			f, err := os.Create(filepath.Join(out, c.ID+".png"))
			if err != nil {
				return err
			}
			defer f.Close()
			if err := png.Encode(f, img); err != nil {
				return err
			}
			if n := done.Add(1); n%500 == 0 {
				log.Printf("📊 %d/%d labels", n, len(list))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log.Printf("✅ Baked %d labels (%d failed) in %v", done.Load(), failed.Load(), time.Since(start).Round(time.Millisecond))
	return nil
}

func getEnvWithDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i > 0 {
			return i
		}
	}
	return defaultVal
}
