package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"card-field/internal/api"
	"card-field/internal/cards"
	"card-field/internal/config"
	"card-field/internal/eventlog"
	"card-field/internal/ipc"
	"card-field/internal/scene"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🎮 ================================")
	log.Println("🎮  CARD FIELD - STREAMING ENGINE")
	log.Println("🎮 ================================")

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config: %v", err)
	}
	worldCfg := appConfig.World
	serverCfg := appConfig.Server

	log.Printf("🎮 Config: %d TPS, chunk %.0f, %d per chunk, radius %d, cache %d, deferred=%v",
		appConfig.Engine.TickRate, worldCfg.ChunkSize, worldCfg.ItemsPerChunk,
		worldCfg.RenderDistance, worldCfg.CacheCapacity, worldCfg.Deferred)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	catalog, err := cards.Load(ctx, serverCfg.CardsPath)
	cancel()
	if err != nil {
		n := getEnvInt("DEMO_CARDS", 1000)
		log.Printf("⚠️ Card catalog %s unavailable (%v), using %d demo cards", serverCfg.CardsPath, err, n)
		catalog = cards.NewCatalog(cards.Demo(n))
	} else {
		log.Printf("✅ Loaded %d cards from %s", catalog.Len(), serverCfg.CardsPath)
	}

	// Start event log
	events := eventlog.New(500)
	if err := events.Start(serverCfg.EventLogPath); err != nil {
		log.Printf("⚠️ Event log disabled: %v", err)
		events = nil
	} else if serverCfg.EventLogPath != "" {
		log.Printf("📝 Event log: %s", serverCfg.EventLogPath)
	}

	// Start debug server
	debugCfg := api.DefaultObservabilityConfig()
	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		if err := api.StartDebugServer(debugCfg); err != nil {
			log.Printf("⚠️ Debug server disabled: %v", err)
		}
	}

	// The hub opens links in the browser, so it exists before the engine.
	hub := api.NewWebSocketHub(api.NewOriginPolicy(serverCfg.AllowedOrigins))

	// Frame publisher for an external presentation process
	var publisher *ipc.Publisher
	if serverCfg.FrameSocket != "" {
		publisher = ipc.NewPublisher(serverCfg.FrameSocket)
	}
	observe := api.RecordTick
	if publisher != nil {
		observe = func(rep scene.TickReport) {
			api.RecordTick(rep)
			publisher.Observe(rep)
		}
	}
	opts := []scene.Option{
		scene.WithLinkOpener(hub),
		scene.WithTickObserver(observe),
	}
	if events != nil {
		opts = append(opts, scene.WithEventLog(events))
	}
	engine := scene.NewEngine(appConfig, catalog, opts...)

	if publisher != nil {
		tier := "desktop"
		if appConfig.Engine.TouchDevice {
			tier = "mobile"
		}
		publisher.SetViewport(ipc.ViewportMessage{
			Width:    int(appConfig.Engine.ViewportWidth),
			Height:   int(appConfig.Engine.ViewportHeight),
			FovY:     appConfig.Engine.FovY,
			TickRate: appConfig.Engine.TickRate,
			Tier:     tier,
			Geometry: ipc.FromGeometry(engine.Pool().Geometry()),
		})
		// Without a listener Observe finds no clients and publishes nothing.
		if err := publisher.Start(); err != nil {
			log.Printf("⚠️ Frame publisher disabled: %v", err)
		}
	}
	engine.Start()

	server := api.NewServer(engine, hub, appConfig, events)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Server shutdown: %v", err)
	}
	engine.Close()
	if publisher != nil {
		publisher.Stop()
	}
	if events != nil {
		events.Stop()
	}
	log.Println("👋 Goodbye!")
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
