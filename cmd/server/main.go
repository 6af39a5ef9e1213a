package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/tebeka/selenium"

	"github.com/sideruntime/sidesvc/internal/api"
	"github.com/sideruntime/sidesvc/internal/config"
	"github.com/sideruntime/sidesvc/internal/dispatcher"
	"github.com/sideruntime/sidesvc/internal/gridlauncher"
	"github.com/sideruntime/sidesvc/internal/lockrepo"
	"github.com/sideruntime/sidesvc/internal/pool"
	"github.com/sideruntime/sidesvc/internal/ratelimit"
	"github.com/sideruntime/sidesvc/internal/sidestore"
	"github.com/sideruntime/sidesvc/internal/template"
	"github.com/sideruntime/sidesvc/internal/wsstream"
)

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using system environment variables")
	}

	cfg := config.Load()
	log.Info("starting sidesvc")

	var grid pool.Grid
	var launcher *gridlauncher.Launcher
	var nodes []gridlauncher.Node
	caps := selenium.Capabilities{"browserName": "chrome"}

	if cfg.GridManaged {
		var err error
		launcher, err = gridlauncher.New(log)
		if err != nil {
			log.WithError(err).Fatal("create grid launcher")
		}

		launchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		nodes, err = launcher.Launch(launchCtx, cfg.GridNodes)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("launch managed grid nodes")
		}

		urls := make([]string, len(nodes))
		for i, n := range nodes {
			urls[i] = n.URL
		}
		grid = pool.NewMultiGrid(urls, caps)
		log.WithField("node_count", len(nodes)).Info("managed grid nodes ready")
	} else {
		grid = pool.NewHTTPGrid(cfg.GridURL, caps)
		log.WithField("grid_url", cfg.GridURL).Info("using externally managed grid")
	}

	store, err := sidestore.New(cfg.ScriptDir)
	if err != nil {
		log.WithError(err).Fatal("create script store")
	}

	locks, err := lockrepo.New(cfg.LockDir, log)
	if err != nil {
		log.WithError(err).Fatal("create lock repository")
	}

	sessionPool := pool.New(grid, cfg.PoolInitTimeout, capabilityLabel(caps), log)
	go func() {
		log.Info("warming up session pool")
		sessionPool.WarmUp(context.Background())
		log.WithField("sessions", len(sessionPool.List())).Info("session pool ready")
	}()

	renderer := template.NewRenderer(cfg.JSDir, time.Now().UnixNano())

	// executeOn's wait for a pinned target is a fixed 30s (spec.md §4.7),
	// independent of the configurable lock TTL.
	d := dispatcher.New(sessionPool, locks, store, renderer, cfg.DefaultLockTTL, 30*time.Second, cfg.ImplicitWait, log)
	stream := wsstream.New(d, cfg.StreamLockTTL, log)

	limiter := ratelimit.NewLimiter(100, 10)
	handler := api.NewHandler(store, d, stream, log)
	router := handler.SetupRoutes(limiter)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	sessionPool.Shutdown()
	if launcher != nil {
		launcher.StopAll(context.Background(), nodes)
		launcher.Close()
	}

	log.Info("server stopped cleanly")
}

// capabilityLabel renders caps as the SessionEntry.capability string
// (spec.md §3) every slot this pool dials will carry.
func capabilityLabel(caps selenium.Capabilities) string {
	name, _ := caps["browserName"].(string)
	return name
}
