// Command server is the authoritative onesync core host: it wires
// together transport, auth, checkpoint persistence, the replication
// manager, and the debug surface, then drives the replication
// scheduler off a ticker, adapted from the teacher's cmd/server/main.go
// wiring of its own game manager.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/onesync/core/pkg/auth"
	"github.com/onesync/core/pkg/config"
	"github.com/onesync/core/pkg/debugapi"
	"github.com/onesync/core/pkg/log"
	"github.com/onesync/core/pkg/network"
	"github.com/onesync/core/pkg/replication"
	"github.com/onesync/core/pkg/repositories"
	"github.com/onesync/core/pkg/workers"
)

func main() {
	configDir := flag.String("config-dir", "", "directory holding onesync.yaml (optional)")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	parsedLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to parse log level: %v", err))
	}
	log.SetLevel(parsedLevel)

	cfg, err := config.Load(*configDir)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			panic(fmt.Sprintf("failed to open log file: %v", err))
		}
		defer f.Close()
		log.SetOutput(f)
	}

	if !cfg.Enabled {
		log.Info("onesync_enabled is false, exiting")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repository := mustOpenRepository(ctx, cfg.DatabaseURL)
	defer repository.Close(ctx)

	authProvider := mustAuthProvider(ctx, cfg)

	clientManager := network.NewClientManager()
	transport := network.NewDefaultTransport()
	pool := workers.New(8, 256)
	defer pool.Stop()

	core := replication.New(replication.Config{
		DistanceCulling: cfg.DistanceCulling,
		RadiusFrequency: cfg.RadiusFrequency,
	}, clientManager, transport, pool)

	saveChan := make(chan workers.SaveCheckpointRequest, 100)
	connectionWorker := workers.NewConnectionEventWorker(workers.NewConnectionEventWorkerOptions{
		Events:     clientManager.Events(),
		Repository: repository,
		SaveChan:   saveChan,
	})
	go connectionWorker.Start(ctx)

	saveWorker := workers.NewCheckpointSaveWorker(workers.NewCheckpointSaveWorkerOptions{
		Repository: repository,
		SaveChan:   saveChan,
	})
	go saveWorker.Start(ctx)

	tcpServer := network.NewTCPServer(clientManager, tokenAuthenticator{authProvider}, core, cfg.TCPPort)
	udpServer := network.NewUDPServer(clientManager, core, transport, cfg.UDPPort)
	wsServer := network.NewWSServer(tcpServer, cfg.WSPort, nil)
	go tcpServer.Start()
	go udpServer.Start()
	go wsServer.Start()

	debugServer := debugapi.New(cfg.HTTPPort, core, clientManager)
	go debugServer.Start()
	defer debugServer.Stop(context.Background())

	log.Info("onesync core started: tcp=%s udp=%s ws=%s http=%s tick=%dHz", cfg.TCPPort, cfg.UDPPort, cfg.WSPort, cfg.HTTPPort, cfg.TickHz)
	runTickLoop(ctx, core, cfg.TickHz)
}

// runTickLoop drives the replication scheduler at the configured rate
// until an interrupt/terminate signal arrives (§4.4: "invoked by an
// external network-tick event").
func runTickLoop(ctx context.Context, core *replication.Manager, tickHz int) {
	if tickHz < 1 {
		tickHz = 1
	}
	ticker := time.NewTicker(time.Second / time.Duration(tickHz))
	defer ticker.Stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			log.Info("shutting down")
			return
		case <-ticker.C:
			core.Tick()
		}
	}
}

// tokenAuthenticator adapts auth.Provider's Principal-returning
// VerifyToken to the plain (uid, error) shape network.Authenticator
// expects at login.
type tokenAuthenticator struct {
	provider auth.Provider
}

func (a tokenAuthenticator) VerifyToken(ctx context.Context, token string) (string, error) {
	p, err := a.provider.VerifyToken(ctx, token)
	if err != nil {
		return "", err
	}
	return p.UID, nil
}

func mustAuthProvider(ctx context.Context, cfg *config.Config) auth.Provider {
	if cfg.FirebaseProject == "" {
		log.Warn("onesync: no firebase_project configured, using a static no-op auth provider")
		return auth.NewStaticProvider(map[string]string{"dev-token": "dev-user"})
	}
	credentials := os.Getenv("ONESYNC_FIREBASE_CREDENTIALS")
	provider, err := auth.NewFirebaseProvider(ctx, cfg.FirebaseProject, credentials)
	if err != nil {
		panic(fmt.Sprintf("failed to create firebase auth provider: %v", err))
	}
	return provider
}

func mustOpenRepository(ctx context.Context, connStr string) repositories.Repository {
	if connStr == "" {
		repo, err := repositories.NewSQLiteRepository(ctx, "onesync.db", "./migrations/sqlite")
		if err != nil {
			panic(fmt.Sprintf("failed to open default sqlite repository: %v", err))
		}
		return repo
	}

	u, err := url.Parse(connStr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse database_url: %v", err))
	}
	switch u.Scheme {
	case "sqlite":
		repo, err := repositories.NewSQLiteRepository(ctx, u.Host+u.Path, "./migrations/sqlite")
		if err != nil {
			panic(fmt.Sprintf("failed to open sqlite repository: %v", err))
		}
		return repo
	case "postgres", "postgresql":
		return repositories.NewPostgresRepository(ctx, connStr)
	default:
		panic(fmt.Sprintf("unknown database_url scheme %q", u.Scheme))
	}
}
