package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"

	"tutorhub/internal/api"
	"tutorhub/internal/config"
	"tutorhub/internal/database"
	"tutorhub/internal/notify"
	"tutorhub/internal/presence"
	"tutorhub/internal/relay"
	"tutorhub/internal/session"
	"tutorhub/internal/websocket"
	"tutorhub/pkg/interfaces"
)

// Application wires all components. Initialization order follows the
// dependency chain: store → notifier → registry → coordinator → relay →
// transport → HTTP.
type Application struct {
	config      *config.Config
	store       *database.Store
	notifier    interfaces.Notifier
	registry    *presence.Registry
	coordinator *session.Coordinator
	eventRelay  *relay.Relay
	httpServer  *http.Server
}

// NewApplication builds the component graph from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := database.NewStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	var notifier interfaces.Notifier = notify.Noop{}
	if cfg.Redis.Addr != "" {
		redisNotifier, err := notify.NewRedisNotifier(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.Channel)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize notifier: %w", err)
		}
		notifier = redisNotifier
	} else {
		log.Println("No redis address configured, volunteer notifications disabled")
	}

	registry := presence.NewRegistry()
	coordinator := session.NewCoordinator(store, registry, notifier, cfg.Session.ValidTypes)
	eventRelay := relay.NewRelay(coordinator, registry)

	wsHandler := websocket.NewHandler(eventRelay, cfg.WebSocket)
	apiServer := api.NewServer(coordinator, store, registry)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		store:       store,
		notifier:    notifier,
		registry:    registry,
		coordinator: coordinator,
		eventRelay:  eventRelay,
		httpServer:  httpServer,
	}, nil
}

// Start launches the relay loop, binds the listener, then serves HTTP. Bind
// failures are reported synchronously.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting tutorhub on %s", app.httpServer.Addr)

	if err := app.eventRelay.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event relay: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.eventRelay.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("tutorhub started")
	return nil
}

// Stop shuts components down in reverse order: HTTP → relay → store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down tutorhub")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := app.eventRelay.Stop(); err != nil {
		log.Printf("Relay shutdown error: %v", err)
	}
	if closer, ok := app.notifier.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Printf("Notifier shutdown error: %v", err)
		}
	}
	if err := app.store.Close(); err != nil {
		log.Printf("Store shutdown error: %v", err)
	}

	log.Printf("tutorhub shutdown complete")
	return nil
}

// Addr returns the HTTP listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
