package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinicdesk/coord/internal/config"
	"github.com/clinicdesk/coord/internal/domain/messaging"
	"github.com/clinicdesk/coord/internal/domain/presence"
	"github.com/clinicdesk/coord/internal/domain/queue"
	"github.com/clinicdesk/coord/internal/domain/room"
	"github.com/clinicdesk/coord/internal/platform/cache"
	"github.com/clinicdesk/coord/internal/platform/db"
	"github.com/clinicdesk/coord/internal/platform/middleware"
	"github.com/clinicdesk/coord/internal/platform/websocket"
	"github.com/clinicdesk/coord/internal/poller"
	"github.com/clinicdesk/coord/internal/station"
)

// bodyLimit leaves room for a base64 voice note.
const bodyLimit = "8M"

// stores are the repositories behind the shared state.
type stores struct {
	rooms    room.Repository
	queue    queue.Repository
	presence presence.Repository
	health   echo.HandlerFunc
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn().Strs("rooms", cfg.MemoryRooms).Msg("memory store: state is local to this process")
		return &stores{
			rooms:    room.NewSeededMemoryRepo(cfg.MemoryRooms),
			queue:    queue.NewMemoryRepo(),
			presence: presence.NewMemoryRepo(),
			health:   db.HealthHandler(cfg.StoreDriver, nil, nil),
			close:    func() {},
		}, nil
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBSchema)
		if err != nil {
			return nil, err
		}
		log.Info().Str("schema", cfg.DBSchema).Msg("connected to database")
		return &stores{
			rooms:    room.NewRepoPG(pool),
			queue:    queue.NewRepoPG(pool),
			presence: presence.NewRepoPG(pool),
			health:   db.HealthHandler(cfg.StoreDriver, pool, func() *db.PoolStats { return db.GetPoolStats(pool) }),
			close:    pool.Close,
		}, nil
	}
}

// presenceBackend picks where presence records live. The returned
// serve func is non-nil only for the LAN backend.
type presenceBackend struct {
	repo   presence.Repository
	pub    presence.Publisher
	serve  func(ctx context.Context, reg *presence.Registry) error
	health echo.HandlerFunc
	prune  bool
	close  func()
}

func openPresence(ctx context.Context, cfg *config.Config, st *stores, log zerolog.Logger) (*presenceBackend, error) {
	switch cfg.PresenceBackend {
	case config.PresenceBackendRedis:
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL, 5*time.Second)
		if err != nil {
			return nil, err
		}
		return &presenceBackend{
			repo:   presence.NewRedisRepo(client, 4*cfg.PresenceMaxAge),
			health: db.HealthHandler(config.PresenceBackendRedis, cache.Pinger{Client: client}, nil),
			close:  func() { client.Close() },
		}, nil

	case config.PresenceBackendLAN:
		beacon, err := presence.NewBeacon(net.JoinHostPort(cfg.DiscoveryBroadcast, strconv.Itoa(cfg.DiscoveryPort)))
		if err != nil {
			return nil, err
		}
		listener, err := presence.Listen(":"+strconv.Itoa(cfg.DiscoveryPort), log)
		if err != nil {
			beacon.Close()
			return nil, err
		}
		return &presenceBackend{
			repo: presence.NewMemoryRepo(),
			pub:  beacon,
			serve: func(ctx context.Context, reg *presence.Registry) error {
				return listener.Serve(ctx, reg.Apply)
			},
			prune: true,
			close: func() { beacon.Close() },
		}, nil

	default:
		return &presenceBackend{repo: st.presence, prune: true, close: func() {}}, nil
	}
}

func advertiseAddress(cfg *config.Config, log zerolog.Logger) string {
	if cfg.AdvertiseAddress != "" {
		return cfg.AdvertiseAddress
	}
	addr, err := DetectAddress()
	if err != nil {
		log.Warn().Err(err).Msg("could not detect LAN address")
	}
	return addr
}

// DetectAddress is swapped in tests.
var DetectAddress = presence.DetectAddress

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.close()

	pb, err := openPresence(ctx, cfg, st, logger)
	if err != nil {
		return fmt.Errorf("open presence backend %s: %w", cfg.PresenceBackend, err)
	}
	defer pb.close()

	address := advertiseAddress(cfg, logger)
	logger.Info().Str("address", address).Int("peer_port", cfg.PeerPort).Str("presence", cfg.PresenceBackend).Msg("workstation identity")

	// Domain services
	registry := presence.NewRegistry(pb.repo, pb.pub, logger)
	rooms := room.NewManager(st.rooms, logger)
	queueSvc := queue.NewService(st.queue, rooms, cfg.DefaultActionRoom, loc, logger)
	transport := messaging.NewTransport(cfg.PeerTimeout, registry, rooms, cfg.PresenceMaxAge, logger)
	receiver := messaging.NewReceiver(cfg.DedupWindow, logger)

	hub := websocket.NewHub(logger)
	poll := poller.New(registry, rooms, queueSvc, hub, poller.Config{
		PresenceInterval: cfg.PresencePollInterval,
		RoomInterval:     cfg.RoomPollInterval,
		QueueInterval:    cfg.QueuePollInterval,
		PresenceMaxAge:   cfg.PresenceMaxAge,
		PrunePresence:    pb.prune,
	}, logger)
	receiver.OnMessage(poller.MessageRelay(hub, logger))

	stn := station.New(registry, rooms, poll, hub, station.Options{
		Address:   address,
		Port:      cfg.PeerPort,
		Heartbeat: cfg.HeartbeatInterval,
	}, logger)

	api := buildAPI(cfg, logger, st, pb, apiHandlers{
		presence:  presence.NewHandler(registry, address, cfg.PeerPort, cfg.PresenceMaxAge),
		rooms:     room.NewHandler(rooms),
		queue:     queue.NewHandler(queueSvc),
		messaging: messaging.NewHandler(transport, stn.Current),
		station:   station.NewHandler(stn),
		ws:        websocket.NewWebSocketHandler(hub, cfg.CORSOrigins),
	})
	peer := buildPeer(logger, messaging.NewPeerHandler(receiver))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting command API")
		if err := api.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("command API: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		addr := ":" + strconv.Itoa(cfg.PeerPort)
		logger.Info().Str("addr", addr).Msg("starting peer listener")
		if err := peer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("peer listener: %w", err)
		}
		return nil
	})
	g.Go(func() error { return poll.Run(gctx) })
	if pb.serve != nil {
		g.Go(func() error { return pb.serve(gctx, registry) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := stn.Close(shutCtx); err != nil {
			logger.Warn().Err(err).Msg("logout on shutdown")
		}
		return errors.Join(api.Shutdown(shutCtx), peer.Shutdown(shutCtx))
	})

	err = g.Wait()
	logger.Info().Msg("workstation stopped")
	return err
}

type apiHandlers struct {
	presence  *presence.Handler
	rooms     *room.Handler
	queue     *queue.Handler
	messaging *messaging.Handler
	station   *station.Handler
	ws        *websocket.WebSocketHandler
}

func buildAPI(cfg *config.Config, logger zerolog.Logger, st *stores, pb *presenceBackend, h apiHandlers) *echo.Echo {
	e := newEcho()
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.RequestTimeout(15 * time.Second))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "station": cfg.StationName})
	})
	e.GET("/health/db", st.health)
	if pb.health != nil {
		e.GET("/health/presence", pb.health)
	}

	h.ws.RegisterRoutes(e.Group(""))

	apiV1 := e.Group("/api/v1")
	h.station.RegisterRoutes(apiV1)
	h.presence.RegisterRoutes(apiV1)
	h.rooms.RegisterRoutes(apiV1)
	h.queue.RegisterRoutes(apiV1)
	h.messaging.RegisterRoutes(apiV1)
	return e
}

func buildPeer(logger zerolog.Logger, h *messaging.PeerHandler) *echo.Echo {
	e := newEcho()
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger.With().Str("server", "peer").Logger()))
	e.Use(middleware.RateLimit(middleware.DefaultPeerRateLimit()))
	e.Use(middleware.BodyLimit(bodyLimit))
	h.RegisterRoutes(e)
	return e
}
