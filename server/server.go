// Package server 提供 WebSocket 传输与管理员 HTTP 接口
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"musichud/cache"
	"musichud/config"
	"musichud/core/auth"
	"musichud/core/channel"
	"musichud/core/hud"
	"musichud/core/netease"
	"musichud/core/player"
	"musichud/core/session"
	"musichud/logger"
	"musichud/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server 组装传输层、会话、播放与管理接口
type Server struct {
	cfgMu sync.RWMutex
	cfg   *config.Config

	hub        *Hub
	dispatcher *channel.Dispatcher
	registry   *session.Registry
	player     *player.Orchestrator
	catalog    *cache.CatalogCache
	service    *hud.Service
	admin      *AdminHandler

	upgrader websocket.Upgrader
	router   *mux.Router
}

// New 按依赖顺序构建服务，rdb 为 nil 时不缓存目录
func New(cfg *config.Config, upstream netease.Gateway, rdb *redis.Client) *Server {
	s := &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.catalog = cache.NewCatalogCache(upstream, rdb, cfg.CacheTTL)
	s.hub = NewHub()
	s.dispatcher = channel.NewDispatcher(s.hub)
	announcer := hud.NewAnnouncer(s.dispatcher)
	s.registry = session.NewRegistry(s.catalog, announcer, session.Options{QRPollInterval: cfg.QRPollInterval})
	s.player = player.New(cfg.PlayerConfig(), player.Deps{
		Catalog:   s.catalog,
		Directory: s.registry,
		Announcer: announcer,
	})
	s.service = hud.NewService(s.dispatcher, s.registry, s.player, s.catalog)
	s.hub.Bind(s.dispatcher.Receive, s.service.Disconnect)

	s.admin = NewAdminHandler(s.player, auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL), cfg.AdminPasswordHash, s.Reload)
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	api := router.PathPrefix("/api/admin").Subrouter()
	api.HandleFunc("/login", s.admin.LoginHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/status", s.admin.AuthMiddleware(s.admin.StatusHandler)).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/queue", s.admin.AuthMiddleware(s.admin.QueueHandler)).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/skip", s.admin.AuthMiddleware(s.admin.SkipHandler)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/start", s.admin.AuthMiddleware(s.admin.StartHandler)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/stop", s.admin.AuthMiddleware(s.admin.StopHandler)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/reload", s.admin.AuthMiddleware(s.admin.ReloadHandler)).Methods(http.MethodPost, http.MethodOptions)
	return router
}

// Handler 根路由
func (s *Server) Handler() http.Handler {
	return s.router
}

// Player 播放编排器
func (s *Server) Player() *player.Orchestrator {
	return s.player
}

// Registry 会话表
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Config 当前配置
func (s *Server) Config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"version":     model.CurrentVersion.String(),
		"connections": s.hub.Count(),
		"phase":       s.player.Status().Phase,
	})
}

// handleWebSocket /ws?uuid=&name=
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.URL.Query().Get("uuid"))
	if err != nil {
		http.Error(w, "Invalid client uuid", http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = id.String()
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	conn := newConn(s.hub, ws, model.Client{ID: id, Name: name})
	if !s.hub.Register(conn) {
		ws.Close()
		return
	}
	go conn.WritePump()
	go conn.ReadPump()
}

// Reload 重新加载配置并应用到运行中的组件
func (s *Server) Reload(ctx context.Context) (int, error) {
	cfg, err := config.Reload(s.Config().File)
	if err != nil {
		return 0, fmt.Errorf("重新加载配置失败: %w", err)
	}
	s.apply(cfg)

	evicted, err := s.catalog.InvalidateAll(ctx)
	if err != nil {
		return evicted, fmt.Errorf("清理缓存失败: %w", err)
	}
	return evicted, nil
}

// apply 播放、投票与日志级别即时生效，监听地址等需重启
func (s *Server) apply(cfg *config.Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()

	s.player.UpdateConfig(cfg.PlayerConfig())
	logger.SetLevel(cfg.LogLevel())
	logger.Info("configuration applied",
		logger.Bool("debug", cfg.Debug),
		logger.Bool("idlePlaylist", cfg.EnableIdlePlaylist),
		logger.Bool("voteSkip", cfg.VoteSkipEnabled),
		logger.Float64("voteRatio", cfg.VoteSkipRatio))
}

// Run 启动后台协程并监听，ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	s.start()

	cfg := s.Config()
	if cfg.File != "" {
		go func() {
			if err := config.Watch(ctx, cfg.File, s.apply); err != nil {
				logger.Warn("config watcher stopped", logger.String("file", cfg.File), logger.ErrorField(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", logger.String("addr", cfg.ServerAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", logger.ErrorField(err))
	}
	s.Close()

	if serveErr != nil {
		return fmt.Errorf("启动服务失败: %w", serveErr)
	}
	logger.Info("server stopped")
	return nil
}

func (s *Server) start() {
	go s.hub.Run()
	go s.dispatcher.Run()
}

// Close 按依赖逆序关闭组件
func (s *Server) Close() {
	s.hub.Stop()
	s.player.Close()
	s.registry.Close()
	s.dispatcher.Close()
}

// Start 读取配置、连接依赖并运行，直到收到 SIGINT/SIGTERM
func Start() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.InitLogger(logger.Config{
		Level:      cfg.LogLevel(),
		OutputPath: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	})
	defer logger.Sync()

	if cfg.RedisEnabled {
		if err := cache.ConnectRedis(cfg); err != nil {
			logger.Warn("redis unavailable, running without catalog cache", logger.ErrorField(err))
		} else {
			defer cache.CloseRedis()
			logger.Info("connected to redis", logger.String("addr", cfg.RedisAddr()))
		}
	}

	upstream := netease.NewClient(netease.Options{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.APITimeout,
		RateLimit: cfg.APIRateLimit,
		Burst:     cfg.APIBurst,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return New(cfg, upstream, cache.RedisClient).Run(ctx)
}
