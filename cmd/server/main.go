package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/tidechat/tidechat/internal/auth"
	"github.com/tidechat/tidechat/internal/cache"
	"github.com/tidechat/tidechat/internal/chat"
	"github.com/tidechat/tidechat/internal/config"
	"github.com/tidechat/tidechat/internal/domain"
	"github.com/tidechat/tidechat/internal/gateway"
	"github.com/tidechat/tidechat/internal/handler"
	"github.com/tidechat/tidechat/internal/hub"
	"github.com/tidechat/tidechat/internal/registry"
	"github.com/tidechat/tidechat/internal/repository"
	"github.com/tidechat/tidechat/pkg/database"
	"github.com/tidechat/tidechat/pkg/jwt"
	"github.com/tidechat/tidechat/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	log.Init(cfg.Log)
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting tidechat")

	db, err := database.New(&cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db,
		&domain.UserModel{},
		&domain.ConversationModel{},
		&domain.ParticipantModel{},
		&domain.MessageModel{},
		&domain.ReadReceiptModel{},
	); err != nil {
		l.Fatal().Err(err).Msg("failed to run migrations")
	}

	var msgCache cache.MessageCache
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisMessageCache(cfg.Redis)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to connect to redis")
		}
		msgCache = redisCache
		l.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	} else {
		msgCache = cache.NewNoopMessageCache()
	}
	defer msgCache.Close()

	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration, cfg.Auth.Issuer)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialise token manager")
	}

	users := repository.NewGormUserRepository(db)
	conversations := repository.NewGormConversationRepository(db)
	messages := repository.NewGormMessageRepository(db)

	authService := auth.NewService(users, tokens)
	chatService := chat.NewService(users, conversations, messages, msgCache)

	reg := registry.New()
	wsHub := hub.New(reg, cfg.WebSocket)
	coordinator := gateway.NewCoordinator(authService, chatService, reg, wsHub)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(log.GinMiddleware(l))

	handler.NewHandler(authService, chatService).RegisterRoutes(engine)
	gateway.NewWSHandler(coordinator, wsHub, cfg.WebSocket).RegisterRoutes(engine)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run(ctx)
		return nil
	})

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		l.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Fatal().Err(err).Msg("server exited with error")
	}
	l.Info().Msg("stopped")
}
