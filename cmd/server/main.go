package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliyamo/autopoint-backend/internal/config"
	"github.com/iliyamo/autopoint-backend/internal/database"
	"github.com/iliyamo/autopoint-backend/internal/handler"
	"github.com/iliyamo/autopoint-backend/internal/logging"
	"github.com/iliyamo/autopoint-backend/internal/middleware"
	"github.com/iliyamo/autopoint-backend/internal/model"
	"github.com/iliyamo/autopoint-backend/internal/queue"
	"github.com/iliyamo/autopoint-backend/internal/realtime"
	"github.com/iliyamo/autopoint-backend/internal/repository"
	"github.com/iliyamo/autopoint-backend/internal/router"
	"github.com/iliyamo/autopoint-backend/internal/service"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.Env)

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect mysql")
	}
	defer db.Close()

	if cfg.RunMigrations {
		if err := database.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			log.Fatal().Err(err).Msg("migrations")
		}
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn().Str("addr", cfg.Redis.Addr).Msg("redis unavailable, using in-memory rate limiter and no cache")
	} else {
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.EventsEnabled {
		events = &service.AMQPPublisher{URL: cfg.RabbitMQURL, Log: log}
		consumer := &queue.Consumer{URL: cfg.RabbitMQURL, LogDir: "logs", Log: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("moderation consumer stopped")
			}
		}()
	}

	users := repository.NewUserRepo(db)
	profiles := repository.NewProfileRepo(db)
	prov := &service.Provisioner{Profiles: profiles, Log: log}
	auth := &service.AuthService{
		DB:          db,
		Users:       users,
		Codes:       repository.NewCodeRepo(db),
		Tokens:      repository.NewTokenRepo(db),
		Provisioner: prov,
		SMS:         service.NewSMSClient(cfg.SMS),
		Cfg:         cfg,
		Log:         log,
		Now:         time.Now,
	}
	uploads := &service.Uploader{
		Dir:                cfg.UploadDir,
		BaseURL:            cfg.BaseURL,
		MaxSize:            cfg.MaxFileSize,
		Allowed:            cfg.AllowedImageTypes,
		AllowedAttachments: cfg.AllowedChatTypes,
	}

	notifHub := realtime.NewNotificationHub(log)
	chatHub := realtime.NewChatHub(log)
	supportHub := realtime.NewSupportHub(log)
	defer notifHub.Stop()
	defer chatHub.Stop()
	defer supportHub.Stop()

	places := make([]*handler.PlaceHandler, 0, len(model.Kinds))
	for _, k := range model.Kinds {
		places = append(places, handler.NewPlaceHandler(repository.NewPlaceRepo(db, k), tariffSets(db, k), uploads, events, log))
	}

	deps := router.Deps{
		Cfg:   cfg,
		Guard: &middleware.Guard{Auth: auth, Admins: users},
		Redis: rdb,
		Log:   log,
	}
	e := router.New(deps)
	router.Register(e, deps, router.Handlers{
		Auth:          handler.NewAuthHandler(auth),
		Admin:         handler.NewAdminHandler(users, auth, log),
		Profile:       handler.NewProfileHandler(db, profiles, repository.NewFavoriteRepo(db), prov, uploads, log),
		Places:        places,
		Notifications: handler.NewNotificationHandler(repository.NewNotificationRepo(db), notifHub, auth, log),
		Chat:          handler.NewChatHandler(repository.NewChatRepo(db), chatHub, auth, uploads, log),
		Support:       handler.NewSupportHandler(repository.NewSupportRepo(db), supportHub, auth, events, log),
		Ads:           handler.NewAdHandler(repository.NewAdRepo(db), uploads, rdb, cfg.Cache.Prefix, log),
		Readiness:     handler.Readiness{DB: db, Redis: rdb},
	})

	go func() {
		log.Info().Str("addr", ":"+cfg.Port).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

// tariffSets returns the pricing children mounted under a place kind.
func tariffSets(db *sql.DB, k model.PlaceKind) []handler.TariffSet {
	switch k.Slug {
	case model.GasKind.Slug:
		return []handler.TariffSet{handler.Tariffs(repository.NewTariffRepo(db, repository.FuelPriceSchema))}
	case model.ElectricKind.Slug:
		return []handler.TariffSet{handler.Tariffs(repository.NewTariffRepo(db, repository.ChargingPointSchema))}
	case model.RestaurantKind.Slug:
		return []handler.TariffSet{
			handler.Tariffs(repository.NewTariffRepo(db, repository.MenuCategorySchema)),
			handler.Tariffs(repository.NewTariffRepo(db, repository.MenuItemSchema)),
		}
	case model.ServiceKind.Slug:
		return []handler.TariffSet{handler.Tariffs(repository.NewTariffRepo(db, repository.ServicePriceSchema))}
	case model.WashKind.Slug:
		return []handler.TariffSet{handler.Tariffs(repository.NewTariffRepo(db, repository.WashServiceSchema))}
	}
	return nil
}
