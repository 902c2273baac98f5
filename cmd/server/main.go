package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"aidmap/internal/api"
	"aidmap/internal/api/handlers"
	"aidmap/internal/config"
	"aidmap/internal/identity"
	"aidmap/internal/prefs"
	"aidmap/internal/services"
	"aidmap/internal/store"
	memstore "aidmap/internal/store/memory"
	"aidmap/internal/store/mongodb"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.FromEnv()

	// Record store: Mongo when configured, otherwise in-memory for local
	// development.
	var recordStore store.RecordStore
	if cfg.Mongo.URI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		cancel()
		if err != nil {
			log.Fatal("connecting to mongo", zap.Error(err))
		}
		mongoStore := mongodb.NewRecordStore(client.Database(cfg.Mongo.Database), log)
		if err := mongoStore.EnsureIndexes(context.Background()); err != nil {
			log.Fatal("ensuring mongo indexes", zap.Error(err))
		}
		recordStore = mongoStore
		log.Info("using mongo record store", zap.String("database", cfg.Mongo.Database))
	} else {
		recordStore = memstore.NewRecordStore()
		log.Info("using in-memory record store")
	}

	// Challenge store follows the same pattern for Redis.
	var challenges identity.ChallengeStore
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Fatal("connecting to redis", zap.Error(err))
		}
		challenges = identity.NewRedisChallengeStore(client)
		log.Info("using redis challenge store", zap.String("addr", cfg.Redis.Addr))
	} else {
		challenges = identity.NewMemoryChallengeStore()
		log.Info("using in-memory challenge store")
	}

	// Verification codes are logged rather than sent; an SMS gateway slots
	// in here.
	sendCode := func(phone, code string) {
		log.Info("verification code issued", zap.String("phone", phone), zap.String("code", code))
	}

	ids := identity.NewService(challenges, cfg.Auth.ChallengeTTL, sendCode, log)
	proximity := services.NewProximityIndex(recordStore, log)

	prefsPath := cfg.Prefs.Path
	if prefsPath == "" {
		prefsPath, err = prefs.DefaultPath()
		if err != nil {
			log.Fatal("resolving preferences path", zap.Error(err))
		}
	}
	prefStore, err := prefs.NewStore(prefsPath)
	if err != nil {
		log.Fatal("loading preferences", zap.Error(err))
	}

	profileHandler := handlers.NewProfileHandler(recordStore, ids, log)
	mapHandler := handlers.NewMapHandler(proximity, prefStore, cfg, log)
	authHandler := handlers.NewAuthHandler(ids, profileHandler, log)

	router := api.NewRouter(authHandler, mapHandler, profileHandler, ids)

	engine := gin.Default()
	router.Setup(engine)

	log.Info("starting server", zap.String("port", cfg.Server.Port))
	if err := engine.Run(cfg.Server.Port); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}
