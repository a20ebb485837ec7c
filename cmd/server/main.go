package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lrnchat/internal/config"
	membershipRepo "lrnchat/internal/repository/membership"
	messageRepo "lrnchat/internal/repository/message"
	userRepo "lrnchat/internal/repository/user"
	"lrnchat/internal/service/auth"
	"lrnchat/internal/service/hub"
	"lrnchat/internal/service/presence"
	redisSvc "lrnchat/internal/service/redis"
	"lrnchat/internal/service/server"
	"lrnchat/internal/utils/log"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config failed", zap.Error(err))
	}

	mongoDBClient, err := initMongo(cfg.Mongo.URI)
	if err != nil {
		log.Fatal("connect to mongo failed", zap.Error(err))
	}

	db := mongoDBClient.Database(cfg.Mongo.Database)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	cache := redisSvc.NewRedis(rdb)

	users := userRepo.NewUserRepo(db)
	messages := messageRepo.NewMessageRepo(db)
	memberships := membershipRepo.NewMembershipRepo(db)
	recorder := presence.NewRecorder(users, cache)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	h := hub.NewHub(memberships, messages, recorder, cfg.StoreTimeout())

	s := server.NewHttpServer(h, verifier, memberships, messages, recorder, cfg.Server.Listen, cfg.StoreTimeout())
	go func() {
		if err := s.Run(); err != nil {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	<-done

	h.Shutdown()
	log.Sync()
}

func initMongo(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
