package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"chatapp-client/internal/blob"
	"chatapp-client/internal/feed"
	"chatapp-client/internal/jwt"
	"chatapp-client/internal/keyValue"
	"chatapp-client/internal/models"
	"chatapp-client/internal/server"
	"chatapp-client/internal/snowflake"
	"chatapp-client/internal/store"
)

func setupLogger(cfg *models.ConfigFile) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	if cfg.LogToFile {
		config.OutputPaths = []string{"app.log", "stdout"}
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	config.Level = level

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func readConfigFile() (*models.ConfigFile, error) {
	configFile, err := os.Open("config.json")
	if err != nil {
		return nil, err
	}
	defer configFile.Close()

	bytes, err := io.ReadAll(configFile)
	if err != nil {
		return nil, err
	}

	var cfg models.ConfigFile
	if err := json.Unmarshal(bytes, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setupRedis(cfg *models.ConfigFile) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}

func main() {
	fmt.Println("Reading config file...")
	cfg, err := readConfigFile()
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("Setting up logger...")
	sugar, err := setupLogger(cfg)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer sugar.Sync()

	if err := snowflake.Setup(cfg.SnowflakeWorkerID); err != nil {
		sugar.Fatal(err)
	}

	var redisClient *redis.Client
	var bus feed.Bus
	if cfg.SelfContained {
		fmt.Println("Running self contained, using local feed bus...")
		bus = feed.NewLocalBus(sugar)
	} else {
		fmt.Println("Connecting to redis...")
		redisClient, err = setupRedis(cfg)
		if err != nil {
			sugar.Fatal(err)
		}
		bus = feed.NewRedisBus(redisClient, sugar)
	}

	fmt.Println("Connecting to database...")
	db, err := store.Setup(cfg, sugar, bus)
	if err != nil {
		sugar.Fatal(err)
	}
	defer db.Close()

	blobDir := cfg.BlobDirectory
	if blobDir == "" {
		blobDir = "./public"
	}

	isHttps := cfg.TlsCert != "" && cfg.TlsKey != ""

	var httpProtocol string
	if isHttps {
		httpProtocol = "https"
	} else {
		httpProtocol = "http"
	}
	fullAddress := fmt.Sprintf("%s://%s:%s", httpProtocol, cfg.Address, cfg.Port)

	blobs := blob.NewStore(blobDir, fullAddress)
	signer := jwt.NewSigner(cfg.JwtSecret, isHttps)
	cache := keyValue.Setup(sugar, redisClient, cfg.SelfContained)

	handler := server.Setup(cfg, sugar, db, bus, blobs, signer, cache)

	fmt.Printf("Server is running on %s\n", fullAddress)
	if err := handler.Start(); err != nil {
		sugar.Fatal(err)
	}
}
