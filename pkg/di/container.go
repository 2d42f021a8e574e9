package di

import (
	"time"

	"whatsmoney/backend/messaging/bus"
	"whatsmoney/backend/messaging/delivery"
	messagingrepo "whatsmoney/backend/messaging/repository"
	messagingsvc "whatsmoney/backend/messaging/service"
	"whatsmoney/backend/pkg/cache"
	"whatsmoney/backend/pkg/config"
	"whatsmoney/backend/pkg/jwt"
	"whatsmoney/backend/pkg/logger"
	"whatsmoney/backend/shared/redis"
	userrepo "whatsmoney/backend/user/repository"
	usersvc "whatsmoney/backend/user/service"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	DB             *gorm.DB
	Logger         *logger.Logger
	JWTService     *jwt.Service
	Redis          *redis.Client
	Directory      *usersvc.Directory
	MessageRepo    *messagingrepo.GormMessageRepository
	MessageService *messagingsvc.MessageService
	ReadTracker    *messagingsvc.ReadTracker
	Bus            *bus.Bus
	Channel        *delivery.Channel
}

// Config holds the configuration for the container
type Config struct {
	LoggerConfig logger.Config
	JWTSecret    string
	JWTExpiry    time.Duration
	PollInterval time.Duration
	BusBuffer    int
	RedisEnabled bool
}

// DefaultConfig returns a container configuration derived from the
// application config
func DefaultConfig() *Config {
	cfg := config.Get()
	return &Config{
		LoggerConfig: logger.DefaultConfig(),
		JWTSecret:    cfg.JWT.Secret,
		JWTExpiry:    cfg.JWT.Expiry,
		PollInterval: cfg.Chat.PollInterval,
		BusBuffer:    cfg.Chat.BusBuffer,
		RedisEnabled: cfg.Redis.Enabled,
	}
}

// New creates a new dependency injection container
func New(db *gorm.DB, containerCfg *Config) (*Container, error) {
	if containerCfg == nil {
		containerCfg = DefaultConfig()
	}
	appCfg := config.Get()

	log := logger.New(containerCfg.LoggerConfig)

	jwtService := jwt.NewService(containerCfg.JWTSecret, containerCfg.JWTExpiry)

	// User directory with lookup caches
	directoryOpts := []usersvc.DirectoryOption{}
	if appCfg.Cache.Enabled {
		directoryOpts = append(directoryOpts, usersvc.WithCache(cache.New(cache.Options{
			DefaultExpiration: appCfg.Cache.TTL,
			CleanupInterval:   appCfg.Cache.PurgeWindow,
			MaxItems:          appCfg.Cache.MaxSize,
		})))
	}
	var redisClient *redis.Client
	if containerCfg.RedisEnabled {
		redisClient = redis.NewClient()
		directoryOpts = append(directoryOpts, usersvc.WithRedis(redisClient, appCfg.Cache.TTL))
	}
	directory := usersvc.NewDirectory(userrepo.NewGormUserRepository(db), log, directoryOpts...)

	// Messaging core
	messageRepo := messagingrepo.NewGormMessageRepository(db)
	eventBus := bus.New(containerCfg.BusBuffer)
	messageService := messagingsvc.NewMessageService(messageRepo, directory, eventBus, log,
		messagingsvc.WithMaxContentLength(appCfg.Chat.MaxContentLength))
	readTracker := messagingsvc.NewReadTracker(messageRepo)
	channel := delivery.NewChannel(messageRepo, eventBus, log,
		delivery.WithPollInterval(containerCfg.PollInterval))

	return &Container{
		DB:             db,
		Logger:         log,
		JWTService:     jwtService,
		Redis:          redisClient,
		Directory:      directory,
		MessageRepo:    messageRepo,
		MessageService: messageService,
		ReadTracker:    readTracker,
		Bus:            eventBus,
		Channel:        channel,
	}, nil
}
