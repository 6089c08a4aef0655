package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"vendoriq_server/adapter/out/mongodb"
	"vendoriq_server/adapter/out/ocr"
	"vendoriq_server/adapter/out/persistence"
	"vendoriq_server/adapter/out/provider/google"
	"vendoriq_server/config"
	"vendoriq_server/core/port/out"
	"vendoriq_server/core/service/analytics"
	"vendoriq_server/core/service/auth"
	"vendoriq_server/core/service/ingest"
	"vendoriq_server/pkg/logger"
)

type Dependencies struct {
	Config  *config.Config
	MongoDB *mongo.Client
	Redis   *redis.Client

	// Repositories
	UserRepo       out.UserRepository
	AttachmentRepo out.AttachmentRegistry
	JobRepo        out.JobRepository
	SnapshotRepo   out.SnapshotRepository

	// Security stores
	OAuthStateStore out.OAuthStateStore
	TokenBlacklist  out.TokenBlacklist

	// Providers
	GmailProvider  out.MailProvider
	DriveProvider  out.StorageProvider
	SheetsProvider out.SpendSheetReader
	OCRNotifier    out.OCRNotifier

	// Services
	AuthService      *auth.Service
	IngestionService *ingest.Service
	AnalyticsService *analytics.Service
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	// MongoDB
	mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongodb: %w", err)
	}
	deps.MongoDB = mongoClient
	cleanups = append(cleanups, func() {
		mongoClient.Disconnect(context.Background())
	})

	db := mongoClient.Database(cfg.MongoDBName)
	snapshotTTL := time.Duration(cfg.SnapshotTTLMin) * time.Minute

	userRepo := mongodb.NewUserAdapter(db)
	attachmentRepo := mongodb.NewAttachmentAdapter(db)
	jobRepo := mongodb.NewJobAdapter(db)
	snapshotRepo := mongodb.NewSnapshotAdapter(db, snapshotTTL)

	deps.UserRepo = userRepo
	deps.AttachmentRepo = attachmentRepo
	deps.JobRepo = jobRepo
	deps.SnapshotRepo = snapshotRepo

	// Index creation is best effort: a replica without createIndex rights
	// must still be able to serve traffic.
	indexCtx, indexCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer indexCancel()
	if err := userRepo.EnsureIndexes(indexCtx); err != nil {
		logger.Warn("Failed to ensure users indexes: %v", err)
	}
	if err := attachmentRepo.EnsureIndexes(indexCtx); err != nil {
		logger.Warn("Failed to ensure processed_attachments indexes: %v", err)
	}
	if err := jobRepo.EnsureIndexes(indexCtx); err != nil {
		logger.Warn("Failed to ensure scheduled_jobs indexes: %v", err)
	}
	if err := snapshotRepo.EnsureIndexes(indexCtx); err != nil {
		logger.Warn("Failed to ensure analytics_snapshots indexes: %v", err)
	}

	// Redis backs the OAuth state store and the token blacklist, both of
	// which sit on the request path, so it is not optional.
	redisClient, err := persistence.NewRedisClient(cfg.RedisURL)
	if err != nil {
		mongoClient.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })
	deps.OAuthStateStore = persistence.NewRedisOAuthStateStore(redisClient)
	deps.TokenBlacklist = persistence.NewRedisTokenBlacklist(redisClient)

	// Google providers share one credential set
	creds := google.Credentials{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}
	deps.GmailProvider = google.NewGmailAdapter(creds)
	deps.DriveProvider = google.NewDriveAdapter(creds, cfg.DriveRootFolder)
	deps.SheetsProvider = google.NewSheetsAdapter(creds)

	// OCR trigger client
	deps.OCRNotifier = ocr.NewClient(
		cfg.OCRBaseURL,
		cfg.OCRServiceToken,
		time.Duration(cfg.OCRTimeoutSec)*time.Second,
	)

	// Services
	deps.AuthService = auth.NewService(
		deps.UserRepo,
		deps.OAuthStateStore,
		deps.TokenBlacklist,
		cfg.JWTSecret,
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
	)
	deps.IngestionService = ingest.NewService(
		deps.UserRepo,
		deps.AttachmentRepo,
		deps.GmailProvider,
		deps.DriveProvider,
		deps.OCRNotifier,
	)
	deps.AnalyticsService = analytics.NewService(
		deps.SnapshotRepo,
		deps.UserRepo,
		deps.SheetsProvider,
		snapshotTTL,
		cfg.SpendSheetID,
		cfg.SpendSheetRange,
	)

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	return deps, cleanup, nil
}

func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if err := d.MongoDB.Ping(ctx, nil); err != nil {
		return err
	}
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}
