package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"shipping-metrics-api/configs"
	"shipping-metrics-api/internal/models"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DBManager holds every storage handle the service reads from: the Mongo
// client with its production and test databases, and the MySQL connection
// used for shipment search.
type DBManager struct {
	mongoClient *mongo.Client
	MainDB      *mongo.Database
	TestDB      *mongo.Database
	SQL         *gorm.DB
}

func NewDBManager(ctx context.Context, cfg *configs.Config) (*DBManager, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	log.Println("MongoDB connection established successfully")

	sqlDB, err := gorm.Open(mysql.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	// Shipments are written by the ETL pipeline; migrating here keeps a
	// fresh environment queryable without waiting for the first load.
	if err := sqlDB.AutoMigrate(&models.Shipment{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	if pool, err := sqlDB.DB(); err == nil {
		pool.SetMaxIdleConns(10)
		pool.SetMaxOpenConns(100)
		pool.SetConnMaxLifetime(time.Hour)
	}
	log.Println("MySQL connection established successfully")

	return &DBManager{
		mongoClient: client,
		MainDB:      client.Database(cfg.MongoDBName),
		TestDB:      client.Database(cfg.MongoTestDBName),
		SQL:         sqlDB,
	}, nil
}

// Database returns the production or test database handle. The choice is
// made by route configuration at startup, never by request content.
func (m *DBManager) Database(useTestDB bool) *mongo.Database {
	if useTestDB {
		return m.TestDB
	}
	return m.MainDB
}

func (m *DBManager) Close(ctx context.Context) error {
	if pool, err := m.SQL.DB(); err == nil {
		pool.Close()
	}
	return m.mongoClient.Disconnect(ctx)
}
