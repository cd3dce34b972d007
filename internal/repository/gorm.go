package repository

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/pkg/logger"
	"github.com/avireply/avireply/pkg/validation"
)

// GormDB is the single canonical store for users, the reply ledger, QR payments and cycle leases.
type GormDB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*GormDB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)
	return open(postgres.Open(dsn), "PostgreSQL", logger)
}

// NewSQLiteDB opens a file backed SQLite store for single-node deployments.
func NewSQLiteDB(path string, logger *logger.Logger) (*GormDB, error) {
	db, err := open(sqlite.Open(path), "SQLite", logger)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer at a time.
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// NewGormDB wraps an already opened connection and migrates the schema.
func NewGormDB(conn *gorm.DB, logger *logger.Logger) (*GormDB, error) {
	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return &GormDB{Conn: conn, logger: logger}, nil
}

// Migrate creates or updates every table the store needs.
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(&models.User{}, &models.RepliedChat{}, &models.QRPayment{}, &models.AppLock{}); err != nil {
		return fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return nil
}

func open(dialector gorm.Dialector, name string, logger *logger.Logger) (*GormDB, error) {
	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
	conn, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", name, err)
	}

	db, err := NewGormDB(conn, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Successfully connected to database", "driver", name)
	return db, nil
}

func (db *GormDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

func (db *GormDB) GetUser(id string) (*models.User, error) {
	var user models.User
	if err := db.Conn.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// SaveCredentials creates the user on first submission. Submitting new credentials for an
// existing user replaces them and switches the autoresponder off, since they may belong to
// a different marketplace account.
func (db *GormDB) SaveCredentials(id string, creds models.Credentials) (*models.User, error) {
	if err := validation.ValidateCredential("client ID", creds.ClientID); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidInput, err)
	}
	if err := validation.ValidateCredential("client secret", creds.ClientSecret); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidInput, err)
	}
	if err := validation.ValidateMarketplaceUserID(creds.MarketplaceUserID); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidInput, err)
	}

	user := models.User{
		ID:                id,
		ClientID:          creds.ClientID,
		ClientSecret:      creds.ClientSecret,
		MarketplaceUserID: creds.MarketplaceUserID,
	}
	err := db.Conn.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"client_id":           creds.ClientID,
			"client_secret":       creds.ClientSecret,
			"marketplace_user_id": creds.MarketplaceUserID,
			"auto_reply_enabled":  false,
			"updated_at":          time.Now().Unix(),
		}),
	}).Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}

	return db.GetUser(id)
}

func (db *GormDB) SetTemplate(id, template string) error {
	template, err := validation.ValidateTemplate(template)
	if err != nil {
		return fmt.Errorf("%w: %s", models.ErrInvalidInput, err)
	}
	return db.updateUser(id, map[string]interface{}{"template": template})
}

func (db *GormDB) SetAutoReply(id string, enabled bool, startTime int64) error {
	fields := map[string]interface{}{"auto_reply_enabled": enabled}
	if enabled {
		fields["auto_reply_start_time"] = startTime
	}
	return db.updateUser(id, fields)
}

func (db *GormDB) SetImageFileID(id string, fileID *string) error {
	return db.updateUser(id, map[string]interface{}{"image_file_id": fileID})
}

func (db *GormDB) SetBalanceFlag(id string, flag models.BalanceFlag) error {
	switch flag {
	case models.FlagMainBalance200, models.FlagAdvance200, models.FlagAdvance100:
	default:
		return fmt.Errorf("%w: unknown balance flag %q", models.ErrInvalidInput, flag)
	}
	return db.updateUser(id, map[string]interface{}{string(flag): true})
}

func (db *GormDB) ResetBalanceFlags(id string) error {
	return db.updateUser(id, map[string]interface{}{
		string(models.FlagMainBalance200): false,
		string(models.FlagAdvance200):     false,
		string(models.FlagAdvance100):     false,
	})
}

func (db *GormDB) updateUser(id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now().Unix()
	res := db.Conn.Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (db *GormDB) ListActiveUsers() ([]*models.User, error) {
	var users []*models.User
	if err := db.Conn.Where("auto_reply_enabled = ?", true).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}

	return users, nil
}

func (db *GormDB) ListUserIDs() ([]string, error) {
	var ids []string
	if err := db.Conn.Model(&models.User{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return ids, nil
}
