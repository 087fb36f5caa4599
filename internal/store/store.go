package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-connectly/connectly/internal/models"
	"github.com/go-connectly/connectly/internal/util"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the single owner of AppConfig and Connection rows. All other
// components go through its operations; the single-active-row invariant for
// both tables is enforced here, inside transactions, and nowhere else.
//
// Client secrets and tokens are sealed before they reach the database and
// opened on the way out.
type Store struct {
	db     *gorm.DB
	sealer *util.Sealer
}

func New(driver, dsn string, sealer *util.Sealer) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.AppConfig{},
		&models.Connection{},
		&models.AuditLog{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db, sealer: sealer}, nil
}

// App config operations

// ConfigureApp activates a new provider app configuration for a tenant.
// The prior active row, when present, is deactivated in the same
// transaction; configs are never deleted implicitly.
func (s *Store) ConfigureApp(cfg *models.AppConfig) error {
	sealed, err := s.sealer.Seal(cfg.ClientSecret)
	if err != nil {
		return fmt.Errorf("failed to seal client secret: %w", err)
	}

	row := *cfg
	row.ID = uuid.New().String()
	row.ClientSecret = sealed
	row.IsActive = true

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.AppConfig{}).
			Where("tenant_id = ? AND provider = ? AND is_active = ?", cfg.TenantID, cfg.Provider, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return err
	}

	cfg.ID = row.ID
	cfg.IsActive = true
	return nil
}

// GetActiveAppConfig returns the active app configuration for the key, with
// the client secret opened. Returns ErrRecordNotFound when the provider has
// not been configured for the tenant.
func (s *Store) GetActiveAppConfig(tenantID, provider string) (*models.AppConfig, error) {
	var cfg models.AppConfig
	err := s.db.Where("tenant_id = ? AND provider = ? AND is_active = ?", tenantID, provider, true).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	secret, err := s.sealer.Open(cfg.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to open client secret: %w", err)
	}
	cfg.ClientSecret = secret
	return &cfg, nil
}

// Connection operations

// UpsertConnection installs conn as the single active connection for its
// (tenant, provider) key, deactivating any prior active row in the same
// transaction. Tokens are sealed before the row is written; conn keeps its
// plaintext tokens.
func (s *Store) UpsertConnection(conn *models.Connection) error {
	sealedAccess, err := s.sealer.Seal(conn.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to seal access token: %w", err)
	}

	var sealedRefresh string
	if conn.RefreshToken != "" {
		sealedRefresh, err = s.sealer.Seal(conn.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to seal refresh token: %w", err)
		}
	}

	row := *conn
	row.ID = uuid.New().String()
	row.AccessToken = sealedAccess
	row.RefreshToken = sealedRefresh
	row.IsActive = true
	row.RowVersion = 0

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Connection{}).
			Where("tenant_id = ? AND provider = ? AND is_active = ?", conn.TenantID, conn.Provider, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return err
	}

	conn.ID = row.ID
	conn.IsActive = true
	conn.RowVersion = 0
	return nil
}

// GetActiveConnection returns the active connection for the key with tokens
// opened, expired or not; honoring expiry is the refresh engine's job.
func (s *Store) GetActiveConnection(tenantID, provider string) (*models.Connection, error) {
	var conn models.Connection
	err := s.db.Where("tenant_id = ? AND provider = ? AND is_active = ?", tenantID, provider, true).
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if err := s.openConnectionTokens(&conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

// ReplaceConnectionTokens atomically swaps the token triple on a connection
// row, guarded by the row version the caller read. Returns ErrStaleConnection
// when a concurrent refresh or disconnect got there first; the caller should
// re-read the row instead of retrying the exchange.
func (s *Store) ReplaceConnectionTokens(
	id string,
	rowVersion int64,
	accessToken, refreshToken string,
	expiresAt, lastSyncAt time.Time,
) (*models.Connection, error) {
	sealedAccess, err := s.sealer.Seal(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to seal access token: %w", err)
	}

	var sealedRefresh string
	if refreshToken != "" {
		sealedRefresh, err = s.sealer.Seal(refreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to seal refresh token: %w", err)
		}
	}

	res := s.db.Model(&models.Connection{}).
		Where("id = ? AND row_version = ? AND is_active = ?", id, rowVersion, true).
		Updates(map[string]any{
			"access_token":  sealedAccess,
			"refresh_token": sealedRefresh,
			"expires_at":    expiresAt,
			"last_sync_at":  lastSyncAt,
			"row_version":   rowVersion + 1,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrStaleConnection
	}

	var conn models.Connection
	if err := s.db.Where("id = ?", id).First(&conn).Error; err != nil {
		return nil, err
	}
	if err := s.openConnectionTokens(&conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

// DeactivateConnection marks the active connection for the key inactive.
// Reports whether a row was actually deactivated.
func (s *Store) DeactivateConnection(tenantID, provider string) (bool, error) {
	res := s.db.Model(&models.Connection{}).
		Where("tenant_id = ? AND provider = ? AND is_active = ?", tenantID, provider, true).
		Updates(map[string]any{
			"is_active":   false,
			"row_version": gorm.Expr("row_version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListActiveConnections returns all active connections for a tenant, newest
// first, with tokens opened.
func (s *Store) ListActiveConnections(tenantID string) ([]models.Connection, error) {
	var conns []models.Connection
	err := s.db.Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("created_at DESC").
		Find(&conns).Error
	if err != nil {
		return nil, err
	}
	for i := range conns {
		if err := s.openConnectionTokens(&conns[i]); err != nil {
			return nil, err
		}
	}
	return conns, nil
}

// CountActiveConnections returns the number of active connections across all
// tenants, for the metrics gauge job.
func (s *Store) CountActiveConnections() (int64, error) {
	var count int64
	err := s.db.Model(&models.Connection{}).Where("is_active = ?", true).Count(&count).Error
	return count, err
}

func (s *Store) openConnectionTokens(conn *models.Connection) error {
	access, err := s.sealer.Open(conn.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to open access token: %w", err)
	}
	conn.AccessToken = access

	if conn.RefreshToken != "" {
		refresh, err := s.sealer.Open(conn.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to open refresh token: %w", err)
		}
		conn.RefreshToken = refresh
	}
	return nil
}

// Audit log operations

// CreateAuditLogsBatch inserts a batch of audit log entries
func (s *Store) CreateAuditLogsBatch(logs []*models.AuditLog) error {
	if len(logs) == 0 {
		return nil
	}
	return s.db.Create(logs).Error
}

// DeleteAuditLogsBefore removes audit logs older than the cutoff and returns
// how many were deleted.
func (s *Store) DeleteAuditLogsBefore(cutoff time.Time) (int64, error) {
	res := s.db.Where("event_time < ?", cutoff).Delete(&models.AuditLog{})
	return res.RowsAffected, res.Error
}

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB returns the underlying GORM database connection (for transactions)
func (s *Store) DB() *gorm.DB {
	return s.db
}
