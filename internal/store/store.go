package store

import (
	"errors"
	"time"

	"github.com/go-authgate/oauthd/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

func New(driver, dsn string) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.User{},
		&models.Client{},
		&models.AuthCode{},
		&models.Token{},
		&models.SigningKey{},
		&models.ResourceServer{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// translate maps GORM errors to package-level sentinels so callers do not
// depend on gorm directly.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrRecordNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	default:
		return err
	}
}

// Client operations

func (s *Store) GetClient(clientID string) (*models.Client, error) {
	var client models.Client
	if err := s.db.Where("client_id = ?", clientID).First(&client).Error; err != nil {
		return nil, translate(err)
	}
	return &client, nil
}

func (s *Store) CreateClient(client *models.Client) error {
	return translate(s.db.Create(client).Error)
}

func (s *Store) UpdateClient(client *models.Client) error {
	return translate(s.db.Save(client).Error)
}

func (s *Store) DeleteClient(clientID string) error {
	return s.db.Where("client_id = ?", clientID).Delete(&models.Client{}).Error
}

// Authorization code operations

func (s *Store) CreateAuthCode(code *models.AuthCode) error {
	return translate(s.db.Create(code).Error)
}

// TakeAuthCode looks up an authorization code and deletes it in the same
// transaction, regardless of whether the code is still valid. The returned
// row is a snapshot of what was deleted; validation happens afterwards so a
// replayed code is gone even when the first presentation fails.
func (s *Store) TakeAuthCode(code string) (*models.AuthCode, error) {
	var taken models.AuthCode
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).First(&taken).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.AuthCode{}, taken.ID)
		if res.Error != nil {
			return res.Error
		}
		// Under READ COMMITTED two exchanges can both read the row before
		// either delete commits; only the caller whose delete removed the
		// row owns the code.
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return &taken, nil
}

// DeleteExpiredAuthCodes removes codes whose expiry has passed. Codes with a
// NULL expiry never expire and are left alone.
func (s *Store) DeleteExpiredAuthCodes(now time.Time) (int64, error) {
	res := s.db.Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Delete(&models.AuthCode{})
	return res.RowsAffected, res.Error
}

// Token operations

func (s *Store) CreateToken(token *models.Token) error {
	return translate(s.db.Create(token).Error)
}

func (s *Store) GetTokenByValue(value string) (*models.Token, error) {
	var token models.Token
	if err := s.db.Where("value = ?", value).First(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

func (s *Store) DeleteTokenByValue(value string) error {
	return s.db.Where("value = ?", value).Delete(&models.Token{}).Error
}

func (s *Store) DeleteTokensByClientID(clientID string) error {
	return s.db.Where("client_id = ?", clientID).Delete(&models.Token{}).Error
}

// DeleteExpiredTokens removes tokens whose expiry has passed. Tokens with a
// NULL expiry never expire and are left alone.
func (s *Store) DeleteExpiredTokens(now time.Time) (int64, error) {
	res := s.db.Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Delete(&models.Token{})
	return res.RowsAffected, res.Error
}

// Signing key operations

func (s *Store) GetSigningKey(kid string) (*models.SigningKey, error) {
	var key models.SigningKey
	if err := s.db.Where("kid = ?", kid).First(&key).Error; err != nil {
		return nil, translate(err)
	}
	return &key, nil
}

// CreateSigningKey inserts a key pair for the given key id. When two
// instances race to create the same key, the loser gets ErrDuplicateKey and
// must re-read the winner's row.
func (s *Store) CreateSigningKey(key *models.SigningKey) error {
	return translate(s.db.Create(key).Error)
}

func (s *Store) ListSigningKeys() ([]models.SigningKey, error) {
	var keys []models.SigningKey
	if err := s.db.Order("created_at ASC").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// Resource server operations

func (s *Store) CreateResourceServer(server *models.ResourceServer) error {
	return translate(s.db.Create(server).Error)
}

func (s *Store) GetResourceServer(serverID string) (*models.ResourceServer, error) {
	var server models.ResourceServer
	if err := s.db.Where("server_id = ?", serverID).First(&server).Error; err != nil {
		return nil, translate(err)
	}
	return &server, nil
}

func (s *Store) GetResourceServerByBaseURL(baseURL string) (*models.ResourceServer, error) {
	var server models.ResourceServer
	if err := s.db.Where("base_url = ?", baseURL).First(&server).Error; err != nil {
		return nil, translate(err)
	}
	return &server, nil
}

func (s *Store) DeleteResourceServer(serverID string) error {
	return s.db.Where("server_id = ?", serverID).Delete(&models.ResourceServer{}).Error
}

// User operations

func (s *Store) CreateUser(user *models.User) error {
	return translate(s.db.Create(user).Error)
}

func (s *Store) GetUserByUserID(userID string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// Metrics helpers

func (s *Store) CountActiveTokensByCategory(category string) (int64, error) {
	var count int64
	err := s.db.Model(&models.Token{}).
		Where("category = ? AND (expires_at IS NULL OR expires_at > ?)", category, time.Now()).
		Count(&count).Error
	return count, err
}

func (s *Store) CountClients() (int64, error) {
	var count int64
	err := s.db.Model(&models.Client{}).Count(&count).Error
	return count, err
}

// Health checks database connectivity
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB exposes the underlying gorm handle for migrations and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}
