package metadata

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/lodehq/lode/pkg/asset"
)

func (s *GORMStore) CreateUser(ctx context.Context, user *asset.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return asset.Wrap(asset.KindInternal, err, "hash password for %s", user.Username)
	}

	perms, err := json.Marshal(user.Permissions)
	if err != nil {
		return asset.Wrap(asset.KindInternal, err, "encode permissions for %s", user.Username)
	}

	record := &userRecord{
		Username:     user.Username,
		PasswordHash: string(hash),
		Branch:       user.Branch,
		Permissions:  string(perms),
		CreatedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if isUniqueConstraintError(err) {
			return asset.E(asset.KindConflict, "user %s already exists", user.Username)
		}
		return asset.Wrap(asset.KindStorage, err, "create user %s", user.Username)
	}

	user.PasswordHash = string(hash)
	user.CreatedAt = record.CreatedAt
	return nil
}

func (s *GORMStore) GetUser(ctx context.Context, username string) (*asset.User, error) {
	var record userRecord
	err := s.db.WithContext(ctx).
		Where("username = ?", username).
		First(&record).Error
	if err != nil {
		return nil, convertNotFoundError(err, asset.KindNotFound, "user %s not found", username)
	}
	return record.toUser()
}

func (s *GORMStore) ValidateCredentials(ctx context.Context, username, password string) (*asset.User, error) {
	user, err := s.GetUser(ctx, username)
	if err != nil {
		if asset.IsKind(err, asset.KindNotFound) {
			return nil, asset.E(asset.KindForbidden, "invalid credentials")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, asset.E(asset.KindForbidden, "invalid credentials")
	}
	return user, nil
}

func (s *GORMStore) UpdateUserPermissions(ctx context.Context, username string, permissions []asset.Permission) error {
	perms, err := json.Marshal(permissions)
	if err != nil {
		return asset.Wrap(asset.KindInternal, err, "encode permissions for %s", username)
	}

	result := s.db.WithContext(ctx).
		Model(&userRecord{}).
		Where("username = ?", username).
		Update("permissions", string(perms))
	if result.Error != nil {
		return asset.Wrap(asset.KindStorage, result.Error, "update permissions for %s", username)
	}
	if result.RowsAffected == 0 {
		return asset.E(asset.KindNotFound, "user %s not found", username)
	}
	return nil
}

func (s *GORMStore) DeleteUser(ctx context.Context, username string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record userRecord
		if err := tx.Where("username = ?", username).First(&record).Error; err != nil {
			return convertNotFoundError(err, asset.KindNotFound, "user %s not found", username)
		}
		if err := tx.Delete(&record).Error; err != nil {
			return asset.Wrap(asset.KindStorage, err, "delete user %s", username)
		}
		return nil
	})
}

func (s *GORMStore) ListUsersByBranch(ctx context.Context, branch string) ([]*asset.User, error) {
	var records []userRecord
	err := s.db.WithContext(ctx).
		Where("branch = ?", branch).
		Order("username ASC").
		Find(&records).Error
	if err != nil {
		return nil, asset.Wrap(asset.KindStorage, err, "list users on branch %s", branch)
	}

	users := make([]*asset.User, 0, len(records))
	for i := range records {
		user, err := records[i].toUser()
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}
