package metadata

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lodehq/lode/pkg/asset"
)

func (s *GORMStore) SaveVersion(ctx context.Context, v *asset.Version) error {
	record, err := versionToRecord(v)
	if err != nil {
		return asset.Wrap(asset.KindInternal, err, "save version %s@%s", v.AssetPath, v.VersionID)
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(record).Error
	if err != nil {
		return asset.Wrap(asset.KindStorage, err, "save version %s@%s", v.AssetPath, v.VersionID)
	}
	return nil
}

func (s *GORMStore) GetVersion(ctx context.Context, assetPath, versionID, branch string) (*asset.Version, error) {
	var record versionRecord
	err := s.db.WithContext(ctx).
		Where("asset_path = ? AND version_id = ? AND branch = ?", assetPath, versionID, branch).
		First(&record).Error
	if err != nil {
		return nil, convertNotFoundError(err, asset.KindNotFound,
			"version %s@%s not found on branch %s", assetPath, versionID, branch)
	}
	return record.toVersion()
}

func (s *GORMStore) GetHeadVersion(ctx context.Context, assetPath, branch string) (*asset.Version, error) {
	var record versionRecord
	err := s.db.WithContext(ctx).
		Where("asset_path = ? AND branch = ?", assetPath, branch).
		Order("upload_date DESC").
		First(&record).Error
	if err != nil {
		return nil, convertNotFoundError(err, asset.KindNotFound,
			"no versions of %s on branch %s", assetPath, branch)
	}
	return record.toVersion()
}

func (s *GORMStore) GetLatestActive(ctx context.Context, assetPath, branch string) (*asset.Version, error) {
	var record versionRecord
	err := s.db.WithContext(ctx).
		Where("asset_path = ? AND branch = ? AND status = ?", assetPath, branch, string(asset.StatusActive)).
		Order("upload_date DESC").
		First(&record).Error
	if err != nil {
		return nil, convertNotFoundError(err, asset.KindNotFound,
			"no active version of %s on branch %s", assetPath, branch)
	}
	return record.toVersion()
}

func (s *GORMStore) ListVersionsByKey(ctx context.Context, assetKey, branch string) ([]*asset.Version, error) {
	var records []versionRecord
	err := s.db.WithContext(ctx).
		Where("asset_key = ? AND branch = ? AND status = ?", assetKey, branch, string(asset.StatusActive)).
		Order("upload_date DESC").
		Find(&records).Error
	if err != nil {
		return nil, asset.Wrap(asset.KindStorage, err, "list versions of %s", assetKey)
	}
	return recordsToVersions(records)
}

func (s *GORMStore) UpdateStatus(ctx context.Context, assetPath, versionID, branch string, status asset.Status) error {
	result := s.db.WithContext(ctx).
		Model(&versionRecord{}).
		Where("asset_path = ? AND version_id = ? AND branch = ?", assetPath, versionID, branch).
		Update("status", string(status))
	if result.Error != nil {
		return asset.Wrap(asset.KindStorage, result.Error, "update status of %s@%s", assetPath, versionID)
	}
	if result.RowsAffected == 0 {
		return asset.E(asset.KindNotFound, "version %s@%s not found on branch %s",
			assetPath, versionID, branch)
	}
	return nil
}

func (s *GORMStore) DeleteMetadata(ctx context.Context, assetPath, versionID, branch string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Where("asset_path = ? AND version_id = ? AND branch = ?", assetPath, versionID, branch).
			Delete(&versionRecord{})
		if result.Error != nil {
			return asset.Wrap(asset.KindStorage, result.Error, "delete version %s@%s", assetPath, versionID)
		}
		if result.RowsAffected == 0 {
			return asset.E(asset.KindNotFound, "version %s@%s not found on branch %s",
				assetPath, versionID, branch)
		}

		// The version's audit trail goes with it.
		if err := tx.
			Where("asset_path = ? AND version_id = ? AND branch = ?", assetPath, versionID, branch).
			Delete(&auditRecord{}).Error; err != nil {
			return asset.Wrap(asset.KindStorage, err, "delete audit trail of %s@%s", assetPath, versionID)
		}
		return nil
	})
}

func (s *GORMStore) ListDueForArchive(ctx context.Context, before time.Time) ([]*asset.Version, error) {
	var records []versionRecord
	err := s.db.WithContext(ctx).
		Where("status = ? AND archive_date <= ?", string(asset.StatusActive), before).
		Find(&records).Error
	if err != nil {
		return nil, asset.Wrap(asset.KindStorage, err, "list versions due for archive")
	}
	return recordsToVersions(records)
}

func (s *GORMStore) ListDueForDestroy(ctx context.Context, before time.Time) ([]*asset.Version, error) {
	var records []versionRecord
	err := s.db.WithContext(ctx).
		Where("status = ? AND destroy_date <= ?", string(asset.StatusArchived), before).
		Find(&records).Error
	if err != nil {
		return nil, asset.Wrap(asset.KindStorage, err, "list versions due for destroy")
	}
	return recordsToVersions(records)
}

func (s *GORMStore) PrimaryChanged(ctx context.Context, checksum, assetPath, branch string) (asset.ChangeStatus, error) {
	var record versionRecord
	err := s.db.WithContext(ctx).
		Where("checksum = ? AND branch = ? AND status = ?", checksum, branch, string(asset.StatusActive)).
		Order("upload_date DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return asset.ChangeStatus{
				Changed: true,
				Message: "The primary file is a new file",
			}, nil
		}
		return asset.ChangeStatus{}, asset.Wrap(asset.KindStorage, err, "checksum lookup on branch %s", branch)
	}

	if record.AssetPath == assetPath {
		return asset.ChangeStatus{
			Changed: false,
			Message: "The same primary file already exists in the database" +
				" with the asset path: " + record.AssetPath +
				" and version ID: " + record.VersionID,
		}, nil
	}
	return asset.ChangeStatus{
		Changed: false,
		Message: "The same primary file already exists in the database" +
			" with a different file name " + record.PrimaryFilename +
			" and asset path: " + record.AssetPath +
			" and version ID: " + record.VersionID,
	}, nil
}
