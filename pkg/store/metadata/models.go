package metadata

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lodehq/lode/pkg/asset"
)

// versionRecord is one commit_history row. The composite primary key
// (asset_path, version_id, branch) makes version ids unique per branch.
type versionRecord struct {
	AssetPath           string    `gorm:"primaryKey;size:512;index:idx_asset_branch"`
	VersionID           string    `gorm:"primaryKey;size:128"`
	Branch              string    `gorm:"primaryKey;size:128;index:idx_branch_checksum;index:idx_asset_branch"`
	PrimaryFilename     string    `gorm:"size:256"`
	AssetKey            string    `gorm:"size:768;index"`
	AssociatedFilenames string    `gorm:"type:text"`
	UploadDate          time.Time `gorm:"index"`
	ArchiveDate         time.Time `gorm:"index"`
	DestroyDate         time.Time `gorm:"index"`
	Status              string    `gorm:"size:16;index"`
	Checksum            string    `gorm:"size:64;index:idx_branch_checksum"`
}

func (versionRecord) TableName() string { return "commit_history" }

func versionToRecord(v *asset.Version) (*versionRecord, error) {
	pairs, err := json.Marshal(v.AssociatedFilenames)
	if err != nil {
		return nil, fmt.Errorf("encode associated filenames: %w", err)
	}
	return &versionRecord{
		AssetPath:           v.AssetPath,
		VersionID:           v.VersionID,
		Branch:              v.Branch,
		PrimaryFilename:     v.PrimaryFilename,
		AssetKey:            v.AssetKey(),
		AssociatedFilenames: string(pairs),
		UploadDate:          v.UploadDate,
		ArchiveDate:         v.ArchiveDate,
		DestroyDate:         v.DestroyDate,
		Status:              string(v.Status),
		Checksum:            v.Checksum,
	}, nil
}

func (r *versionRecord) toVersion() (*asset.Version, error) {
	var pairs asset.PairList
	if r.AssociatedFilenames != "" {
		if err := json.Unmarshal([]byte(r.AssociatedFilenames), &pairs); err != nil {
			return nil, fmt.Errorf("decode associated filenames for %s@%s: %w",
				r.AssetPath, r.VersionID, err)
		}
	}
	return &asset.Version{
		AssetPath:           r.AssetPath,
		VersionID:           r.VersionID,
		Branch:              r.Branch,
		PrimaryFilename:     r.PrimaryFilename,
		AssociatedFilenames: pairs,
		UploadDate:          r.UploadDate,
		ArchiveDate:         r.ArchiveDate,
		DestroyDate:         r.DestroyDate,
		Status:              asset.Status(r.Status),
		Checksum:            r.Checksum,
	}, nil
}

func recordsToVersions(records []versionRecord) ([]*asset.Version, error) {
	versions := make([]*asset.Version, 0, len(records))
	for i := range records {
		v, err := records[i].toVersion()
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// userRecord is one users row.
type userRecord struct {
	Username     string `gorm:"primaryKey;size:128"`
	PasswordHash string `gorm:"size:128"`
	Branch       string `gorm:"size:128;index"`
	Permissions  string `gorm:"type:text"`
	CreatedAt    time.Time
}

func (userRecord) TableName() string { return "users" }

func (r *userRecord) toUser() (*asset.User, error) {
	var perms []asset.Permission
	if r.Permissions != "" {
		if err := json.Unmarshal([]byte(r.Permissions), &perms); err != nil {
			return nil, fmt.Errorf("decode permissions for %s: %w", r.Username, err)
		}
	}
	return &asset.User{
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Branch:       r.Branch,
		Permissions:  perms,
		CreatedAt:    r.CreatedAt,
	}, nil
}

// auditRecord is one audit_log row.
type auditRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Username  string    `gorm:"size:128;index"`
	AssetPath string    `gorm:"size:512;index:idx_audit_version"`
	VersionID string    `gorm:"size:128;index:idx_audit_version"`
	Branch    string    `gorm:"size:128;index:idx_audit_branch;index:idx_audit_version"`
	Operation string    `gorm:"size:32"`
	Timestamp time.Time `gorm:"index"`
	Success   bool
	Details   string    `gorm:"type:text"`
}

func (auditRecord) TableName() string { return "audit_log" }

func (r *auditRecord) toEvent() *asset.AuditEvent {
	return &asset.AuditEvent{
		ID:        r.ID,
		Username:  r.Username,
		AssetPath: r.AssetPath,
		VersionID: r.VersionID,
		Branch:    r.Branch,
		Operation: r.Operation,
		Timestamp: r.Timestamp,
		Success:   r.Success,
		Details:   r.Details,
	}
}
