// Package asset defines the domain model shared by every Lode store and the
// lifecycle coordinator: versioned asset records, their status machine, and
// the error taxonomy surfaced to the HTTP adapter.
package asset

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of an asset version. It only ever moves
// forward: active -> archived -> destroyed.
type Status string

const (
	StatusActive    Status = "active"
	StatusArchived  Status = "archived"
	StatusDestroyed Status = "destroyed"
)

// MediaClass is the coarse media category derived from the primary file.
// It determines the first segment of the asset path and the vector-mirror
// collection the version is indexed into.
type MediaClass string

const (
	MediaVideo    MediaClass = "video"
	MediaAudio    MediaClass = "audio"
	MediaImage    MediaClass = "image"
	MediaDocument MediaClass = "document"
	MediaOther    MediaClass = "other"
)

// FilePair binds an associated filename to the object-store version it was
// committed under.
type FilePair struct {
	Filename  string
	VersionID string
}

// PairList is an insertion-ordered sequence of associated-file pairs.
//
// On the wire and in the metadata store it is a JSON array of 2-tuples
// ([["fr.txt","v1"], ...]); in memory it behaves as an ordered map keyed by
// filename so that merges are deterministic (new entry wins, first-seen
// order preserved).
type PairList []FilePair

// MarshalJSON encodes the list as an array of [filename, version_id] tuples.
func (p PairList) MarshalJSON() ([]byte, error) {
	tuples := make([][2]string, len(p))
	for i, pair := range p {
		tuples[i] = [2]string{pair.Filename, pair.VersionID}
	}
	return json.Marshal(tuples)
}

// UnmarshalJSON decodes an array of [filename, version_id] tuples.
func (p *PairList) UnmarshalJSON(data []byte) error {
	var tuples [][2]string
	if err := json.Unmarshal(data, &tuples); err != nil {
		return fmt.Errorf("associated filenames: %w", err)
	}
	out := make(PairList, len(tuples))
	for i, t := range tuples {
		out[i] = FilePair{Filename: t[0], VersionID: t[1]}
	}
	*p = out
	return nil
}

// Get returns the version id recorded for filename.
func (p PairList) Get(filename string) (string, bool) {
	for _, pair := range p {
		if pair.Filename == filename {
			return pair.VersionID, true
		}
	}
	return "", false
}

// Merge returns a new list with every pair of other applied on top of p.
// Pairs sharing a filename are replaced in place; new filenames append in
// order of appearance.
func (p PairList) Merge(other PairList) PairList {
	merged := make(PairList, len(p), len(p)+len(other))
	copy(merged, p)
	for _, pair := range other {
		replaced := false
		for i := range merged {
			if merged[i].Filename == pair.Filename {
				merged[i].VersionID = pair.VersionID
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, pair)
		}
	}
	return merged
}

// ChangeStatus reports whether an uploaded primary payload was new content,
// as judged by checksum dedup across the branch.
type ChangeStatus struct {
	Changed bool   `json:"changed"`
	Message string `json:"message"`
}

// Version is one committed version of an asset: the authoritative metadata
// row keyed by (asset_path, version_id, branch).
type Version struct {
	// AssetPath is the normalized path {media_class}/{stem}, e.g.
	// "video/annual_report".
	AssetPath string `json:"asset_path"`

	// VersionID is the opaque identifier assigned by the object store when
	// the primary file was committed. Stable and unique within a branch.
	VersionID string `json:"version_id"`

	// PrimaryFilename is the user-visible leaf name of the primary file.
	PrimaryFilename string `json:"primary_filename"`

	// AssociatedFilenames lists the sidecar files committed alongside the
	// primary, newest version per name.
	AssociatedFilenames PairList `json:"associated_filenames"`

	UploadDate  time.Time `json:"upload_date"`
	ArchiveDate time.Time `json:"archive_date"`
	DestroyDate time.Time `json:"destroy_date"`

	// Branch is the tenant isolation key.
	Branch string `json:"branch"`

	Status Status `json:"status"`

	// Checksum is the strong content hash of the primary file as reported
	// by the object store. Used for dedup.
	Checksum string `json:"checksum"`

	// ChangeStatus is attached by upload; it is not persisted.
	ChangeStatus ChangeStatus `json:"change_status"`
}

// AssetKey is the version-list lookup key: asset_path + "/" + primary
// filename.
func (v *Version) AssetKey() string {
	return v.AssetPath + "/" + v.PrimaryFilename
}

// Permission names an operation a user may perform within their branch.
type Permission = string

const (
	PermUpload   Permission = "upload"
	PermDownload Permission = "download"
	PermList     Permission = "list"
	PermArchive  Permission = "archive"
	PermDestroy  Permission = "destroy"
	PermAdmin    Permission = "admin"
)

// Permissions returns every grantable permission.
func Permissions() []Permission {
	return []Permission{PermUpload, PermDownload, PermList, PermArchive, PermDestroy, PermAdmin}
}

// SharedPermissions returns the permissions grantable to shared users
// (everything except admin).
func SharedPermissions() []Permission {
	return []Permission{PermUpload, PermDownload, PermList, PermArchive, PermDestroy}
}

// User is an authenticated principal: a tenant admin or a shared user an
// admin invited into their branch.
type User struct {
	Username     string       `json:"username"`
	PasswordHash string       `json:"-"`
	Branch       string       `json:"branch"`
	Permissions  []Permission `json:"permissions"`
	CreatedAt    time.Time    `json:"created_at"`
}

// HasPermission reports whether the user holds p. Admin implies all.
func (u *User) HasPermission(p Permission) bool {
	for _, have := range u.Permissions {
		if have == PermAdmin || have == p {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user holds the admin permission.
func (u *User) IsAdmin() bool {
	return u.HasPermission(PermAdmin)
}

// AuditEvent is one append-only access-log row.
type AuditEvent struct {
	ID        uint64    `json:"id"`
	Username  string    `json:"username"`
	AssetPath string    `json:"asset_path"`
	VersionID string    `json:"version_id"`
	Branch    string    `json:"branch"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Details   string    `json:"details,omitempty"`
}
