package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodehq/lode/pkg/asset"
)

func createTestStore(t *testing.T) *GORMStore {
	t.Helper()

	store, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	return store
}

func testVersion(assetPath, versionID, branch string, uploaded time.Time) *asset.Version {
	return &asset.Version{
		AssetPath:       assetPath,
		VersionID:       versionID,
		Branch:          branch,
		PrimaryFilename: "report.pdf",
		AssociatedFilenames: asset.PairList{
			{Filename: "fr.txt", VersionID: "av1"},
		},
		UploadDate:  uploaded,
		ArchiveDate: uploaded.AddDate(0, 0, 30),
		DestroyDate: uploaded.AddDate(0, 0, 60),
		Status:      asset.StatusActive,
		Checksum:    "sum-" + versionID,
	}
}

func TestVersionRoundTrip(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	v := testVersion("document/report", "v1", "main", time.Now().UTC())
	require.NoError(t, store.SaveVersion(ctx, v))

	got, err := store.GetVersion(ctx, "document/report", "v1", "main")
	require.NoError(t, err)
	assert.Equal(t, v.AssetPath, got.AssetPath)
	assert.Equal(t, v.PrimaryFilename, got.PrimaryFilename)
	assert.Equal(t, v.AssociatedFilenames, got.AssociatedFilenames)
	assert.Equal(t, asset.StatusActive, got.Status)

	t.Run("saving the same key upserts", func(t *testing.T) {
		v.AssociatedFilenames = v.AssociatedFilenames.Merge(asset.PairList{
			{Filename: "es.txt", VersionID: "av2"},
		})
		require.NoError(t, store.SaveVersion(ctx, v))

		got, err := store.GetVersion(ctx, "document/report", "v1", "main")
		require.NoError(t, err)
		assert.Len(t, got.AssociatedFilenames, 2)
	})

	t.Run("missing version not found", func(t *testing.T) {
		_, err := store.GetVersion(ctx, "document/report", "nope", "main")
		assert.True(t, asset.IsKind(err, asset.KindNotFound))
	})

	t.Run("branch isolation", func(t *testing.T) {
		_, err := store.GetVersion(ctx, "document/report", "v1", "other")
		assert.True(t, asset.IsKind(err, asset.KindNotFound))
	})
}

func TestHeadAndLatestActive(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveVersion(ctx, testVersion("document/report", "v1", "main", base)))
	require.NoError(t, store.SaveVersion(ctx, testVersion("document/report", "v2", "main", base.Add(time.Hour))))

	head, err := store.GetHeadVersion(ctx, "document/report", "main")
	require.NoError(t, err)
	assert.Equal(t, "v2", head.VersionID)

	// Archive the newest: head still reports it, latest-active falls back.
	require.NoError(t, store.UpdateStatus(ctx, "document/report", "v2", "main", asset.StatusArchived))

	head, err = store.GetHeadVersion(ctx, "document/report", "main")
	require.NoError(t, err)
	assert.Equal(t, "v2", head.VersionID)
	assert.Equal(t, asset.StatusArchived, head.Status)

	active, err := store.GetLatestActive(ctx, "document/report", "main")
	require.NoError(t, err)
	assert.Equal(t, "v1", active.VersionID)
}

func TestUpdateStatusMissingVersion(t *testing.T) {
	store := createTestStore(t)

	err := store.UpdateStatus(context.Background(), "document/report", "v1", "main", asset.StatusArchived)
	assert.True(t, asset.IsKind(err, asset.KindNotFound))
}

func TestListVersionsByKey(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveVersion(ctx, testVersion("document/report", "v1", "main", base)))
	require.NoError(t, store.SaveVersion(ctx, testVersion("document/report", "v2", "main", base.Add(time.Hour))))

	other := testVersion("document/report", "v3", "main", base.Add(2*time.Hour))
	other.PrimaryFilename = "other.pdf"
	require.NoError(t, store.SaveVersion(ctx, other))

	versions, err := store.ListVersionsByKey(ctx, "document/report/report.pdf", "main")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v2", versions[0].VersionID)
	assert.Equal(t, "v1", versions[1].VersionID)

	t.Run("archived versions drop out", func(t *testing.T) {
		require.NoError(t, store.UpdateStatus(ctx, "document/report", "v2", "main", asset.StatusArchived))

		versions, err := store.ListVersionsByKey(ctx, "document/report/report.pdf", "main")
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.Equal(t, "v1", versions[0].VersionID)
	})
}

func TestDueForArchiveAndDestroy(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	due := testVersion("document/due", "v1", "main", base)
	fresh := testVersion("document/fresh", "v2", "main", base.AddDate(0, 0, 20))
	require.NoError(t, store.SaveVersion(ctx, due))
	require.NoError(t, store.SaveVersion(ctx, fresh))

	// Only the older version's planned archive date has passed.
	now := base.AddDate(0, 0, 35)

	toArchive, err := store.ListDueForArchive(ctx, now)
	require.NoError(t, err)
	require.Len(t, toArchive, 1)
	assert.Equal(t, "document/due", toArchive[0].AssetPath)

	t.Run("archived rows wait for their destroy date", func(t *testing.T) {
		require.NoError(t, store.UpdateStatus(ctx, "document/due", "v1", "main", asset.StatusArchived))

		toDestroy, err := store.ListDueForDestroy(ctx, now)
		require.NoError(t, err)
		assert.Empty(t, toDestroy)

		toDestroy, err = store.ListDueForDestroy(ctx, base.AddDate(0, 0, 61))
		require.NoError(t, err)
		require.Len(t, toDestroy, 1)
		assert.Equal(t, "v1", toDestroy[0].VersionID)
	})

	t.Run("archived rows stop being archive candidates", func(t *testing.T) {
		toArchive, err := store.ListDueForArchive(ctx, now)
		require.NoError(t, err)
		assert.Empty(t, toArchive)
	})
}

func TestDeleteMetadata(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	v := testVersion("document/report", "v1", "main", time.Now().UTC())
	require.NoError(t, store.SaveVersion(ctx, v))
	require.NoError(t, store.RecordAudit(ctx, &asset.AuditEvent{
		Username:  "alice",
		AssetPath: "document/report",
		VersionID: "v1",
		Branch:    "main",
		Operation: "upload",
		Success:   true,
	}))

	require.NoError(t, store.DeleteMetadata(ctx, "document/report", "v1", "main"))

	_, err := store.GetVersion(ctx, "document/report", "v1", "main")
	assert.True(t, asset.IsKind(err, asset.KindNotFound))

	events, err := store.ListAudit(ctx, "main", 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	t.Run("second delete not found", func(t *testing.T) {
		err := store.DeleteMetadata(ctx, "document/report", "v1", "main")
		assert.True(t, asset.IsKind(err, asset.KindNotFound))
	})
}

func TestPrimaryChanged(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	t.Run("unknown checksum is a new file", func(t *testing.T) {
		status, err := store.PrimaryChanged(ctx, "sum-x", "document/report", "main")
		require.NoError(t, err)
		assert.True(t, status.Changed)
		assert.Equal(t, "The primary file is a new file", status.Message)
	})

	v := testVersion("document/report", "v1", "main", time.Now().UTC())
	require.NoError(t, store.SaveVersion(ctx, v))

	t.Run("same checksum same path", func(t *testing.T) {
		status, err := store.PrimaryChanged(ctx, "sum-v1", "document/report", "main")
		require.NoError(t, err)
		assert.False(t, status.Changed)
		assert.Contains(t, status.Message, "asset path: document/report")
		assert.Contains(t, status.Message, "version ID: v1")
	})

	t.Run("same checksum different path", func(t *testing.T) {
		status, err := store.PrimaryChanged(ctx, "sum-v1", "document/renamed", "main")
		require.NoError(t, err)
		assert.False(t, status.Changed)
		assert.Contains(t, status.Message, "different file name report.pdf")
		assert.Contains(t, status.Message, "asset path: document/report")
	})

	t.Run("other branch does not match", func(t *testing.T) {
		status, err := store.PrimaryChanged(ctx, "sum-v1", "document/report", "other")
		require.NoError(t, err)
		assert.True(t, status.Changed)
	})

	t.Run("archived rows do not match", func(t *testing.T) {
		require.NoError(t, store.UpdateStatus(ctx, "document/report", "v1", "main", asset.StatusArchived))

		status, err := store.PrimaryChanged(ctx, "sum-v1", "document/report", "main")
		require.NoError(t, err)
		assert.True(t, status.Changed)
	})
}

func TestUsers(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	admin := &asset.User{
		Username:    "alice",
		Branch:      "alice_space",
		Permissions: []asset.Permission{asset.PermAdmin},
	}
	require.NoError(t, store.CreateUser(ctx, admin, "s3cret"))

	t.Run("duplicate username conflicts", func(t *testing.T) {
		err := store.CreateUser(ctx, &asset.User{Username: "alice", Branch: "x"}, "pw")
		assert.True(t, asset.IsKind(err, asset.KindConflict))
	})

	t.Run("validate credentials", func(t *testing.T) {
		user, err := store.ValidateCredentials(ctx, "alice", "s3cret")
		require.NoError(t, err)
		assert.Equal(t, "alice_space", user.Branch)
		assert.True(t, user.IsAdmin())

		_, err = store.ValidateCredentials(ctx, "alice", "wrong")
		assert.True(t, asset.IsKind(err, asset.KindForbidden))

		_, err = store.ValidateCredentials(ctx, "nobody", "pw")
		assert.True(t, asset.IsKind(err, asset.KindForbidden))
	})

	t.Run("update permissions", func(t *testing.T) {
		shared := &asset.User{
			Username:    "bob",
			Branch:      "alice_space",
			Permissions: []asset.Permission{asset.PermDownload},
		}
		require.NoError(t, store.CreateUser(ctx, shared, "pw"))

		require.NoError(t, store.UpdateUserPermissions(ctx, "bob",
			[]asset.Permission{asset.PermDownload, asset.PermUpload}))

		got, err := store.GetUser(ctx, "bob")
		require.NoError(t, err)
		assert.ElementsMatch(t, []asset.Permission{asset.PermDownload, asset.PermUpload}, got.Permissions)
	})

	t.Run("list by branch", func(t *testing.T) {
		users, err := store.ListUsersByBranch(ctx, "alice_space")
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "alice", users[0].Username)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.DeleteUser(ctx, "bob"))
		_, err := store.GetUser(ctx, "bob")
		assert.True(t, asset.IsKind(err, asset.KindNotFound))

		err = store.DeleteUser(ctx, "bob")
		assert.True(t, asset.IsKind(err, asset.KindNotFound))
	})
}

func TestAuditLog(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordAudit(ctx, &asset.AuditEvent{
			Username:  "alice",
			AssetPath: "document/report",
			VersionID: "v1",
			Branch:    "main",
			Operation: "upload",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Success:   true,
		}))
	}

	events, err := store.ListAudit(ctx, "main", 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, base.Add(4*time.Hour), events[0].Timestamp.UTC())

	t.Run("cleanup removes only old events", func(t *testing.T) {
		removed, err := store.CleanupLogs(ctx, base.Add(2*time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 2, removed)

		events, err := store.ListAudit(ctx, "main", 10)
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})
}

func TestMigrationCreatesCompositeIndexes(t *testing.T) {
	store := createTestStore(t)
	migrator := store.DB().Migrator()

	assert.True(t, migrator.HasIndex(&versionRecord{}, "idx_asset_branch"))
	assert.True(t, migrator.HasIndex(&versionRecord{}, "idx_branch_checksum"))
	assert.True(t, migrator.HasIndex(&auditRecord{}, "idx_audit_version"))
	assert.True(t, migrator.HasIndex(&auditRecord{}, "idx_audit_branch"))
}
