package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chiripo-news/internal/config"
)

const serviceAccount = `{"type":"service_account","project_id":"chiripo-prod","client_email":"x@y"}`

func TestResolve(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	goodFile := filepath.Join(dir, "sa.json")
	require.NoError(t, os.WriteFile(goodFile, []byte(serviceAccount), 0o600))
	badFile := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badFile, []byte("{nope"), 0o600))
	missing := filepath.Join(dir, "missing.json")

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		want    string
		project string
		wantErr bool
	}{
		{
			name: "auto without credential falls back to sqlite",
			cfg:  config.StorageConfig{Backend: "auto", Firestore: config.FirestoreConfig{CredentialsFile: missing}},
			want: BackendSQLite,
		},
		{
			name:    "inline json wins",
			cfg:     config.StorageConfig{Backend: "auto", Firestore: config.FirestoreConfig{CredentialsJSON: serviceAccount}},
			want:    BackendFirestore,
			project: "chiripo-prod",
		},
		{
			name: "invalid inline json falls through to file",
			cfg: config.StorageConfig{Backend: "", Firestore: config.FirestoreConfig{
				CredentialsJSON: "not json", CredentialsFile: goodFile, ProjectID: "override",
			}},
			want:    BackendFirestore,
			project: "override",
		},
		{
			name: "invalid file is ignored",
			cfg:  config.StorageConfig{Backend: "auto", Firestore: config.FirestoreConfig{CredentialsFile: badFile}},
			want: BackendSQLite,
		},
		{
			name:    "explicit firestore needs a credential",
			cfg:     config.StorageConfig{Backend: "firestore", Firestore: config.FirestoreConfig{CredentialsFile: missing}},
			wantErr: true,
		},
		{
			name: "explicit bolt ignores credentials",
			cfg:  config.StorageConfig{Backend: "bolt", Firestore: config.FirestoreConfig{CredentialsJSON: serviceAccount}},
			want: BackendBolt,
		},
		{
			name:    "credential without project",
			cfg:     config.StorageConfig{Backend: "auto", Firestore: config.FirestoreConfig{CredentialsJSON: `{"type":"x"}`}},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			cfg:     config.StorageConfig{Backend: "mysql"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sel, err := Resolve(tt.cfg, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, sel.Backend)
			require.Equal(t, tt.project, sel.ProjectID)
			if tt.want == BackendFirestore {
				require.NotEmpty(t, sel.Credentials)
			}
		})
	}
}

func TestOpenEmbeddedBackends(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config.StorageConfig{
		SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "news.db")},
		Bolt:   config.BoltConfig{Path: filepath.Join(dir, "news.bolt")},
	}
	for _, backend := range []string{BackendSQLite, BackendBolt, BackendMemory} {
		store, err := Open(context.Background(), Selection{Backend: backend}, cfg, nil)
		require.NoError(t, err, backend)
		require.Equal(t, backend, store.Name())
		require.NoError(t, store.Close())
	}

	_, err := Open(context.Background(), Selection{Backend: "mysql"}, cfg, nil)
	require.Error(t, err)
}

func TestOpenBlob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blob, err := OpenBlob(ctx, config.BlobConfig{Backend: "none"})
	require.NoError(t, err)
	require.Nil(t, blob)

	blob, err = OpenBlob(ctx, config.BlobConfig{Backend: "memory"})
	require.NoError(t, err)
	require.NotNil(t, blob)

	blob, err = OpenBlob(ctx, config.BlobConfig{Backend: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	require.NotNil(t, blob)

	_, err = OpenBlob(ctx, config.BlobConfig{Backend: "s3"})
	require.Error(t, err)
}
