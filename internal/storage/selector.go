// Package storage chooses and opens the persistence and archive backends.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/config"
	"github.com/JakeFAU/chiripo-news/internal/news"
	"github.com/JakeFAU/chiripo-news/internal/storage/azure"
	"github.com/JakeFAU/chiripo-news/internal/storage/bolt"
	"github.com/JakeFAU/chiripo-news/internal/storage/firestore"
	"github.com/JakeFAU/chiripo-news/internal/storage/gcs"
	"github.com/JakeFAU/chiripo-news/internal/storage/local"
	"github.com/JakeFAU/chiripo-news/internal/storage/memory"
	"github.com/JakeFAU/chiripo-news/internal/storage/postgres"
	"github.com/JakeFAU/chiripo-news/internal/storage/sqlite"
)

// Backend names accepted by storage.backend.
const (
	BackendAuto      = "auto"
	BackendFirestore = "firestore"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendBolt      = "bolt"
	BackendMemory    = "memory"
)

// Selection is the resolved backend plus the credential it needs.
type Selection struct {
	Backend     string
	Credentials []byte
	ProjectID   string
}

// Resolve picks the backend. In auto mode a usable Firestore service account
// (inline JSON first, then the credentials file) selects Firestore, otherwise
// the embedded SQLite database is used.
func Resolve(cfg config.StorageConfig, logger *zap.Logger) (Selection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendAuto
	}

	creds := credentials(cfg.Firestore, logger)
	switch backend {
	case BackendAuto:
		if creds == nil {
			return Selection{Backend: BackendSQLite}, nil
		}
		backend = BackendFirestore
	case BackendFirestore:
		if creds == nil {
			return Selection{}, errors.New("firestore backend requires a service account credential")
		}
	case BackendSQLite, BackendPostgres, BackendBolt, BackendMemory:
		return Selection{Backend: backend}, nil
	default:
		return Selection{}, fmt.Errorf("storage backend %q is not supported", backend)
	}

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	if projectID == "" {
		projectID = credentialProject(creds)
	}
	if projectID == "" {
		return Selection{}, errors.New("firestore project id missing from config and credential")
	}
	return Selection{Backend: BackendFirestore, Credentials: creds, ProjectID: projectID}, nil
}

func credentials(cfg config.FirestoreConfig, logger *zap.Logger) []byte {
	if raw := strings.TrimSpace(cfg.CredentialsJSON); raw != "" {
		if json.Valid([]byte(raw)) {
			return []byte(raw)
		}
		logger.Warn("inline firestore credential is not valid JSON; ignoring it")
	}
	if cfg.CredentialsFile == "" {
		return nil
	}
	raw, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("read firestore credential file", zap.String("path", cfg.CredentialsFile), zap.Error(err))
		}
		return nil
	}
	if !json.Valid(raw) {
		logger.Warn("firestore credential file is not valid JSON", zap.String("path", cfg.CredentialsFile))
		return nil
	}
	return raw
}

func credentialProject(creds []byte) string {
	var sa struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(creds, &sa); err != nil {
		return ""
	}
	return sa.ProjectID
}

// Open constructs the selected backend.
func Open(ctx context.Context, sel Selection, cfg config.StorageConfig, logger *zap.Logger) (news.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("opening article store", zap.String("backend", sel.Backend))
	switch sel.Backend {
	case BackendFirestore:
		return firestore.Open(ctx, sel.ProjectID, sel.Credentials)
	case BackendSQLite:
		return sqlite.Open(ctx, cfg.SQLite.Path)
	case BackendPostgres:
		return postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
	case BackendBolt:
		return bolt.Open(cfg.Bolt.Path)
	case BackendMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("storage backend %q is not supported", sel.Backend)
	}
}

// OpenBlob builds the raw body archive. A nil store with a nil error means
// archiving is off.
func OpenBlob(ctx context.Context, cfg config.BlobConfig) (news.BlobStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "none":
		return nil, nil
	case "memory":
		return memory.NewBlobStore(), nil
	case "local":
		return local.New(cfg.LocalDir)
	case "gcs":
		return gcs.New(ctx, cfg.Bucket)
	case "azure":
		return azure.New(cfg.AzureConnection, cfg.AzureContainer)
	default:
		return nil, fmt.Errorf("blob backend %q is not supported", cfg.Backend)
	}
}
