// Package postgres is the production store.DocumentStore backend: every
// document is one JSONB row keyed by (database, collection, doc_id),
// persisted through gorm.io/gorm as a plain []byte jsonb column, the way the teacher's
// internal/data/db.PostgresService opens and migrates its connection
// (6.1). Lookups stay equality/identity-only per the spec's explicit
// Non-goal ("it is not a query language"): FindAllByCriteria loads the
// collection's rows and matches client-side rather than compiling a JSONB
// query language of its own.
package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/brightforge/modelengine/internal/document"
	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/modelerr"
	"github.com/brightforge/modelengine/internal/obs"
	"github.com/brightforge/modelengine/internal/platform/envutil"
	"github.com/brightforge/modelengine/internal/platform/logger"
	"github.com/brightforge/modelengine/internal/store"
)

// Config configures the Postgres connection (6.1, §5 bounded pool).
type Config struct {
	Host, Port, User, Password, Database, SSLMode string
	MaxOpenConns, MaxIdleConns                     int
	ConnMaxLifetime                                time.Duration
}

// ConfigFromEnv reads POSTGRES_* env vars, falling back to the teacher's
// own defaults where this engine has no project-specific convention yet.
func ConfigFromEnv(log *logger.Logger) Config {
	return Config{
		Host:             envutil.GetEnv("POSTGRES_HOST", "localhost", log),
		Port:             envutil.GetEnv("POSTGRES_PORT", "5432", log),
		User:             envutil.GetEnv("POSTGRES_USER", "postgres", log),
		Password:         envutil.GetEnv("POSTGRES_PASSWORD", "", log),
		Database:         envutil.GetEnv("POSTGRES_NAME", "modelengine", log),
		SSLMode:          envutil.GetEnv("POSTGRES_SSLMODE", "disable", log),
		MaxOpenConns:     envutil.Int("POSTGRES_MAX_OPEN_CONNS", 10),
		MaxIdleConns:     envutil.Int("POSTGRES_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  time.Duration(envutil.Int("POSTGRES_CONN_MAX_LIFETIME_MINUTES", 30)) * time.Minute,
	}
}

// row is the JSONB-backed persistence shape for one document (6.1).
// (database, collection, doc_id) is the natural key every store operation
// addresses a document by.
type row struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement"`
	Database   string         `gorm:"column:database;size:255;not null;uniqueIndex:idx_model_doc_key"`
	Collection string         `gorm:"column:collection;size:255;not null;uniqueIndex:idx_model_doc_key"`
	DocID      string         `gorm:"column:doc_id;size:255;not null;uniqueIndex:idx_model_doc_key"`
	Payload    []byte         `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (row) TableName() string { return "model_documents" }

// rawFileRow stores the (6.1) insertRawFile/getRawFile side channel used by
// legacy raw-file collections (distinct from the blob store's own files).
type rawFileRow struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Database   string `gorm:"column:database;size:255;not null;uniqueIndex:idx_model_raw_key"`
	Collection string `gorm:"column:collection;size:255;not null;uniqueIndex:idx_model_raw_key"`
	Name       string `gorm:"column:name;size:512;not null;uniqueIndex:idx_model_raw_key"`
	Bytes      []byte `gorm:"column:bytes;type:bytea;not null"`
	CreatedAt  time.Time
}

func (rawFileRow) TableName() string { return "model_raw_files" }

// Open connects to Postgres, configures the pool bounds, and migrates the
// document engine's two tables, mirroring the teacher's
// internal/data/db.NewPostgresService.
func Open(cfg Config, log *logger.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)

	gormLog := gormlogger.Default.LogMode(gormlogger.Warn)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.Open", fmt.Errorf("connect: %w", err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.Open", fmt.Errorf("unwrap sql.DB: %w", err))
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&row{}, &rawFileRow{}); err != nil {
		return nil, modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.Open", fmt.Errorf("migrate: %w", err))
	}
	if log != nil {
		log.Info("postgres store connected", "host", cfg.Host, "database", cfg.Database, "max_open_conns", cfg.MaxOpenConns)
	}
	return db, nil
}

// Store owns one *gorm.DB shared by every handler it hands out; the
// bounded-pool contract of §5 is enforced one layer up by store.Pool, which
// leases/returns handlers, while gorm/pgx bounds the physical connections
// beneath them (§4.F, DOMAIN STACK: jackc/pgx "fulfilling the bounded-pool
// contract").
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(db *gorm.DB, log *logger.Logger) *Store {
	return &Store{db: db, log: log.With("component", "store.postgres")}
}

// Factory returns a store.Factory handing out handlers bound to s's shared
// *gorm.DB, for use with store.NewPool.
func (s *Store) Factory() store.Factory {
	return func(_ context.Context) (store.DocumentStore, error) {
		return &handler{db: s.db, log: s.log}, nil
	}
}

// Close releases the underlying *sql.DB; call once at process shutdown,
// after the pool built from s.Factory() has been closed.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type handler struct {
	db  *gorm.DB
	log *logger.Logger
}

var _ store.DocumentStore = (*handler)(nil)

func (h *handler) span(ctx context.Context, op string, fn func(context.Context) error) error {
	return obs.WithSpan(ctx, "store.postgres."+op, fn)
}

func decodeRow(r row) (*document.Document, error) {
	doc := &document.Document{}
	if err := doc.UnmarshalJSON(r.Payload); err != nil {
		return nil, modelerr.Wrap(modelerr.CodeCorruption, "postgres.decodeRow", err)
	}
	return doc, nil
}

func encodeDoc(doc *document.Document) ([]byte, error) {
	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, modelerr.Wrap(modelerr.CodeInvalidInput, "postgres.encodeDoc", err)
	}
	if len(raw) > document.MaxDocumentBytes {
		return nil, modelerr.New(modelerr.CodeResourceExhausted, "postgres.encodeDoc",
			fmt.Sprintf("document %d bytes exceeds budget of %d", len(raw), document.MaxDocumentBytes), nil)
	}
	return raw, nil
}

func (h *handler) CountItemsInCollection(ctx context.Context, db, coll string) (uint64, error) {
	var n int64
	err := h.span(ctx, "CountItemsInCollection", func(ctx context.Context) error {
		return h.db.WithContext(ctx).Model(&row{}).
			Where("database = ? AND collection = ?", db, coll).
			Count(&n).Error
	})
	if err != nil {
		return 0, modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.CountItemsInCollection", err)
	}
	return uint64(n), nil
}

func (h *handler) loadCollection(ctx context.Context, db, coll string) ([]row, error) {
	var rows []row
	err := h.span(ctx, "loadCollection", func(ctx context.Context) error {
		return h.db.WithContext(ctx).
			Where("database = ? AND collection = ?", db, coll).
			Find(&rows).Error
	})
	if err != nil {
		return nil, modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.loadCollection", err)
	}
	return rows, nil
}

func (h *handler) GetAllFromCollectionTailable(ctx context.Context, db, coll string, skip int, sortField string, order store.SortOrder) ([]*document.Document, error) {
	rows, err := h.loadCollection(ctx, db, coll)
	if err != nil {
		return nil, err
	}
	docs := make([]*document.Document, 0, len(rows))
	for _, r := range rows {
		d, err := decodeRow(r)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		vi, vj := store.SortValue(docs[i], sortField), store.SortValue(docs[j], sortField)
		if order == store.SortDescending {
			return vi > vj
		}
		return vi < vj
	})
	if skip >= len(docs) {
		return nil, nil
	}
	return docs[skip:], nil
}

func (h *handler) GetCollections(ctx context.Context, db string) ([]string, error) {
	var colls []string
	err := h.span(ctx, "GetCollections", func(ctx context.Context) error {
		return h.db.WithContext(ctx).Model(&row{}).
			Where("database = ?", db).
			Distinct("collection").
			Pluck("collection", &colls).Error
	})
	if err != nil {
		return nil, modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.GetCollections", err)
	}
	sort.Strings(colls)
	return colls, nil
}

func (h *handler) GetDatabases(ctx context.Context, sorted bool) ([]string, error) {
	var dbs []string
	err := h.span(ctx, "GetDatabases", func(ctx context.Context) error {
		return h.db.WithContext(ctx).Model(&row{}).
			Distinct("database").
			Pluck("database", &dbs).Error
	})
	if err != nil {
		return nil, modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.GetDatabases", err)
	}
	if sorted {
		sort.Strings(dbs)
	}
	return dbs, nil
}

func (h *handler) FindAllByUniqueIDs(ctx context.Context, db, coll string, uniqueIDs []ids.UUID) ([]*document.Document, error) {
	if len(uniqueIDs) == 0 {
		return nil, nil
	}
	docIDs := make([]string, len(uniqueIDs))
	for i, u := range uniqueIDs {
		docIDs[i] = u.String()
	}
	var rows []row
	err := h.span(ctx, "FindAllByUniqueIDs", func(ctx context.Context) error {
		return h.db.WithContext(ctx).
			Where("database = ? AND collection = ? AND doc_id IN ?", db, coll, docIDs).
			Find(&rows).Error
	})
	if err != nil {
		return nil, modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.FindAllByUniqueIDs", err)
	}
	out := make([]*document.Document, 0, len(rows))
	for _, r := range rows {
		d, err := decodeRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (h *handler) FindAllByCriteria(ctx context.Context, db, coll string, criteria store.Criteria) ([]*document.Document, error) {
	rows, err := h.loadCollection(ctx, db, coll)
	if err != nil {
		return nil, err
	}
	var out []*document.Document
	for _, r := range rows {
		d, err := decodeRow(r)
		if err != nil {
			return nil, err
		}
		if store.MatchesCriteria(d, criteria) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (h *handler) FindOneBySharedID(ctx context.Context, db, coll string, sharedID ids.UUID, sortField string) (*document.Document, error) {
	rows, err := h.loadCollection(ctx, db, coll)
	if err != nil {
		return nil, err
	}
	var best *document.Document
	var bestVal string
	for _, r := range rows {
		d, err := decodeRow(r)
		if err != nil {
			return nil, err
		}
		f, ok := d.Get("shared_id")
		if !ok {
			continue
		}
		id, ok := f.Value.(ids.UUID)
		if !ok || id != sharedID {
			continue
		}
		v := store.SortValue(d, sortField)
		if best == nil || v > bestVal {
			best, bestVal = d, v
		}
	}
	if best == nil {
		return nil, modelerr.New(modelerr.CodeNotFound, "postgres.FindOneBySharedID", "no document for shared id", nil)
	}
	return best, nil
}

func (h *handler) FindOneByUniqueID(ctx context.Context, db, coll string, uniqueID ids.UUID) (*document.Document, error) {
	var r row
	err := h.span(ctx, "FindOneByUniqueID", func(ctx context.Context) error {
		return h.db.WithContext(ctx).
			Where("database = ? AND collection = ? AND doc_id = ?", db, coll, uniqueID.String()).
			First(&r).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, modelerr.New(modelerr.CodeNotFound, "postgres.FindOneByUniqueID", "no document for unique id", nil)
		}
		return nil, modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.FindOneByUniqueID", err)
	}
	return decodeRow(r)
}

func (h *handler) InsertDocument(ctx context.Context, db, coll string, doc *document.Document) (bool, error) {
	payload, err := encodeDoc(doc)
	if err != nil {
		return false, err
	}
	r := row{Database: db, Collection: coll, DocID: doc.ID, Payload: payload}
	err = h.span(ctx, "InsertDocument", func(ctx context.Context) error {
		return h.db.WithContext(ctx).Create(&r).Error
	})
	if err != nil {
		return false, modelerr.Wrap(modelerr.CodeConflict, "postgres.InsertDocument", err)
	}
	return true, nil
}

func (h *handler) UpsertDocument(ctx context.Context, db, coll string, doc *document.Document, overwrite bool) (bool, error) {
	payload, err := encodeDoc(doc)
	if err != nil {
		return false, err
	}
	var existing row
	found := h.db.WithContext(ctx).
		Where("database = ? AND collection = ? AND doc_id = ?", db, coll, doc.ID).
		First(&existing).Error == nil
	if found && !overwrite {
		return false, nil
	}

	r := row{Database: db, Collection: coll, DocID: doc.ID, Payload: payload}
	err = h.span(ctx, "UpsertDocument", func(ctx context.Context) error {
		if found {
			r.ID = existing.ID
			return h.db.WithContext(ctx).Save(&r).Error
		}
		return h.db.WithContext(ctx).Create(&r).Error
	})
	if err != nil {
		return false, modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.UpsertDocument", err)
	}
	return true, nil
}

func (h *handler) DropDocument(ctx context.Context, db, coll string, doc *document.Document) (bool, error) {
	res := h.db.WithContext(ctx).
		Where("database = ? AND collection = ? AND doc_id = ?", db, coll, doc.ID).
		Delete(&row{})
	if res.Error != nil {
		return false, modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.DropDocument", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (h *handler) DropCollection(ctx context.Context, db, coll string) (bool, error) {
	res := h.db.WithContext(ctx).Where("database = ? AND collection = ?", db, coll).Delete(&row{})
	if res.Error != nil {
		return false, modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.DropCollection", res.Error)
	}
	return true, nil
}

func (h *handler) DropDatabase(ctx context.Context, db string) (bool, error) {
	res := h.db.WithContext(ctx).Where("database = ?", db).Delete(&row{})
	if res.Error != nil {
		return false, modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.DropDatabase", res.Error)
	}
	return true, nil
}

func (h *handler) InsertRawFile(ctx context.Context, db, coll, name string, bytes []byte) (bool, error) {
	r := rawFileRow{Database: db, Collection: coll, Name: name, Bytes: bytes}
	err := h.span(ctx, "InsertRawFile", func(ctx context.Context) error {
		return h.db.WithContext(ctx).
			Where("database = ? AND collection = ? AND name = ?", db, coll, name).
			Assign(rawFileRow{Bytes: bytes}).
			FirstOrCreate(&r).Error
	})
	if err != nil {
		return false, modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.InsertRawFile", err)
	}
	return true, nil
}

func (h *handler) GetRawFile(ctx context.Context, db, coll, name string) ([]byte, error) {
	var r rawFileRow
	err := h.span(ctx, "GetRawFile", func(ctx context.Context) error {
		return h.db.WithContext(ctx).
			Where("database = ? AND collection = ? AND name = ?", db, coll, name).
			First(&r).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, modelerr.New(modelerr.CodeNotFound, "postgres.GetRawFile", "no raw file: "+name, nil)
		}
		return nil, modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.GetRawFile", err)
	}
	return r.Bytes, nil
}

func (h *handler) Liveness(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.Liveness", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return modelerr.Wrap(modelerr.CodeStorageFailure, "postgres.Liveness", err)
	}
	return nil
}

// Close is a no-op: handlers share the Store's *gorm.DB, which is closed
// once by Store.Close at process shutdown rather than per handler.
func (h *handler) Close() error { return nil }
