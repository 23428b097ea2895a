package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quarrydev/quarry/pkg/types"
)

// persistence owns the SQLite connection behind a Store. All access goes
// through loadAll and save; the Store never touches SQL directly.
type persistence struct {
	db *sql.DB
}

// persistBatch is the unit of work handed to save: one transaction covering
// every mutation accumulated since the last flush.
type persistBatch struct {
	clear           bool
	upsertDocs      []*types.Document
	deleteDocIDs    []string
	upsertFiles     []*types.FileRecord
	deleteFilePaths []string
}

// openPersistence opens the database at dbPath and brings its schema up to
// date.
func openPersistence(dbPath string) (*persistence, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := applyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &persistence{db: db}, nil
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

func (p *persistence) close() error {
	return p.db.Close()
}

// loadAll reads the complete persisted corpus
func (p *persistence) loadAll(ctx context.Context) ([]types.Document, []types.FileRecord, error) {
	docs, err := p.loadDocuments(ctx)
	if err != nil {
		return nil, nil, err
	}

	files, err := p.loadFiles(ctx)
	if err != nil {
		return nil, nil, err
	}

	return docs, files, nil
}

func (p *persistence) loadDocuments(ctx context.Context) ([]types.Document, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, text, vector, file_path, start_line, end_line, chunk_type, language
		FROM documents
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []types.Document
	for rows.Next() {
		var doc types.Document
		var blob []byte
		var language sql.NullString

		if err := rows.Scan(&doc.ID, &doc.Text, &blob, &doc.FilePath,
			&doc.StartLine, &doc.EndLine, &doc.ChunkType, &language); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		doc.Vector, err = deserializeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", doc.ID, err)
		}
		doc.Language = language.String

		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (p *persistence) loadFiles(ctx context.Context) ([]types.FileRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT file_path, content_hash, chunk_count, last_indexed_at
		FROM files
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []types.FileRecord
	for rows.Next() {
		var rec types.FileRecord
		if err := rows.Scan(&rec.FilePath, &rec.ContentHash, &rec.ChunkCount, &rec.LastIndexedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}
		files = append(files, rec)
	}
	return files, rows.Err()
}

// save applies a batch in a single transaction. Deletes run before upserts
// so a document removed and re-added in the same window lands in its final
// state.
func (p *persistence) save(ctx context.Context, batch persistBatch) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if batch.clear {
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents"); err != nil {
			return fmt.Errorf("failed to clear documents: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM files"); err != nil {
			return fmt.Errorf("failed to clear files: %w", err)
		}
	}

	for _, id := range batch.deleteDocIDs {
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete document %s: %w", id, err)
		}
	}

	for _, path := range batch.deleteFilePaths {
		if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE file_path = ?", path); err != nil {
			return fmt.Errorf("failed to delete file record %s: %w", path, err)
		}
	}

	for _, doc := range batch.upsertDocs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, text, vector, file_path, start_line, end_line, chunk_type, language)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				text = excluded.text,
				vector = excluded.vector,
				file_path = excluded.file_path,
				start_line = excluded.start_line,
				end_line = excluded.end_line,
				chunk_type = excluded.chunk_type,
				language = excluded.language
		`, doc.ID, doc.Text, serializeVector(doc.Vector), doc.FilePath,
			doc.StartLine, doc.EndLine, doc.ChunkType, doc.Language)
		if err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
		}
	}

	for _, rec := range batch.upsertFiles {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO files (file_path, content_hash, chunk_count, last_indexed_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(file_path) DO UPDATE SET
				content_hash = excluded.content_hash,
				chunk_count = excluded.chunk_count,
				last_indexed_at = excluded.last_indexed_at
		`, rec.FilePath, rec.ContentHash, rec.ChunkCount, rec.LastIndexedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert file record %s: %w", rec.FilePath, err)
		}
	}

	return tx.Commit()
}
