package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Compile time checks to ensure SQLStore satisfies the store interfaces.
var (
	_ Store         = (*SQLStore)(nil)
	_ CodebookStore = (*SQLStore)(nil)
)

// maxInParams bounds the number of bind variables per IN clause. SQLite
// defaults to 999 host parameters per statement.
const maxInParams = 500

// SQLOptions configures table names for a SQLStore.
type SQLOptions struct {
	// VectorTable holds full-precision vectors.
	VectorTable string

	// CodebookTable holds one row per centroid.
	CodebookTable string

	// CodeTable holds packed quantization codes.
	CodeTable string
}

// DefaultSQLOptions are the default options for a SQLStore.
var DefaultSQLOptions = SQLOptions{
	VectorTable:   "sense_vectors_raw",
	CodebookTable: "pq_codebook",
	CodeTable:     "pq_quantization",
}

// SQLStore implements Store and CodebookStore on top of database/sql.
//
// Vectors are stored as big-endian float32 blobs, one row per item. The
// store does not own the *sql.DB; the caller opens and closes it. Tested
// against modernc.org/sqlite, the SQL itself sticks to upserts and blobs
// that work on any backend with ? placeholders.
type SQLStore struct {
	db   *sql.DB
	opts SQLOptions
}

// NewSQLStore creates a store on top of an open database handle.
func NewSQLStore(db *sql.DB, optFns ...func(o *SQLOptions)) *SQLStore {
	opts := DefaultSQLOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	return &SQLStore{db: db, opts: opts}
}

// EnsureSchema creates the vector, codebook and code tables if they do
// not already exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id INTEGER PRIMARY KEY,
		word VARCHAR(200),
		sense_id INTEGER,
		vector BLOB
	);

	CREATE TABLE IF NOT EXISTS %[2]s (
		subspace_id INTEGER NOT NULL,
		centroid_id INTEGER NOT NULL,
		vector BLOB,
		PRIMARY KEY (subspace_id, centroid_id)
	);

	CREATE TABLE IF NOT EXISTS %[3]s (
		id INTEGER PRIMARY KEY,
		code BLOB
	);
	`, s.opts.VectorTable, s.opts.CodebookTable, s.opts.CodeTable)

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// PutVectors stores items in a single transaction, overwriting existing IDs.
func (s *SQLStore) PutVectors(ctx context.Context, items []Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, word, sense_id, vector)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			word = excluded.word,
			sense_id = excluded.sense_id,
			vector = excluded.vector
	`, s.opts.VectorTable))
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx, item.ID, item.Label, item.Tag, encodeVector(item.Vector)); err != nil {
			return fmt.Errorf("exec for id %d: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// GetVectors retrieves items for multiple IDs using chunked IN clauses.
func (s *SQLStore) GetVectors(ctx context.Context, ids []uint32) (map[uint32]Item, error) {
	result := make(map[uint32]Item, len(ids))

	for start := 0; start < len(ids); start += maxInParams {
		end := min(start+maxInParams, len(ids))
		chunk := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		query := fmt.Sprintf(
			"SELECT id, word, sense_id, vector FROM %s WHERE id IN (%s)",
			s.opts.VectorTable, placeholders,
		)

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query vectors: %w", err)
		}

		for rows.Next() {
			var (
				item Item
				blob []byte
			)
			if err := rows.Scan(&item.ID, &item.Label, &item.Tag, &blob); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan vector row: %w", err)
			}

			item.Vector, err = decodeVector(blob)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("decode vector for id %d: %w", item.ID, err)
			}

			result[item.ID] = item
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate vector rows: %w", err)
		}
		rows.Close()
	}

	return result, nil
}

// ScanVectors streams every stored item in ascending ID order.
func (s *SQLStore) ScanVectors(ctx context.Context) (ItemIterator, error) {
	query := fmt.Sprintf("SELECT id, word, sense_id, vector FROM %s ORDER BY id", s.opts.VectorTable)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	return &sqlItemIterator{rows: rows}, nil
}

// Count returns the number of stored vectors.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.opts.VectorTable)
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count vectors: %w", err)
	}
	return count, nil
}

// PutCodes stores code rows in a single transaction, overwriting existing IDs.
func (s *SQLStore) PutCodes(ctx context.Context, codeRows []CodeRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, code)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET code = excluded.code
	`, s.opts.CodeTable))
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range codeRows {
		if _, err := stmt.ExecContext(ctx, row.ID, row.Code); err != nil {
			return fmt.Errorf("exec for id %d: %w", row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// ScanCodes streams every stored code row in ascending ID order.
func (s *SQLStore) ScanCodes(ctx context.Context) (CodeIterator, error) {
	query := fmt.Sprintf("SELECT id, code FROM %s ORDER BY id", s.opts.CodeTable)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query codes: %w", err)
	}

	return &sqlCodeIterator{rows: rows}, nil
}

// Reset removes all stored vectors, codes and the codebook.
func (s *SQLStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	// Codes reference vectors, so clear them first.
	for _, table := range []string{s.opts.CodeTable, s.opts.CodebookTable, s.opts.VectorTable} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("clear table %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// PutCodebook stores the codebook, replacing any previous one.
func (s *SQLStore) PutCodebook(ctx context.Context, codebooks [][][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.opts.CodebookTable)); err != nil {
		return fmt.Errorf("clear codebook: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (subspace_id, centroid_id, vector) VALUES (?, ?, ?)",
		s.opts.CodebookTable,
	))
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for m := range codebooks {
		for c := range codebooks[m] {
			if _, err := stmt.ExecContext(ctx, m, c, encodeVector(codebooks[m][c])); err != nil {
				return fmt.Errorf("exec for subspace %d centroid %d: %w", m, c, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// GetCodebook retrieves the stored codebook.
func (s *SQLStore) GetCodebook(ctx context.Context) ([][][]float32, error) {
	query := fmt.Sprintf(
		"SELECT subspace_id, centroid_id, vector FROM %s ORDER BY subspace_id, centroid_id",
		s.opts.CodebookTable,
	)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query codebook: %w", err)
	}
	defer rows.Close()

	var codebooks [][][]float32

	for rows.Next() {
		var (
			subspace, centroid int
			blob               []byte
		)
		if err := rows.Scan(&subspace, &centroid, &blob); err != nil {
			return nil, fmt.Errorf("scan codebook row: %w", err)
		}

		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decode centroid (%d,%d): %w", subspace, centroid, err)
		}

		// Rows arrive ordered, so each appends at the end of its grid slot.
		if subspace != len(codebooks)-1 {
			if subspace != len(codebooks) {
				return nil, fmt.Errorf("codebook has a gap at subspace %d", subspace)
			}
			codebooks = append(codebooks, nil)
		}
		if centroid != len(codebooks[subspace]) {
			return nil, fmt.Errorf("codebook has a gap at subspace %d centroid %d", subspace, centroid)
		}
		codebooks[subspace] = append(codebooks[subspace], vec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate codebook rows: %w", err)
	}

	if len(codebooks) == 0 {
		return nil, ErrNotFound
	}

	return codebooks, nil
}

// sqlCodeIterator adapts sql.Rows to the CodeIterator interface.
type sqlCodeIterator struct {
	rows *sql.Rows
	row  CodeRow
	err  error
}

func (it *sqlCodeIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}

	var (
		id   uint32
		code []byte
	)
	if err := it.rows.Scan(&id, &code); err != nil {
		it.err = fmt.Errorf("scan code row: %w", err)
		return false
	}

	it.row = CodeRow{ID: id, Code: code}
	return true
}

func (it *sqlCodeIterator) Row() CodeRow {
	return it.row
}

func (it *sqlCodeIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *sqlCodeIterator) Close() error {
	return it.rows.Close()
}

// sqlItemIterator adapts sql.Rows to the ItemIterator interface.
type sqlItemIterator struct {
	rows *sql.Rows
	item Item
	err  error
}

func (it *sqlItemIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}

	var (
		item Item
		blob []byte
	)
	if err := it.rows.Scan(&item.ID, &item.Label, &item.Tag, &blob); err != nil {
		it.err = fmt.Errorf("scan vector row: %w", err)
		return false
	}

	item.Vector, it.err = decodeVector(blob)
	if it.err != nil {
		it.err = fmt.Errorf("decode vector for id %d: %w", item.ID, it.err)
		return false
	}

	it.item = item
	return true
}

func (it *sqlItemIterator) Item() Item {
	return it.item
}

func (it *sqlItemIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *sqlItemIterator) Close() error {
	return it.rows.Close()
}

// encodeVector serializes a vector as big-endian float32, the byte order
// float4send uses on PostgreSQL. Data written by either side reads back
// identically on the other.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.BigEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(data))
	}

	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.BigEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
