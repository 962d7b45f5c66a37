// Package checkpoint persists sampling sessions to a single SQLite file.
//
// A checkpoint holds one session row (what was sampled and how) followed by
// one row per completed iteration. Rows are appended in autocommit mode, so
// an interrupted run always leaves a valid prefix. Resuming reads only the
// last iteration; earlier rows are archival.
package checkpoint

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/reedessick/gpr-isotropy/internal/posterior"
	"github.com/reedessick/gpr-isotropy/internal/romodel"
)

var (
	// ErrNoRecords is returned by Last on a checkpoint without iterations.
	ErrNoRecords = errors.New("checkpoint has no iteration records")
	// ErrNoMetadata is returned when the session row is missing.
	ErrNoMetadata = errors.New("checkpoint has no session metadata")
	// ErrMetadataWritten is returned on a second WriteMetadata.
	ErrMetadataWritten = errors.New("checkpoint metadata already written")
	// ErrOutOfOrder is returned when an appended iteration does not follow the previous one.
	ErrOutOfOrder = errors.New("checkpoint iteration out of order")
	// ErrReadOnly is returned when writing to a checkpoint opened for resume.
	ErrReadOnly = errors.New("checkpoint opened read-only")
)

// Metadata describes the session a checkpoint belongs to.
type Metadata struct {
	SessionID string
	Nside     int
	NWalkers  int
	NDim      int
	Model     romodel.Descriptor
	Prior     posterior.Descriptor
	Kernel    posterior.Descriptor
	CreatedAt time.Time
}

// Record is one completed iteration.
type Record struct {
	Iteration   int
	Positions   [][]float64
	LogProb     []float64
	Eps         []posterior.EpsSummary
	EngineState []byte
}

// Store is an open checkpoint file. It is not safe for concurrent writers.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool
	// last is the most recent iteration index written or found, -1 if none.
	last int
}

var pragmas = []string{
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=FULL",
}

// Create starts a fresh checkpoint at path, replacing any existing file.
func Create(path string) (*Store, error) {
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("removing old checkpoint %s: %w", p, err)
		}
	}
	db, err := openDB(fileDSN(path, "rwc"))
	if err != nil {
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, last: -1}, nil
}

// Open opens an existing checkpoint for reading.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening checkpoint: %w", err)
	}
	db, err := openDB(fileDSN(path, "ro"))
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, path: path, readOnly: true, last: -1}

	version, err := schemaVersion(db)
	if err == nil && version == 0 {
		err = errors.New("no checkpoint schema")
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("reading checkpoint %s: %w", path, err)
	}

	var last sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(iteration) FROM iterations`).Scan(&last); err != nil {
		db.Close()
		return nil, fmt.Errorf("reading checkpoint %s: %w", path, err)
	}
	if last.Valid {
		s.last = int(last.Int64)
	}
	return s, nil
}

var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// fileDSN names path as a SQLite URI with the given open mode. Open uses
// mode=ro, so probing a file that is not a checkpoint leaves it untouched.
func fileDSN(path, mode string) string {
	return "file:" + uriEscaper.Replace(path) + "?mode=" + mode
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Close releases the file.
func (s *Store) Close() error {
	return s.db.Close()
}

// WriteMetadata records the session row. It may be called once per file.
// A missing SessionID is filled with a new UUID.
func (s *Store) WriteMetadata(m Metadata) error {
	if s.readOnly {
		return ErrReadOnly
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM session`).Scan(&n); err != nil {
		return fmt.Errorf("checking session row: %w", err)
	}
	if n > 0 {
		return ErrMetadataWritten
	}

	if m.SessionID == "" {
		m.SessionID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	model, err := json.Marshal(m.Model)
	if err != nil {
		return fmt.Errorf("encoding model descriptor: %w", err)
	}
	prior, err := json.Marshal(m.Prior)
	if err != nil {
		return fmt.Errorf("encoding prior descriptor: %w", err)
	}
	kernel, err := json.Marshal(m.Kernel)
	if err != nil {
		return fmt.Errorf("encoding kernel descriptor: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO session (
			session_id, nside, nwalkers, ndim, model_json, prior_json, kernel_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SessionID, m.Nside, m.NWalkers, m.NDim,
		string(model), string(prior), string(kernel),
		m.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", m.SessionID, err)
	}
	return nil
}

// Metadata reads the session row.
func (s *Store) Metadata() (Metadata, error) {
	var (
		m                    Metadata
		model, prior, kernel string
		createdAt            string
	)
	err := s.db.QueryRow(`
		SELECT session_id, nside, nwalkers, ndim, model_json, prior_json, kernel_json, created_at
		FROM session LIMIT 1`,
	).Scan(&m.SessionID, &m.Nside, &m.NWalkers, &m.NDim, &model, &prior, &kernel, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, ErrNoMetadata
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("reading session: %w", err)
	}

	if err := json.Unmarshal([]byte(model), &m.Model); err != nil {
		return Metadata{}, fmt.Errorf("decoding model descriptor: %w", err)
	}
	if err := json.Unmarshal([]byte(prior), &m.Prior); err != nil {
		return Metadata{}, fmt.Errorf("decoding prior descriptor: %w", err)
	}
	if err := json.Unmarshal([]byte(kernel), &m.Kernel); err != nil {
		return Metadata{}, fmt.Errorf("decoding kernel descriptor: %w", err)
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Metadata{}, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	return m, nil
}

// Append writes one iteration. The first record may carry any index (it is
// the resumed count); each following record must be exactly one greater.
func (s *Store) Append(r Record) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if s.last >= 0 && r.Iteration != s.last+1 {
		return fmt.Errorf("%w: got %d after %d", ErrOutOfOrder, r.Iteration, s.last)
	}
	if r.Iteration < 0 {
		return fmt.Errorf("%w: negative iteration %d", ErrOutOfOrder, r.Iteration)
	}

	positions, err := encodeBlob(r.Positions)
	if err != nil {
		return fmt.Errorf("encoding positions: %w", err)
	}
	logProb, err := encodeBlob(r.LogProb)
	if err != nil {
		return fmt.Errorf("encoding log-probabilities: %w", err)
	}
	var eps []byte
	if r.Eps != nil {
		if eps, err = encodeBlob(r.Eps); err != nil {
			return fmt.Errorf("encoding eps summaries: %w", err)
		}
	}

	_, err = s.db.Exec(`
		INSERT INTO iterations (iteration, positions, log_prob, eps, engine_state)
		VALUES (?, ?, ?, ?, ?)`,
		r.Iteration, positions, logProb, eps, r.EngineState,
	)
	if err != nil {
		return fmt.Errorf("inserting iteration %d: %w", r.Iteration, err)
	}
	s.last = r.Iteration
	return nil
}

// Count returns the number of iteration records.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM iterations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting iterations: %w", err)
	}
	return n, nil
}

const selectRecord = `SELECT iteration, positions, log_prob, eps, engine_state FROM iterations`

// Last returns the final iteration record only.
func (s *Store) Last() (Record, error) {
	row := s.db.QueryRow(selectRecord + ` ORDER BY iteration DESC LIMIT 1`)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNoRecords
	}
	return r, err
}

// Records streams every iteration in order. Used for trace output; resuming
// never replays these.
func (s *Store) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		rows, err := s.db.Query(selectRecord + ` ORDER BY iteration ASC`)
		if err != nil {
			yield(Record{}, fmt.Errorf("querying iterations: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanRecord(rows)
			if !yield(r, err) || err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Record{}, fmt.Errorf("iterating records: %w", err))
		}
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r                       Record
		positions, logProb, eps []byte
		engineState             []byte
	)
	if err := row.Scan(&r.Iteration, &positions, &logProb, &eps, &engineState); err != nil {
		return Record{}, err
	}
	if err := decodeBlob(positions, &r.Positions); err != nil {
		return Record{}, fmt.Errorf("iteration %d positions: %w", r.Iteration, err)
	}
	if err := decodeBlob(logProb, &r.LogProb); err != nil {
		return Record{}, fmt.Errorf("iteration %d log_prob: %w", r.Iteration, err)
	}
	if len(eps) > 0 {
		if err := decodeBlob(eps, &r.Eps); err != nil {
			return Record{}, fmt.Errorf("iteration %d eps: %w", r.Iteration, err)
		}
	}
	if len(engineState) > 0 {
		r.EngineState = engineState
	}
	return r, nil
}
