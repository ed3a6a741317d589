package rag

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"rescuecore/internal/logging"
	"rescuecore/internal/types"
)

// CaseStore holds historical disaster cases for similarity retrieval. Safe
// for concurrent use.
type CaseStore struct {
	db      *sql.DB
	mu      sync.RWMutex
	dbPath  string
	engine  EmbeddingEngine // nil selects the keyword fallback
	timeout time.Duration
}

// OpenStore initializes the case store at the given path. A nil embedding
// engine is valid: searches then rank by keyword overlap instead of vector
// similarity.
func OpenStore(path string, engine EmbeddingEngine, timeout time.Duration) (*CaseStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "OpenStore")
	defer timer.Stop()

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open case database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set journal_mode=WAL: %v", err)
	}

	s := &CaseStore{db: db, dbPath: path, engine: engine, timeout: timeout}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}

	engineName := "keyword"
	if engine != nil {
		engineName = engine.Name()
	}
	logging.Store("case store ready at %s (similarity: %s)", path, engineName)
	return s, nil
}

func (s *CaseStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cases (
		case_id TEXT PRIMARY KEY,
		disaster_type TEXT NOT NULL,
		summary TEXT NOT NULL,
		lessons TEXT NOT NULL DEFAULT '[]',
		best_practices TEXT NOT NULL DEFAULT '[]',
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_cases_type ON cases(disaster_type);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create cases schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *CaseStore) Close() error {
	return s.db.Close()
}

// StoreCase inserts or replaces one historical case, embedding its summary
// when an engine is configured.
func (s *CaseStore) StoreCase(ctx context.Context, c types.SimilarCase) error {
	timer := logging.StartTimer(logging.CategoryStore, "StoreCase")
	defer timer.Stop()

	var embBlob []byte
	if s.engine != nil {
		vec, err := s.engine.Embed(ctx, c.Summary)
		if err != nil {
			return fmt.Errorf("failed to embed case %s: %w", c.CaseID, err)
		}
		embBlob = encodeVector(vec)
	}

	lessons, _ := json.Marshal(c.Lessons)
	practices, _ := json.Marshal(c.BestPractices)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cases
		(case_id, disaster_type, summary, lessons, best_practices, embedding)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.CaseID, c.DisasterType, c.Summary, string(lessons), string(practices), embBlob,
	)
	if err != nil {
		return fmt.Errorf("failed to store case %s: %w", c.CaseID, err)
	}
	return nil
}

// SearchSimilarCases returns up to topK cases resembling the query text,
// most similar first. The disaster-type hint narrows the scan; an empty
// result is valid. Similarity scores are normalized to [0, 1].
func (s *CaseStore) SearchSimilarCases(ctx context.Context, queryText, disasterTypeHint string, topK int) ([]types.SimilarCase, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SearchSimilarCases")
	defer timer.Stop()

	if topK <= 0 {
		topK = 5
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var queryVec []float32
	if s.engine != nil {
		vec, err := s.engine.Embed(ctx, queryText)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		queryVec = vec
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT case_id, disaster_type, summary, lessons, best_practices, embedding
		FROM cases WHERE disaster_type = ? OR ? = ''`,
		disasterTypeHint, disasterTypeHint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}
	defer rows.Close()

	var results []types.SimilarCase
	for rows.Next() {
		var c types.SimilarCase
		var lessons, practices string
		var embBlob []byte
		if err := rows.Scan(&c.CaseID, &c.DisasterType, &c.Summary, &lessons, &practices, &embBlob); err != nil {
			return nil, fmt.Errorf("failed to scan case row: %w", err)
		}
		json.Unmarshal([]byte(lessons), &c.Lessons)
		json.Unmarshal([]byte(practices), &c.BestPractices)

		if queryVec != nil && len(embBlob) > 0 {
			sim, err := CosineSimilarity(queryVec, decodeVector(embBlob))
			if err != nil {
				logging.StoreDebug("case %s embedding mismatch, skipping: %v", c.CaseID, err)
				continue
			}
			// Cosine lands in [-1,1]; shift into [0,1].
			c.SimilarityScore = (sim + 1) / 2
		} else {
			c.SimilarityScore = keywordSimilarity(queryText, c.Summary)
		}
		if c.SimilarityScore > 0 {
			results = append(results, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read case rows: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SimilarityScore > results[j].SimilarityScore
	})
	if len(results) > topK {
		results = results[:topK]
	}

	logging.StoreDebug("similar-case search (hint=%s, topK=%d) -> %d results", disasterTypeHint, topK, len(results))
	return results, nil
}

// Count returns the number of stored cases.
func (s *CaseStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cases").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cases: %w", err)
	}
	return n, nil
}

// keywordSimilarity scores by the fraction of query keywords present in the
// summary. Crude, but it keeps retrieval working with no embedding backend.
func keywordSimilarity(query, summary string) float64 {
	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return 0
	}
	haystack := strings.ToLower(summary)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// encodeVector packs float32 values little-endian, the layout sqlite-vec
// expects for its BLOB columns.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
