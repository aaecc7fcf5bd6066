package bank

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maxLineBytes bounds a single JSONL line; longer lines are treated as corrupt.
const maxLineBytes = 1 << 20

// Options configures a Store.
type Options struct {
	// Logger receives load warnings (skipped lines, seed fallback).
	// Defaults to a no-op logger.
	Logger *zerolog.Logger

	// Now stamps CreatedAt on records added without one. Defaults to time.Now.
	Now func() time.Time
}

// Store is the append-only, deduplicated question bank backed by a JSON
// Lines file. All methods are safe for concurrent use; Add holds the store
// lock across the dedup check, the file append and the index update.
type Store struct {
	mu      sync.Mutex
	path    string
	records []Record
	index   map[string]int // KeyOf(PromptText) -> position in records
	logger  zerolog.Logger
	now     func() time.Time

	// unsavedSeeds is set when the built-in seed set was installed in memory
	// only. The seeds are written ahead of the first appended record so the
	// bank never shrinks across restarts.
	unsavedSeeds bool
}

// Open loads the bank at path. A missing, unreadable or empty file, or one
// with no valid lines, yields a bank holding only the built-in seed set.
// Malformed lines are skipped. Open only fails when path is empty.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, errors.New("bank path is required")
	}

	s := &Store{
		path:   path,
		index:  make(map[string]int),
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("component", "bank").Logger()
	}
	if opts.Now != nil {
		s.now = opts.Now
	}

	if err := s.load(); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("question bank unreadable, starting from seed set")
		s.records = nil
		s.index = make(map[string]int)
	}

	if len(s.records) == 0 {
		for _, r := range SeedRecords() {
			s.insert(r)
		}
		s.unsavedSeeds = true
		s.logger.Info().Int("seeds", len(s.records)).Msg("question bank empty, installed built-in seed set")
	}

	return s, nil
}

// load reads the JSONL file into memory, skipping lines that do not decode
// or do not validate.
func (s *Store) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open bank: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			s.logger.Warn().Int("line", lineNo).Err(err).Msg("skipping undecodable bank line")
			continue
		}
		if verr := Validate(r); verr != nil {
			s.logger.Warn().Int("line", lineNo).Str("reason", verr.Error()).Msg("skipping invalid bank line")
			continue
		}

		key := KeyOf(r.PromptText)
		if _, dup := s.index[key]; dup {
			s.logger.Debug().Int("line", lineNo).Str("id", key).Msg("skipping duplicate bank line")
			continue
		}
		r.ID = key
		s.insert(r)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan bank: %w", err)
	}
	return nil
}

// insert appends r to the in-memory log. Caller holds mu (or owns s).
func (s *Store) insert(r Record) {
	s.index[r.ID] = len(s.records)
	s.records = append(s.records, r)
}

// Add appends r to the bank. The ID is derived from the prompt text and
// CreatedAt defaults to now. It returns ErrDuplicateQuestion if the
// normalized text is already present and a *ValidationError if r breaks the
// record schema; in both cases nothing is written.
func (s *Store) Add(r Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = KeyOf(r.PromptText)
	r.Choices = append([]string(nil), r.Choices...)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}

	if verr := Validate(r); verr != nil {
		return Record{}, verr
	}
	if _, dup := s.index[r.ID]; dup {
		return Record{}, fmt.Errorf("%w: %s", ErrDuplicateQuestion, r.ID)
	}

	pending := []Record{r}
	if s.unsavedSeeds {
		pending = append(s.seedsLocked(), r)
	}
	if err := s.appendLines(pending); err != nil {
		return Record{}, fmt.Errorf("persist question: %w", err)
	}

	s.unsavedSeeds = false
	s.insert(r)
	return r, nil
}

// seedsLocked returns the in-memory seed records. Caller holds mu.
func (s *Store) seedsLocked() []Record {
	var out []Record
	for _, r := range s.records {
		if r.Origin == OriginOfflineSeed {
			out = append(out, r)
		}
	}
	return out
}

// appendLines writes records as JSON lines at the end of the bank file and
// syncs it to disk. A file whose last line is unterminated gets a newline
// first so the new record starts on its own line.
func (s *Store) appendLines(records []Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create bank dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open bank for append: %w", err)
	}

	var buf bytes.Buffer
	partial, err := unterminated(f)
	if err != nil {
		f.Close()
		return err
	}
	if partial {
		buf.WriteByte('\n')
	}
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			f.Close()
			return fmt.Errorf("marshal record %s: %w", r.ID, err)
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("append bank: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync bank: %w", err)
	}
	return f.Close()
}

// unterminated reports whether f is non-empty and does not end in a newline.
func unterminated(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat bank: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, fmt.Errorf("read bank tail: %w", err)
	}
	return last[0] != '\n', nil
}

// Has reports whether a question with the same normalized text exists.
func (s *Store) Has(promptText string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[KeyOf(promptText)]
	return ok
}

// Get returns the record with the given ID.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}

// All returns a snapshot of every record in insertion order.
func (s *Store) All() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// ByChapter returns the records tagged with chapter, in insertion order.
func (s *Store) ByChapter(chapter string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.ChapterTag == chapter {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of records in the bank.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// ChapterCounts returns the number of records per chapter tag.
func (s *Store) ChapterCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, r := range s.records {
		counts[r.ChapterTag]++
	}
	return counts
}

// Chapters returns the distinct chapter tags present, sorted.
func (s *Store) Chapters() []string {
	counts := s.ChapterCounts()
	out := make([]string, 0, len(counts))
	for c := range counts {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}
