package bank

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(chapter, prompt string) Record {
	return Record{
		ChapterTag:   chapter,
		PromptText:   prompt,
		Choices:      []string{"alpha", "beta", "gamma", "delta"},
		CorrectIndex: 1,
		Explanation:  "because",
		Origin:       OriginRefill,
	}
}

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bank.jsonl")
	s, err := Open(path, Options{Now: func() time.Time {
		return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	}})
	require.NoError(t, err)
	return s, path
}

func readLines(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		out = append(out, r)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("", Options{})
	require.Error(t, err)
}

func TestOpen_MissingFileInstallsSeeds(t *testing.T) {
	s, path := openTestStore(t)

	assert.Equal(t, len(SeedRecords()), s.Len())
	for _, r := range s.All() {
		assert.Equal(t, OriginOfflineSeed, r.Origin)
	}
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "open must not create the bank file")
}

func TestAdd_DuplicateRejected(t *testing.T) {
	s, _ := openTestStore(t)
	r := testRecord("ml", "What is gradient descent?")

	_, err := s.Add(r)
	require.NoError(t, err)
	size := s.Len()

	_, err = s.Add(r)
	require.ErrorIs(t, err, ErrDuplicateQuestion)
	assert.Equal(t, size, s.Len(), "bank size must not change on duplicate")
}

func TestAdd_CosmeticVariantIsDuplicate(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.Add(testRecord("ml", "What is gradient descent?"))
	require.NoError(t, err)

	_, err = s.Add(testRecord("dl", "  what IS   gradient descent ？"))
	assert.ErrorIs(t, err, ErrDuplicateQuestion)
}

func TestAdd_AssignsIDAndTimestamp(t *testing.T) {
	s, _ := openTestStore(t)
	r := testRecord("ml", "Define a loss function.")
	r.ID = "caller-supplied"

	got, err := s.Add(r)
	require.NoError(t, err)
	assert.Equal(t, KeyOf("Define a loss function."), got.ID)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), got.CreatedAt)

	stored, ok := s.Get(got.ID)
	require.True(t, ok)
	assert.Equal(t, got, stored)
}

func TestAdd_InvalidRecord(t *testing.T) {
	s, _ := openTestStore(t)
	r := testRecord("ml", "Too few choices?")
	r.Choices = r.Choices[:3]

	_, err := s.Add(r)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "choices", verr.Field)
}

func TestAdd_PersistsSeedsAheadOfFirstRecord(t *testing.T) {
	s, path := openTestStore(t)
	seeds := len(SeedRecords())

	_, err := s.Add(testRecord("ml", "First appended question"))
	require.NoError(t, err)
	_, err = s.Add(testRecord("ml", "Second appended question"))
	require.NoError(t, err)

	lines := readLines(t, path)
	require.Len(t, lines, seeds+2)
	assert.Equal(t, OriginOfflineSeed, lines[0].Origin)
	assert.Equal(t, "Second appended question", lines[len(lines)-1].PromptText)
}

func TestOpen_ReloadPreservesOrderAndDedup(t *testing.T) {
	s, path := openTestStore(t)
	_, err := s.Add(testRecord("ml", "Question one"))
	require.NoError(t, err)
	_, err = s.Add(testRecord("dl", "Question two"))
	require.NoError(t, err)
	before := s.All()

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, before, reopened.All())

	_, err = reopened.Add(testRecord("ml", "question ONE"))
	assert.ErrorIs(t, err, ErrDuplicateQuestion)
}

func TestOpen_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.jsonl")
	good, err := json.Marshal(testRecord("ml", "A valid question"))
	require.NoError(t, err)
	bad := testRecord("ml", "Bad index")
	bad.CorrectIndex = 7
	badLine, err := json.Marshal(bad)
	require.NoError(t, err)

	content := "{not json\n\n" + string(good) + "\n" + string(badLine) + "\n" + string(good) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := Open(path, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, "A valid question", s.All()[0].PromptText)
}

func TestAdd_TerminatesUnfinishedLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.jsonl")
	first, err := json.Marshal(testRecord("ml", "Hand-edited question"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, first, 0o644))

	s, err := Open(path, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	_, err = s.Add(testRecord("ml", "Appended question"))
	require.NoError(t, err)

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "Hand-edited question", lines[0].PromptText)
	assert.Equal(t, "Appended question", lines[1].PromptText)

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())
}

func TestOpen_AllLinesCorruptFallsBackToSeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("garbage\n{\"id\":\n"), 0o644))

	s, err := Open(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, len(SeedRecords()), s.Len())
}

func TestOpen_UnreadablePathFallsBackToSeeds(t *testing.T) {
	// A directory cannot be scanned as a bank file.
	dir := t.TempDir()

	s, err := Open(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, len(SeedRecords()), s.Len())
}

func TestByChapterAndCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.jsonl")
	var content []byte
	for _, r := range []Record{
		testRecord("a", "q1"), testRecord("b", "q2"), testRecord("a", "q3"),
	} {
		b, err := json.Marshal(r)
		require.NoError(t, err)
		content = append(content, b...)
		content = append(content, '\n')
	}
	require.NoError(t, os.WriteFile(path, content, 0o644))

	s, err := Open(path, Options{})
	require.NoError(t, err)

	a := s.ByChapter("a")
	require.Len(t, a, 2)
	assert.Equal(t, "q1", a[0].PromptText)
	assert.Equal(t, "q3", a[1].PromptText)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, s.ChapterCounts())
	assert.Equal(t, []string{"a", "b"}, s.Chapters())
	assert.True(t, s.Has("Q1."))
	assert.False(t, s.Has("q4"))
}

func TestAll_ReturnsCopy(t *testing.T) {
	s, _ := openTestStore(t)
	all := s.All()
	all[0].PromptText = "mutated"
	assert.NotEqual(t, "mutated", s.All()[0].PromptText)
}
