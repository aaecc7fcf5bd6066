package refill

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/gquiz/internal/bank"
)

func openBank(t *testing.T) *bank.Store {
	t.Helper()
	b, err := bank.Open(filepath.Join(t.TempDir(), "question_bank.jsonl"), bank.Options{})
	require.NoError(t, err)
	return b
}

func candidate(prompt, chapter string) bank.Record {
	return bank.Record{
		ChapterTag:   chapter,
		PromptText:   prompt,
		Choices:      []string{"one", "two", "three", "four"},
		CorrectIndex: 1,
		Explanation:  "because",
		Origin:       bank.OriginOnline,
	}
}

// saturate appends n extra questions to chapter.
func saturate(t *testing.T, g *Guard, chapter string, n int) {
	t.Helper()
	for i := range n {
		_, err := g.ForceAppend(candidate(fmt.Sprintf("%s filler %d", chapter, i), chapter))
		require.NoError(t, err)
	}
}

func TestTryAppend_AppendsWithRefillOrigin(t *testing.T) {
	b := openBank(t)
	g := NewGuard(b, 0)

	rec, err := g.TryAppend(candidate("What does a GAN generator learn?", "deep-learning-applications"), "")
	require.NoError(t, err)
	assert.Equal(t, bank.OriginRefill, rec.Origin)
	assert.Equal(t, bank.KeyOf(rec.PromptText), rec.ID)

	stored, ok := b.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, bank.OriginRefill, stored.Origin)
}

func TestTryAppend_Duplicate(t *testing.T) {
	b := openBank(t)
	g := NewGuard(b, 0)
	seed := bank.SeedRecords()[0]
	before := b.Len()

	_, err := g.TryAppend(candidate("  "+seed.PromptText+" ", seed.ChapterTag), "")
	assert.ErrorIs(t, err, bank.ErrDuplicateQuestion)
	assert.Equal(t, before, b.Len())
}

func TestTryAppend_Saturation(t *testing.T) {
	b := openBank(t)
	g := NewGuard(b, 0.25)
	saturate(t, g, "deep-learning", 1) // 3 of 9

	tests := []struct {
		name    string
		chapter string
		target  string
		wantErr error
	}{
		{"saturated chapter, other target", "deep-learning", "law-and-ethics", ErrChapterSaturated},
		{"saturated chapter, same target", "deep-learning", "deep-learning", nil},
		{"saturated chapter, no target", "deep-learning", "", nil},
		{"unsaturated chapter", "law-and-ethics", "deep-learning-applications", nil},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := b.Len()
			_, err := g.TryAppend(candidate(fmt.Sprintf("saturation case %d", i), tt.chapter), tt.target)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, b.Len(), "nothing appended")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, before+1, b.Len())
		})
	}
}

func TestTryAppend_TargetAsCrowdedIsNotSaturation(t *testing.T) {
	b := openBank(t)
	g := NewGuard(b, 0.25)
	saturate(t, g, "deep-learning", 1)
	saturate(t, g, "machine-learning", 1) // both 3 of 10

	_, err := g.TryAppend(candidate("Which optimizer keeps per-parameter learning rates?", "deep-learning"), "machine-learning")
	assert.NoError(t, err)
}

func TestForceAppend_IgnoresSaturation(t *testing.T) {
	b := openBank(t)
	g := NewGuard(b, 0.25)
	saturate(t, g, "deep-learning", 1)

	c := candidate("What does batch normalization normalize?", "deep-learning")
	_, err := g.TryAppend(c, "law-and-ethics")
	require.ErrorIs(t, err, ErrChapterSaturated)

	rec, err := g.ForceAppend(c)
	require.NoError(t, err)
	assert.Equal(t, bank.OriginRefill, rec.Origin)

	_, err = g.ForceAppend(c)
	assert.ErrorIs(t, err, bank.ErrDuplicateQuestion)
}

func TestNewGuard_MaxShareDefault(t *testing.T) {
	b := openBank(t)
	for _, v := range []float64{0, -1, 1.5} {
		assert.Equal(t, DefaultMaxShare, NewGuard(b, v).maxShare)
	}
	assert.Equal(t, 0.4, NewGuard(b, 0.4).maxShare)
}
