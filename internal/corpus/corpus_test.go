package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/textdetector/internal/models"
)

func TestRead(t *testing.T) {
	data := "id,Human_Content,AI_Content\n" +
		"1,  honestly idk lol  ,It is important to note the following.\n" +
		"2,my cat ate it,\n" +
		"3,\"quoted, with comma\",\"In conclusion, the results are clear.\"\n"

	samples, stats, err := Read(strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 3, stats.Human)
	assert.Equal(t, 2, stats.AI)
	assert.Equal(t, 1, stats.Dropped)

	require.Len(t, samples, 5)
	assert.Equal(t, models.Sample{Text: "honestly idk lol", Label: models.LabelHuman}, samples[0])
	assert.Equal(t, "quoted, with comma", samples[2].Text)
	assert.Equal(t, models.LabelAI, samples[3].Label)
	assert.Equal(t, "In conclusion, the results are clear.", samples[4].Text)
}

func TestReadKeepsWhitespaceOnlyCells(t *testing.T) {
	data := "Human_Content,AI_Content\n   ,text\n"
	samples, _, err := Read(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "", samples[0].Text)
}

func TestReadShortRows(t *testing.T) {
	data := "Human_Content,AI_Content\nonly human\n"
	samples, stats, err := Read(strings.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, samples, 1)
	assert.Equal(t, 0, stats.AI)
}

func TestReadMissingColumns(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty file", ""},
		{"no ai column", "Human_Content,Other\na,b\n"},
		{"no human column", "text,AI_Content\na,b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Read(strings.NewReader(tt.data))
			assert.True(t, errors.Is(err, ErrMissingColumns), "got %v", err)
		})
	}
}

func TestReadNoRows(t *testing.T) {
	_, _, err := Read(strings.NewReader("Human_Content,AI_Content\n,\n"))
	assert.True(t, errors.Is(err, ErrNoRows))
}

func TestReadByteOrderMark(t *testing.T) {
	samples, _, err := Read(strings.NewReader("\ufeffHuman_Content,AI_Content\nx,y\n"))
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.csv")
	require.NoError(t, os.WriteFile(path, []byte("Human_Content,AI_Content\nhi,hello\n"), 0o644))

	samples, _, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, samples, 2)

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
