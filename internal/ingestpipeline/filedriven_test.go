package ingestpipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoindex/internal/model"
	"convoindex/internal/preprocess"
	"convoindex/internal/sourceadapter"
)

func TestFileDrivenRunOnceProcessesAndMarksDone(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	dir := t.TempDir()
	record := `{"source":"telegram","messages":[{"ConversationID":"c1","MessageID":"m1","Author":"alice","Text":"hi","Timestamp":1}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "batch1.json"), []byte(record), 0o600))

	sched := NewFileDrivenSchedule(p, sourceadapter.FileAdapter{Dir: dir}, map[model.Source]preprocess.Preprocessor{
		model.SourceTelegram: preprocess.Telegram{},
	}, zerolog.Nop())

	sched.RunOnce(context.Background())

	_, err := os.Stat(filepath.Join(dir, "batch1.json.done"))
	assert.NoError(t, err)
}

func TestFileDrivenRunOnceLeavesFileUnmarkedOnUnknownSource(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	dir := t.TempDir()
	record := `{"source":"discord","messages":[{"ConversationID":"c1","MessageID":"m1"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "batch1.json"), []byte(record), 0o600))

	sched := NewFileDrivenSchedule(p, sourceadapter.FileAdapter{Dir: dir}, map[model.Source]preprocess.Preprocessor{
		model.SourceTelegram: preprocess.Telegram{},
	}, zerolog.Nop())

	sched.RunOnce(context.Background())

	_, err := os.Stat(filepath.Join(dir, "batch1.json.done"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileDrivenRunOnceMarksFileWithNoMessagesDone(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	dir := t.TempDir()
	record := `{"source":"telegram","messages":[]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.json"), []byte(record), 0o600))

	sched := NewFileDrivenSchedule(p, sourceadapter.FileAdapter{Dir: dir}, map[model.Source]preprocess.Preprocessor{
		model.SourceTelegram: preprocess.Telegram{},
	}, zerolog.Nop())

	sched.RunOnce(context.Background())

	_, err := os.Stat(filepath.Join(dir, "empty.json.done"))
	assert.NoError(t, err)
}
