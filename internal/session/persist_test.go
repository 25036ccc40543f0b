package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexrun/cortex/pkg/taskmodels"
)

func TestSaveThenLoadYieldsIdenticalMetadataAndHistory(t *testing.T) {
	root := t.TempDir()

	s := New()
	s.AppendMessage(taskmodels.ChatMessage{Role: taskmodels.RoleUser, Content: "build the thing"})
	s.AppendMessage(taskmodels.ChatMessage{Role: taskmodels.RoleAssistant, Content: "on it"})
	s.SetTokenCount(42)

	dir, err := s.Save(root)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "metadata.json"))
	require.FileExists(t, filepath.Join(dir, "history.json"))

	loaded, err := Load(dir)
	require.NoError(t, err)

	want := s.Snapshot()
	got := loaded.Snapshot()
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.TokenCount, got.TokenCount)
	require.Equal(t, want.MessageCount, got.MessageCount)
	require.Len(t, got.History, len(want.History))
	for i := range want.History {
		require.Equal(t, want.History[i].Role, got.History[i].Role)
		require.Equal(t, want.History[i].Content, got.History[i].Content)
		require.WithinDuration(t, want.History[i].Timestamp, got.History[i].Timestamp, time.Second)
	}
}

func TestSaveWritesSummaryAndParentRefOnlyWhenPresent(t *testing.T) {
	root := t.TempDir()

	s := New()
	s.AppendMessage(taskmodels.ChatMessage{Role: taskmodels.RoleUser, Content: "hi"})
	next := s.CompressAndStartNewSession(nil, "summary of the earlier conversation")

	sealedDir, err := s.Save(root)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(sealedDir, "compressed-summary.md"))
	require.NoFileExists(t, filepath.Join(sealedDir, "parent-ref.json"))

	data, err := os.ReadFile(filepath.Join(sealedDir, "compressed-summary.md"))
	require.NoError(t, err)
	require.Equal(t, "summary of the earlier conversation", string(data))

	nextDir, err := next.Save(root)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(nextDir, "parent-ref.json"))
	require.NoFileExists(t, filepath.Join(nextDir, "compressed-summary.md"))
}

func TestListSavedReturnsEverySavedSession(t *testing.T) {
	root := t.TempDir()

	first := New()
	_, err := first.Save(root)
	require.NoError(t, err)

	second := New()
	_, err = second.Save(root)
	require.NoError(t, err)

	dirs, err := ListSaved(root)
	require.NoError(t, err)
	require.Len(t, dirs, 2)
}

func TestListSavedOnMissingRootIsEmptyNotError(t *testing.T) {
	dirs, err := ListSaved(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Empty(t, dirs)
}
