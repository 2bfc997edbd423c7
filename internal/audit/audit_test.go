package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/pterokeys/internal/notify"
	"github.com/systmms/pterokeys/pkg/rotation"
)

type failingSink struct{ err error }

func (s failingSink) Append(context.Context, Entry) error { return s.err }

func (s failingSink) List(context.Context, Filter) ([]Entry, error) { return nil, s.err }

type recordingNotifier struct{ events []notify.Event }

func (n *recordingNotifier) Send(event notify.Event) { n.events = append(n.events, event) }

func TestFileSink_AppendAndList(t *testing.T) {
	t.Parallel()

	sink := NewFileSink(filepath.Join(t.TempDir(), "audit"))
	ctx := context.Background()
	base := time.Date(2025, 12, 29, 9, 0, 0, 0, time.UTC)

	for i, action := range []string{"USER_API_KEY_REGENERATED", "USER_LOGIN", "USER_API_KEY_REGENERATED"} {
		require.NoError(t, sink.Append(ctx, Entry{
			ID:        uuid.NewString(),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Action:    action,
			ActorID:   int64(i + 1),
		}))
	}

	all, err := sink.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].ActorID, "newest first")
	assert.Equal(t, int64(1), all[2].ActorID)

	regenerated, err := sink.List(ctx, Filter{Action: "user_api_key_regenerated"})
	require.NoError(t, err)
	assert.Len(t, regenerated, 2)

	limited, err := sink.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, int64(3), limited[0].ActorID)

	window, err := sink.List(ctx, Filter{Since: base.Add(30 * time.Minute), Until: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "USER_LOGIN", window[0].Action)

	byActor, err := sink.List(ctx, Filter{ActorID: 1})
	require.NoError(t, err)
	assert.Len(t, byActor, 1)
}

func TestFileSink_ListMissingDir(t *testing.T) {
	t.Parallel()

	entries, err := NewFileSink(filepath.Join(t.TempDir(), "nope")).List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileSink_SkipsInvalidFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))

	sink := NewFileSink(dir)
	require.NoError(t, sink.Append(context.Background(), Entry{ID: "a", Timestamp: time.Now()}))

	entries, err := sink.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ID)
}

func TestFileSink_FilesArePrivate(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "audit")
	sink := NewFileSink(dir)
	require.NoError(t, sink.Append(context.Background(), Entry{ID: "a/b", Timestamp: time.Now()}))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Name(), "a-b")

	info, err := files[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileSink_Prune(t *testing.T) {
	t.Parallel()

	sink := NewFileSink(t.TempDir())
	ctx := context.Background()
	require.NoError(t, sink.Append(ctx, Entry{ID: "old", Timestamp: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, sink.Append(ctx, Entry{ID: "new", Timestamp: time.Now()}))

	removed, err := sink.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err := sink.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].ID)
}

func TestDefaultDir(t *testing.T) {
	t.Setenv("PTEROKEYS_AUDIT_DIR", "/tmp/custom-audit")
	assert.Equal(t, "/tmp/custom-audit", DefaultDir())

	t.Setenv("PTEROKEYS_AUDIT_DIR", "")
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "pterokeys", "audit"), DefaultDir())
}

func TestLogger_LogAction(t *testing.T) {
	t.Parallel()

	sink := NewFileSink(t.TempDir())
	notifier := &recordingNotifier{}
	logger := NewLogger(sink, notifier)
	fixed := time.Date(2025, 12, 29, 9, 34, 33, 0, time.UTC)
	logger.now = func() time.Time { return fixed }

	err := logger.LogAction(context.Background(),
		rotation.Operator{ID: 1, Email: "admin@example.com"},
		rotation.ActionUserAPIKeyRegenerated,
		map[string]any{"user_id": int64(42), "user_email": "player@example.com"},
	)
	require.NoError(t, err)

	entries, err := logger.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]

	_, err = uuid.Parse(entry.ID)
	assert.NoError(t, err)
	assert.Equal(t, "USER_API_KEY_REGENERATED", entry.Action)
	assert.Equal(t, int64(1), entry.ActorID)
	assert.Equal(t, "admin@example.com", entry.ActorEmail)
	assert.True(t, fixed.Equal(entry.Timestamp))
	assert.Equal(t, "player@example.com", entry.Details["user_email"])

	require.Len(t, notifier.events, 1)
	assert.Equal(t, entry.ID, notifier.events[0].ID)
	assert.Equal(t, entry.Action, notifier.events[0].Action)
}

func TestLogger_SinkFailureSkipsNotification(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	logger := NewLogger(failingSink{err: errors.New("disk full")}, notifier)

	err := logger.LogAction(context.Background(), rotation.Operator{ID: 1}, rotation.ActionUserAPIKeyRegenerated, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, notifier.events)
}

func TestLogger_NilNotifier(t *testing.T) {
	t.Parallel()

	logger := NewLogger(NewFileSink(t.TempDir()), nil)
	assert.NoError(t, logger.LogAction(context.Background(), rotation.Operator{ID: 1}, rotation.ActionUserAPIKeyRegenerated, nil))
}
