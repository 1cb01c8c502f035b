//go:build e2e

package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/art-assistant/internal/models"
	"github.com/fgeck/art-assistant/internal/services/activity"
	"github.com/fgeck/art-assistant/internal/services/telegram"
	"github.com/fgeck/art-assistant/internal/services/watchdog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchdogRoundTrip_E2E(t *testing.T) {
	root := t.TempDir()
	cfg := loadConfig(t, root, "", "")

	file := filepath.Join(root, "sketches", "study.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("first draft"), 0o644))

	act := activity.New(testLogger(), cfg.Activity.LogPath)
	wd, err := watchdog.New(testLogger(), *cfg, act)
	require.NoError(t, err)

	ctx := context.Background()

	added, err := wd.Add(file)
	require.NoError(t, err)
	assert.True(t, added)

	backup, err := wd.Backup(ctx)
	require.NoError(t, err)
	assert.Len(t, backup.Copied, 1)

	verify, err := wd.Verify("")
	require.NoError(t, err)
	assert.True(t, verify.OK())

	require.NoError(t, os.WriteFile(file, []byte("ruined"), 0o644))

	rollback, err := wd.Rollback(ctx)
	require.NoError(t, err)
	assert.False(t, rollback.NoSnapshot)
	assert.Equal(t, backup.Snapshot.Name, rollback.Source.Name)
	require.NotNil(t, rollback.Safety)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "first draft", string(data))

	snapshots, err := wd.Snapshots()
	require.NoError(t, err)
	assert.Len(t, snapshots, 2)

	chain, err := act.Verify()
	require.NoError(t, err)
	assert.True(t, chain.Valid)
	assert.Equal(t, 3, chain.Entries)
}

func TestTelegramSendBackupNotification_E2E(t *testing.T) {
	botToken := os.Getenv("TEST_TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		t.Skip("TEST_TELEGRAM_BOT_TOKEN not set")
	}
	chatID := os.Getenv("TEST_TELEGRAM_CHAT_ID")
	if chatID == "" {
		t.Skip("TEST_TELEGRAM_CHAT_ID not set")
	}

	svc := telegram.New(testLogger())

	result, err := svc.SendNotification(context.Background(), models.TelegramConfig{
		BotToken: botToken,
		ChatID:   chatID,
	}, models.TelegramMessage{
		Success:   true,
		Action:    "backup",
		Host:      "e2e-test-host",
		RootDir:   "/tmp/art",
		StartTime: time.Now().Add(-time.Second),
		Duration:  time.Second,
		Snapshot:  "backup_20240101_120000",
		Bytes:     2048,
		Copied:    2,
	})

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.NoError(t, result.Error)
}
