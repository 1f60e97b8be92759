package database

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleformeter/scaleformeter/internal/config"
	"github.com/scaleformeter/scaleformeter/internal/model"
)

func openTemp(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func TestOpenSqlite_File(t *testing.T) {
	db, err := OpenSqlite(openTemp(t))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", db.Name())
}

func TestSetup_MigratesAndSeedsOnce(t *testing.T) {
	db, err := OpenSqlite(openTemp(t))
	require.NoError(t, err)

	require.NoError(t, Setup(db, "scaleformeter"))
	require.NoError(t, Setup(db, "scaleformeter"))

	for _, m := range model.DatabaseModels {
		assert.True(t, db.Migrator().HasTable(m))
	}

	var infos []model.ServiceInfo
	require.NoError(t, db.Find(&infos).Error)
	require.Len(t, infos, 1)
	assert.Equal(t, "scaleformeter", infos[0].ResourceName)
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	db, err := OpenSqlite(openTemp(t))
	require.NoError(t, err)
	require.NoError(t, Setup(db, "scaleformeter"))

	dump := filepath.Join(t.TempDir(), "dump.db")
	require.NoError(t, os.WriteFile(dump, []byte("stale"), 0644))

	_, err = DumpMemoryDBToDisk(db, dump)
	require.NoError(t, err)

	restored, err := OpenSqlite(dump)
	require.NoError(t, err)
	var count int64
	require.NoError(t, restored.Model(&model.ServiceInfo{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	db, err := OpenSqlite(openTemp(t))
	require.NoError(t, err)

	_, err = DumpMemoryDBToDisk(db, "")
	assert.Error(t, err)
}

func TestManager_FallsBackToSqlite(t *testing.T) {
	m := NewManager(zerolog.New(io.Discard))

	err := m.Connect(config.DBConfig{Host: "127.0.0.1", Port: "1", Username: "x", Password: "x", Database: "x"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	assert.True(t, m.IsValid)
	assert.True(t, m.ShouldSaveLocal)
	assert.Equal(t, "sqlite", m.DB.Name())
	require.NoError(t, m.Setup("scaleformeter"))
}

func TestManager_CloseWithoutConnect(t *testing.T) {
	assert.NoError(t, NewManager(zerolog.Nop()).Close())
}
