package db

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover.db")

	var out bytes.Buffer
	require.NoError(t, RunMigrateCommand([]string{"up"}, path, nil, &out))
	assert.Contains(t, out.String(), "Current version: 2")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"status"}, path, nil, &out))
	assert.Contains(t, out.String(), "up to date")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"down"}, path, nil, &out))
	assert.Contains(t, out.String(), "Current version: 1")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"status"}, path, nil, &out))
	assert.Contains(t, out.String(), "1 migration(s) pending")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"version", "2"}, path, nil, &out))
	assert.Contains(t, out.String(), "Migrated to version 2")
}

func TestRunMigrateCommand_Force(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover.db")
	var out bytes.Buffer
	require.NoError(t, RunMigrateCommand([]string{"up"}, path, nil, &out))

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"force", "1"}, path, strings.NewReader("n\n"), &out))
	assert.Contains(t, out.String(), "Aborted")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"force", "1"}, path, strings.NewReader("y\n"), &out))
	assert.Contains(t, out.String(), "forced to 1")
}

func TestRunMigrateCommand_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover.db")
	var out bytes.Buffer

	err := RunMigrateCommand(nil, path, nil, &out)
	assert.True(t, errors.Is(err, ErrUnknownMigrateAction))

	err = RunMigrateCommand([]string{"sideways"}, path, nil, &out)
	assert.True(t, errors.Is(err, ErrUnknownMigrateAction))

	assert.Error(t, RunMigrateCommand([]string{"version"}, path, nil, &out))
	assert.Error(t, RunMigrateCommand([]string{"version", "x"}, path, nil, &out))
	assert.Error(t, RunMigrateCommand([]string{"force"}, path, nil, &out))

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"help"}, path, nil, &out))
	assert.Contains(t, out.String(), "Usage: rover migrate")
}
