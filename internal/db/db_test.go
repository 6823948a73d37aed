package db

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rover.control/internal/dispatch"
	"github.com/banshee-data/rover.control/internal/motion"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "rover.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func record(source string, cmd motion.MotionCommand, at time.Time) dispatch.Record {
	return dispatch.Record{ID: uuid.New(), Source: source, Command: cmd, At: at}
}

func TestNewDB_AppliesMigrations(t *testing.T) {
	db := newTestDB(t)
	fsys, err := MigrationsFS()
	require.NoError(t, err)

	status, err := db.GetMigrationStatus(fsys)
	require.NoError(t, err)
	assert.Equal(t, uint(2), status.Latest)
	assert.Equal(t, uint(2), status.Current)
	assert.False(t, status.Dirty)
	assert.False(t, status.Pending)
}

func TestMigrateDownAndUp(t *testing.T) {
	db := newTestDB(t)
	fsys, err := MigrationsFS()
	require.NoError(t, err)

	require.NoError(t, db.MigrateDown(fsys))
	v, _, err := db.MigrateVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	require.NoError(t, db.MigrateUp(fsys))
	v, _, err = db.MigrateVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
}

func TestRecordAndFailDispatch(t *testing.T) {
	db := newTestDB(t)
	base := time.Unix(1700000000, 0)

	s, err := db.StartSession("http://car.local", "/dev/ttyUSB0", "test", base)
	require.NoError(t, err)

	first := record("thumbstick", motion.MotorCommand(motion.Forward, 179), base)
	second := record("car", motion.ArmCommand(motion.Forward, 200), base.Add(time.Second))
	require.NoError(t, db.RecordDispatch(s.ID, first))
	require.NoError(t, db.RecordDispatch(uuid.Nil, second))
	require.NoError(t, db.MarkDispatchFailed(second.ID, errors.New("timeout"), base.Add(2*time.Second)))

	rows, err := db.RecentDispatches("", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, second.ID.String(), rows[0].ID)
	assert.Equal(t, StatusFailed, rows[0].Status)
	assert.Equal(t, "timeout", rows[0].Error)
	assert.Empty(t, rows[0].SessionID)
	require.NotNil(t, rows[0].FailedAt)

	assert.Equal(t, "motor", rows[1].Channel)
	assert.Equal(t, "forward", rows[1].Action)
	assert.Equal(t, 179, rows[1].Speed)
	assert.Equal(t, s.ID.String(), rows[1].SessionID)
	assert.True(t, rows[1].DispatchedAt.Equal(base))

	armOnly, err := db.RecentDispatches("arm", 10)
	require.NoError(t, err)
	require.Len(t, armOnly, 1)
	assert.Equal(t, "forward", armOnly[0].Action)

	summary, err := db.DispatchSummary()
	require.NoError(t, err)
	assert.Equal(t, []ChannelSummary{
		{Channel: "arm", Sent: 0, Failed: 1},
		{Channel: "motor", Sent: 1, Failed: 0},
	}, summary)
}

func TestMarkDispatchFailed_Unknown(t *testing.T) {
	db := newTestDB(t)
	err := db.MarkDispatchFailed(uuid.New(), errors.New("x"), time.Now())
	assert.Error(t, err)
}

func TestSessions(t *testing.T) {
	db := newTestDB(t)
	base := time.Unix(1700000000, 0)

	a, err := db.StartSession("http://a", "", "v1", base)
	require.NoError(t, err)
	b, err := db.StartSession("http://b", "/dev/ttyACM0", "v2", base.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, db.EndSession(a.ID, base.Add(30*time.Second)))
	assert.Error(t, db.EndSession(uuid.New(), base))

	sessions, err := db.Sessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, b.ID, sessions[0].ID)
	assert.Nil(t, sessions[0].EndedAt)
	assert.Equal(t, a.ID, sessions[1].ID)
	require.NotNil(t, sessions[1].EndedAt)
	assert.True(t, sessions[1].EndedAt.Equal(base.Add(30*time.Second)))
}

func TestJournal_WritesInOrder(t *testing.T) {
	db := newTestDB(t)
	s, err := db.StartSession("http://car", "", "test", time.Now())
	require.NoError(t, err)

	j := NewJournal(db, s.ID)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	obs := j.Observer()
	rec := record("core", motion.MotorCommand(motion.Left, 100), time.Now())
	obs.CommandDispatched(rec)
	obs.DispatchFailed(rec, errors.New("refused"))

	j.Close()
	<-done
	cancel()

	rows, err := db.RecentDispatches("", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, StatusFailed, rows[0].Status)
	assert.Equal(t, "refused", rows[0].Error)
	assert.Zero(t, j.Dropped())

	// Entries after Close are ignored.
	obs.CommandDispatched(record("core", motion.MotorCommand(motion.Stop, 0), time.Now()))
	assert.Zero(t, j.Dropped())
}

func TestJournal_DropsWhenFull(t *testing.T) {
	db := newTestDB(t)
	j := NewJournal(db, uuid.Nil)
	obs := j.Observer()
	for i := 0; i < journalBuffer+5; i++ {
		obs.CommandDispatched(record("core", motion.MotorCommand(motion.Forward, i%256), time.Now()))
	}
	assert.Equal(t, uint64(5), j.Dropped())
}

func TestAttachAdminRoutes_Backup(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())
}
