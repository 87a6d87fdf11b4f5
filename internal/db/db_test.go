package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbmerge/internal/merger"
)

type testHelper struct {
	db  *ReportDB
	dir string
}

func setupTest(t *testing.T) *testHelper {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	cfg := Config{
		Path:       dbPath,
		FileMode:   0666,
		Serializer: &GobSerializer{},
	}

	db, err := NewReportDB(cfg)
	require.NoError(t, err)
	require.NotNil(t, db)

	t.Cleanup(func() {
		db.Close()
	})

	return &testHelper{
		db:  db,
		dir: dir,
	}
}

func createTestReport(startedAt time.Time) *merger.Report {
	r := &merger.Report{
		RunID:         uuid.New().String(),
		SourceID:      "aaaa",
		DestinationID: "bbbb",
		StartedAt:     startedAt,
		FinishedAt:    startedAt.Add(time.Second),
		Files: []merger.FileReport{{
			Destination: "movie.mkv",
			Sources:     []string{"Movie.mkv"},
			Missing:     3,
		}},
		Ambiguous:       []int64{1024},
		RecheckRequired: true,
	}
	r.Attempted = 3
	r.Restored = 2
	r.DigestMismatch = 1
	return r
}

func TestReportDB_SaveReport(t *testing.T) {
	h := setupTest(t)

	tests := []struct {
		name        string
		input       *merger.Report
		shouldError bool
	}{
		{
			name:        "Valid report",
			input:       createTestReport(time.Now()),
			shouldError: false,
		},
		{
			name:        "Nil report",
			input:       nil,
			shouldError: true,
		},
		{
			name:        "Report without run id",
			input:       &merger.Report{},
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.db.SaveReport(tt.input)
			if tt.shouldError {
				assert.ErrorIs(t, err, ErrNilReport)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReportDB_GetReport(t *testing.T) {
	h := setupTest(t)

	stored := createTestReport(time.Now())
	require.NoError(t, h.db.SaveReport(stored))

	got, err := h.db.GetReport(stored.RunID)
	require.NoError(t, err)
	assert.Equal(t, stored.SourceID, got.SourceID)
	assert.Equal(t, stored.Counts, got.Counts)
	assert.Equal(t, stored.Files, got.Files)
	assert.Equal(t, stored.Ambiguous, got.Ambiguous)
	assert.True(t, got.RecheckRequired)
	assert.True(t, stored.StartedAt.Equal(got.StartedAt))

	_, err = h.db.GetReport("missing")
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestReportDB_ListReports(t *testing.T) {
	h := setupTest(t)

	base := time.Now()
	var ids []string
	for i := 0; i < 3; i++ {
		r := createTestReport(base.Add(time.Duration(i) * time.Minute))
		ids = append(ids, r.RunID)
		require.NoError(t, h.db.SaveReport(r))
	}

	all, err := h.db.ListReports(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].RunID)
	assert.Equal(t, ids[0], all[2].RunID)

	limited, err := h.db.ListReports(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestReportDB_DeleteReport(t *testing.T) {
	h := setupTest(t)

	r := createTestReport(time.Now())
	require.NoError(t, h.db.SaveReport(r))
	require.NoError(t, h.db.DeleteReport(r.RunID))

	_, err := h.db.GetReport(r.RunID)
	assert.ErrorIs(t, err, ErrReportNotFound)

	assert.NoError(t, h.db.DeleteReport("never-stored"))
}

func TestReportDB_Reopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")

	first, err := NewReportDB(Config{Path: path})
	require.NoError(t, err)
	r := createTestReport(time.Now())
	require.NoError(t, first.SaveReport(r))
	require.NoError(t, first.Close())

	second, err := NewReportDB(Config{Path: path})
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetReport(r.RunID)
	require.NoError(t, err)
	assert.Equal(t, r.RunID, got.RunID)
}

var _ merger.ReportStore = (*ReportDB)(nil)
var _ ReportStorage = (*ReportDB)(nil)
