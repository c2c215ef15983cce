package graphpath

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/adtrails/adtrails/internal/persistence"
	"github.com/adtrails/adtrails/pkg/logger"
)

func expectGraphResolution(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT ad_id FROM edges").
		WillReturnRows(sqlmock.NewRows([]string{"ad_id"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT domain_name, domain_sid FROM enumeration_runs").
		WillReturnRows(sqlmock.NewRows([]string{"domain_name", "domain_sid"}).
			AddRow("corp.example.com", "S-1-5-21-1-2-3"))
	mock.ExpectQuery("SELECT id FROM edge_lookups").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
}

func TestLoaderBuildsGraphAndCachesEdgesCSV(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	expectGraphResolution(mock)
	mock.ExpectQuery("SELECT e.src_id, e.dst_id").
		WillReturnRows(sqlmock.NewRows([]string{"src_id", "dst_id"}).
			AddRow(int64(1), int64(2)).
			AddRow(int64(2), int64(3)))

	workDir := t.TempDir()
	l := NewLoader(persistence.New(db), LoaderConfig{WorkDir: workDir}, logger.NewDefault("graphpath-test"))

	loaded, err := l.Load(context.Background(), 7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ADID != 1 || loaded.DomainSID != "S-1-5-21-1-2-3" {
		t.Fatalf("unexpected loaded identity: %+v", loaded)
	}
	if path, ok := loaded.Graph.ShortestPath(1, 3); !ok || len(path) != 3 {
		t.Fatalf("expected a length-3 path, got %v %v", path, ok)
	}

	cachePath := filepath.Join(workDir, "7", "edges.csv")
	contents, err := os.ReadFile(cachePath)
	if err != nil {
		t.Fatalf("expected edges.csv to be written: %v", err)
	}
	if string(contents) != "1,2\r\n2,3\r\n" {
		t.Fatalf("unexpected edges.csv contents: %q", contents)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoaderReadsExistingCacheWithoutStreamingEdges(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.MatchExpectationsInOrder(false)
	expectGraphResolution(mock)

	workDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(workDir, "7"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "7", "edges.csv"), []byte("1,2\r\n2,3\r\n"), 0o644); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	l := NewLoader(persistence.New(db), LoaderConfig{WorkDir: workDir}, logger.NewDefault("graphpath-test"))
	loaded, err := l.Load(context.Background(), 7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if path, ok := loaded.Graph.ShortestPath(1, 3); !ok || len(path) != 3 {
		t.Fatalf("expected a length-3 path from the cached csv, got %v %v", path, ok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoaderWithoutWorkDirSkipsCaching(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	expectGraphResolution(mock)
	mock.ExpectQuery("SELECT e.src_id, e.dst_id").
		WillReturnRows(sqlmock.NewRows([]string{"src_id", "dst_id"}).AddRow(int64(1), int64(2)))

	l := NewLoader(persistence.New(db), LoaderConfig{}, logger.NewDefault("graphpath-test"))
	loaded, err := l.Load(context.Background(), 7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Graph.NodeCount() != 1 {
		t.Fatalf("expected one source node in the graph, got %d", loaded.Graph.NodeCount())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
