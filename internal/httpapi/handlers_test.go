package httpapi

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"

	"github.com/adtrails/adtrails/internal/model"
	"github.com/adtrails/adtrails/internal/persistence"
	"github.com/adtrails/adtrails/pkg/logger"
)

func newTestRouter(t *testing.T, mockFn func(sqlmock.Sqlmock)) *mux.Router {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	mockFn(mock)

	gw := persistence.New(db)
	h := newHandler(gw, nil, 1000, nil, nil, logger.NewDefault("test"))
	return newRouter(h)
}

func TestHandleStatusReturnsRunAndCategoryCounts(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := newTestRouter(t, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SELECT ad_id, domain_name, domain_sid, state, started_at, ended_at").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"ad_id", "domain_name", "domain_sid", "state", "started_at", "ended_at"}).
				AddRow(int64(7), "corp.example.com", "S-1-5-21-1-2-3", model.RunFinished, started, nil))
		for _, table := range []string{"trusts", "users", "machines", "groups", "ous", "gpos", "spn_services"} {
			mock.ExpectQuery("SELECT count\\(\\*\\) FROM " + table).
				WithArgs(int64(7)).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/runs/7/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleStatusUnknownRunReturns404(t *testing.T) {
	r := newTestRouter(t, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SELECT ad_id, domain_name, domain_sid, state, started_at, ended_at").
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)
	})

	req := httptest.NewRequest(http.MethodGet, "/runs/99/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlePathsRejectsNonIntegerADID(t *testing.T) {
	r := newTestRouter(t, func(mock sqlmock.Sqlmock) {})

	req := httptest.NewRequest(http.MethodGet, "/runs/not-a-number/paths", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a bad ad_id, got %d: %s", rec.Code, rec.Body.String())
	}
}
