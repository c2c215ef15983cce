package graphpath

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/adtrails/adtrails/internal/persistence"
)

func TestResolverResolvesOUByTypeNotByBlindProbe(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT oid, object_type FROM edge_lookups").
		WillReturnRows(sqlmock.NewRows([]string{"oid", "object_type"}).AddRow("guid-ou-1", "OU"))
	mock.ExpectQuery("SELECT dn FROM ous").
		WillReturnRows(sqlmock.NewRows([]string{"dn"}).AddRow("OU=Finance,DC=corp,DC=example,DC=com"))

	r := NewResolver(persistence.New(db), 7)
	p, err := r.Resolve(context.Background(), 42)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Type != "OU" {
		t.Fatalf("expected OU type, got %q", p.Type)
	}
	if p.Name != "OU=Finance,DC=corp,DC=example,DC=com" {
		t.Fatalf("expected OU dn as name, got %q", p.Name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResolverResolvesGPOByTypeNotByBlindProbe(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT oid, object_type FROM edge_lookups").
		WillReturnRows(sqlmock.NewRows([]string{"oid", "object_type"}).AddRow("guid-gpo-1", "GPO"))
	mock.ExpectQuery("SELECT display_name FROM gpos").
		WillReturnRows(sqlmock.NewRows([]string{"display_name"}).AddRow("Default Domain Policy"))

	r := NewResolver(persistence.New(db), 7)
	p, err := r.Resolve(context.Background(), 99)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Type != "GPO" {
		t.Fatalf("expected GPO type, got %q", p.Type)
	}
	if p.Name != "Default Domain Policy" {
		t.Fatalf("expected gpo display name, got %q", p.Name)
	}
}

func TestResolverCachesByNodeID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT oid, object_type FROM edge_lookups").
		WillReturnRows(sqlmock.NewRows([]string{"oid", "object_type"}).AddRow("S-1-5-21-1-2-3-1001", "User"))
	mock.ExpectQuery("SELECT sam_account_name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"sam_account_name"}).AddRow("alice"))

	r := NewResolver(persistence.New(db), 7)
	if _, err := r.Resolve(context.Background(), 1); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// Second call for the same id must hit the cache, not issue new queries.
	p, err := r.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("resolve (cached): %v", err)
	}
	if p.Name != "alice" {
		t.Fatalf("expected cached alice, got %q", p.Name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
