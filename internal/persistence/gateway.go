// Package persistence is the transactional façade over the relational
// store: typed insert/flush/commit operations plus resumable windowed
// reads.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/adtrails/adtrails/internal/model"
	"github.com/adtrails/adtrails/internal/svcerrors"
)

// Gateway owns the pooled connection to the relational store.
type Gateway struct {
	db *sql.DB
}

// Open opens a postgres connection pool and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*Gateway, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: ping: %w", err)
	}
	return &Gateway{db: db}, nil
}

// New wraps an already-open *sql.DB, used by tests against go-sqlmock.
func New(db *sql.DB) *Gateway { return &Gateway{db: db} }

// Close closes the underlying connection pool.
func (g *Gateway) Close() error { return g.db.Close() }

// DB exposes the underlying pool for components (Graph Loader, Path
// Engine) that only need read-only windowed scans.
func (g *Gateway) DB() *sql.DB { return g.db }

// UnitOfWork is one transaction: insert/flush/commit operations against
// a single Enumeration Run share a UnitOfWork so a persistence failure
// rolls the whole unit back atomically (spec's transactional façade).
type UnitOfWork struct {
	tx *sql.Tx
}

// Begin starts a new unit of work.
func (g *Gateway) Begin(ctx context.Context) (*UnitOfWork, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("persistence: begin: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

// Commit commits the unit of work; a failure is returned as a
// svcerrors.KindPersistence error.
func (u *UnitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return svcerrors.Persistence("commit", err)
	}
	return nil
}

// Rollback aborts the unit of work; safe to call after Commit (no-op).
func (u *UnitOfWork) Rollback() error {
	err := u.tx.Rollback()
	if err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("persistence: rollback: %w", err)
	}
	return nil
}

// InsertDomainInfo stores the run's single Domain Info record and
// returns the server-assigned ad_id, establishing the run's identity.
func (u *UnitOfWork) InsertDomainInfo(ctx context.Context, info model.DomainInfo, startedAt time.Time) (int64, error) {
	var adID int64
	err := u.tx.QueryRowContext(ctx, `
		INSERT INTO enumeration_runs (domain_name, domain_sid, dn, object_guid, state, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ad_id
	`, info.DomainName, info.ObjectSID, info.DN, info.ObjectGUID, model.RunStarted, startedAt).Scan(&adID)
	if err != nil {
		return 0, fmt.Errorf("persistence: insert domain info: %w", err)
	}
	return adID, nil
}

// FinishRun transitions a run to FINISHED or ABORTED and stamps ended_at.
func (u *UnitOfWork) FinishRun(ctx context.Context, adID int64, state model.RunState, endedAt time.Time) error {
	_, err := u.tx.ExecContext(ctx, `
		UPDATE enumeration_runs SET state = $2, ended_at = $3 WHERE ad_id = $1
	`, adID, state, endedAt)
	if err != nil {
		return fmt.Errorf("persistence: finish run: %w", err)
	}
	return nil
}

// InsertUser stores a user and its derived SPN rows in the same unit of
// work, mirroring the output-routing rule for USER messages.
func (u *UnitOfWork) InsertUser(ctx context.Context, rec model.User, spns []model.SPNRecord) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO users (ad_id, dn, object_guid, object_sid, sam_account_name, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ad_id, object_guid) DO UPDATE SET
			dn = EXCLUDED.dn, object_sid = EXCLUDED.object_sid,
			sam_account_name = EXCLUDED.sam_account_name, enabled = EXCLUDED.enabled
	`, rec.ADID, rec.DN, rec.ObjectGUID, rec.ObjectSID, rec.SAMAccount, rec.Enabled)
	if err != nil {
		return fmt.Errorf("persistence: insert user: %w", err)
	}
	for _, spn := range spns {
		if err := u.insertSPNRow(ctx, rec.ADID, "user", rec.ObjectSID, "", "", spn); err != nil {
			return err
		}
	}
	return nil
}

// InsertMachine stores a machine; callers refresh it to learn its
// server-assigned SID before storing its delegations.
func (u *UnitOfWork) InsertMachine(ctx context.Context, rec model.Machine, spns []model.SPNRecord) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO machines (ad_id, dn, object_guid, object_sid, sam_account_name, operating_system)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ad_id, object_guid) DO UPDATE SET
			dn = EXCLUDED.dn, object_sid = EXCLUDED.object_sid,
			sam_account_name = EXCLUDED.sam_account_name, operating_system = EXCLUDED.operating_system
	`, rec.ADID, rec.DN, rec.ObjectGUID, rec.ObjectSID, rec.SAMAccount, rec.OS)
	if err != nil {
		return fmt.Errorf("persistence: insert machine: %w", err)
	}
	for _, spn := range spns {
		if err := u.insertSPNRow(ctx, rec.ADID, "machine", rec.ObjectSID, "", "", spn); err != nil {
			return err
		}
	}
	return nil
}

// RefreshMachineSID reloads the server-assigned SID for a machine by guid,
// for use between storing a machine and storing its delegations.
func (u *UnitOfWork) RefreshMachineSID(ctx context.Context, adID int64, guid string) (string, error) {
	var sid string
	err := u.tx.QueryRowContext(ctx, `
		SELECT object_sid FROM machines WHERE ad_id = $1 AND object_guid = $2
	`, adID, guid).Scan(&sid)
	if err != nil {
		return "", fmt.Errorf("persistence: refresh machine sid: %w", err)
	}
	return sid, nil
}

// InsertDelegation stores one constrained-delegation target keyed by
// the owning machine's refreshed SID.
func (u *UnitOfWork) InsertDelegation(ctx context.Context, d model.Delegation) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO spn_services (ad_id, source, owner_sid, class, host, port, name)
		VALUES ($1, 'delegation', $2, 'delegation', $3, NULL, NULL)
	`, d.ADID, d.SID, d.Target)
	if err != nil {
		return fmt.Errorf("persistence: insert delegation: %w", err)
	}
	return nil
}

// InsertGroup stores a group row.
func (u *UnitOfWork) InsertGroup(ctx context.Context, rec model.Group) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO groups (ad_id, dn, object_guid, object_sid, sam_account_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ad_id, object_guid) DO UPDATE SET
			dn = EXCLUDED.dn, object_sid = EXCLUDED.object_sid, sam_account_name = EXCLUDED.sam_account_name
	`, rec.ADID, rec.DN, rec.ObjectGUID, rec.ObjectSID, rec.SAMAccount)
	if err != nil {
		return fmt.Errorf("persistence: insert group: %w", err)
	}
	return nil
}

// InsertOU stores an OU row and its parsed GPLink rows in one unit of
// work, per the output-routing rule for OU messages.
func (u *UnitOfWork) InsertOU(ctx context.Context, rec model.OU) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO ous (ad_id, dn, object_guid, gplink_raw)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ad_id, object_guid) DO UPDATE SET
			dn = EXCLUDED.dn, gplink_raw = EXCLUDED.gplink_raw
	`, rec.ADID, rec.DN, rec.ObjectGUID, rec.GPLinkRaw)
	if err != nil {
		return fmt.Errorf("persistence: insert ou: %w", err)
	}
	links := model.ParseGPLink(rec.ADID, rec.ObjectGUID, rec.GPLinkRaw)
	for _, l := range links {
		if err := u.insertGPLink(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (u *UnitOfWork) insertGPLink(ctx context.Context, l model.GPLink) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO gplinks (ad_id, ou_guid, gpo_dn, link_order) VALUES ($1, $2, $3, $4)
	`, l.ADID, l.OUGUID, l.GPODN, l.Order)
	if err != nil {
		return fmt.Errorf("persistence: insert gplink: %w", err)
	}
	return nil
}

// InsertGPO stores a GPO row.
func (u *UnitOfWork) InsertGPO(ctx context.Context, rec model.GPO) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO gpos (ad_id, dn, object_guid, display_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ad_id, object_guid) DO UPDATE SET
			dn = EXCLUDED.dn, display_name = EXCLUDED.display_name
	`, rec.ADID, rec.DN, rec.ObjectGUID, rec.DisplayNm)
	if err != nil {
		return fmt.Errorf("persistence: insert gpo: %w", err)
	}
	return nil
}

// InsertTrust stores a trust row.
func (u *UnitOfWork) InsertTrust(ctx context.Context, rec model.Trust) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO trusts (ad_id, dn, object_guid, target_domain_name, target_domain_sid, trust_direction, trust_type, trust_attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ad_id, object_guid) DO UPDATE SET
			dn = EXCLUDED.dn, target_domain_name = EXCLUDED.target_domain_name,
			target_domain_sid = EXCLUDED.target_domain_sid,
			trust_direction = EXCLUDED.trust_direction, trust_type = EXCLUDED.trust_type,
			trust_attributes = EXCLUDED.trust_attributes
	`, rec.ADID, rec.DN, rec.ObjectGUID, rec.TargetDomainName, rec.TargetDomainSID,
		rec.TrustDirection, rec.TrustType, rec.TrustAttributes)
	if err != nil {
		return fmt.Errorf("persistence: insert trust: %w", err)
	}
	return nil
}

func (u *UnitOfWork) insertSPNRow(ctx context.Context, adID int64, source, ownerSID, dn, guid string, spn model.SPNRecord) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO spn_services (ad_id, source, owner_sid, dn, object_guid, class, host, port, name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, adID, source, nullIfEmpty(ownerSID), nullIfEmpty(dn), nullIfEmpty(guid),
		spn.Class, spn.Host, nullIfEmpty(spn.Port), nullIfEmpty(spn.Name))
	if err != nil {
		return fmt.Errorf("persistence: insert spn row: %w", err)
	}
	return nil
}

// InsertSPNService stores a standalone SPNSERVICE category record,
// parsing its raw SPN string the same way embedded user/machine SPNs
// are parsed.
func (u *UnitOfWork) InsertSPNService(ctx context.Context, rec model.SPNService) error {
	parsed, ok := model.ParseSPN(rec.SPN, rec.ObjectSID)
	if !ok {
		return fmt.Errorf("persistence: malformed spn service %q", rec.SPN)
	}
	return u.insertSPNRow(ctx, rec.ADID, "spnservice", rec.ObjectSID, rec.DN, rec.ObjectGUID, parsed)
}

// InsertSecurityDescriptorBinding inserts one SD binding row during
// bulk-load; the (ad_id, guid) uniqueness invariant is enforced by the
// column constraint and a conflict is treated as already-present.
func (u *UnitOfWork) InsertSecurityDescriptorBinding(ctx context.Context, b model.SecurityDescriptorBinding) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO security_descriptor_bindings (ad_id, guid, sid, object_type, sd_bytes_b64, sd_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ad_id, guid) DO NOTHING
	`, b.ADID, b.GUID, b.SID, b.ObjectType, string(b.SDBytes), b.SDHash)
	if err != nil {
		return fmt.Errorf("persistence: insert sd binding: %w", err)
	}
	return nil
}

// InsertTokenGroupEntry inserts one token-group membership row during
// bulk-load.
func (u *UnitOfWork) InsertTokenGroupEntry(ctx context.Context, e model.TokenGroupEntry) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO token_group_entries (ad_id, guid, sid, object_type, member_sid)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ADID, e.GUID, e.SID, e.ObjectType, e.MemberSID)
	if err != nil {
		return fmt.Errorf("persistence: insert token group entry: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
