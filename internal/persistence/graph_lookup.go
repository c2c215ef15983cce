package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adtrails/adtrails/internal/model"
)

// ADIDForGraph resolves graph_id to the owning ad_id. A graph is always
// authored by a single enumeration run, so any edge row for graphID names
// the same ad_id.
func (g *Gateway) ADIDForGraph(ctx context.Context, graphID int64) (int64, error) {
	var adID int64
	err := g.db.QueryRowContext(ctx, `
		SELECT ad_id FROM edges WHERE graph_id = $1 LIMIT 1
	`, graphID).Scan(&adID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("persistence: graph %d has no edges", graphID)
	}
	if err != nil {
		return 0, fmt.Errorf("persistence: resolve graph ad_id: %w", err)
	}
	return adID, nil
}

// DomainInfoByADID reads back the domain name and domain SID stamped on
// an EnumerationRun, used by the Graph Loader and Path Engine to resolve
// the domain-relative constants (<domain-sid>-513, etc).
func (g *Gateway) DomainInfoByADID(ctx context.Context, adID int64) (domainName, domainSID string, err error) {
	err = g.db.QueryRowContext(ctx, `
		SELECT domain_name, domain_sid FROM enumeration_runs WHERE ad_id = $1
	`, adID).Scan(&domainName, &domainSID)
	if err == sql.ErrNoRows {
		return "", "", fmt.Errorf("persistence: no enumeration run for ad_id %d", adID)
	}
	if err != nil {
		return "", "", fmt.Errorf("persistence: domain info by ad_id: %w", err)
	}
	return domainName, domainSID, nil
}

// EdgeLookupBySID resolves a SID to its Edge Lookup node id, returning
// false (not an error) when the oid is not present; the Path Engine
// turns that into its "SID not found" query error.
func (g *Gateway) EdgeLookupBySID(ctx context.Context, adID int64, sid string) (int64, bool, error) {
	var id int64
	err := g.db.QueryRowContext(ctx, `
		SELECT id FROM edge_lookups WHERE ad_id = $1 AND oid = $2
	`, adID, sid).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("persistence: edge lookup by sid: %w", err)
	}
	return id, true, nil
}

// EdgeLookupOID resolves a node id back to its (oid, object_type) pair.
func (g *Gateway) EdgeLookupOID(ctx context.Context, adID, id int64) (oid string, objectType string, err error) {
	err = g.db.QueryRowContext(ctx, `
		SELECT oid, object_type FROM edge_lookups WHERE ad_id = $1 AND id = $2
	`, adID, id).Scan(&oid, &objectType)
	if err == sql.ErrNoRows {
		return "", "", fmt.Errorf("persistence: no edge lookup row for id %d", id)
	}
	if err != nil {
		return "", "", fmt.Errorf("persistence: edge lookup oid: %w", err)
	}
	return oid, objectType, nil
}

// resolvePrincipalQueries maps an Edge Lookup's stored object_type to the
// single targeted CN query for that table, keyed by object_sid for
// User/Group/Machine/Trust and by object_guid for OU/GPO (which have no
// SID of their own).
var resolvePrincipalQueries = map[model.ObjectType]string{
	model.ObjectUser:    `SELECT sam_account_name FROM users WHERE ad_id = $1 AND object_sid = $2`,
	model.ObjectGroup:   `SELECT sam_account_name FROM groups WHERE ad_id = $1 AND object_sid = $2`,
	model.ObjectMachine: `SELECT sam_account_name FROM machines WHERE ad_id = $1 AND object_sid = $2`,
	model.ObjectTrust:   `SELECT target_domain_name FROM trusts WHERE ad_id = $1 AND target_domain_sid = $2`,
	model.ObjectOU:      `SELECT dn FROM ous WHERE ad_id = $1 AND object_guid = $2`,
	model.ObjectGPO:     `SELECT display_name FROM gpos WHERE ad_id = $1 AND object_guid = $2`,
}

// ResolvePrincipalByType looks up the display CN for oid with the single
// query its object type names, so OU and GPO node names resolve (they
// carry no SID, unlike User/Group/Machine/Trust) instead of being missed
// by a fixed-order probe across tables that don't apply to them.
func (g *Gateway) ResolvePrincipalByType(ctx context.Context, adID int64, objectType model.ObjectType, oid string) (cn string, found bool, err error) {
	query, ok := resolvePrincipalQueries[objectType]
	if !ok {
		return "", false, fmt.Errorf("persistence: unknown object type %q for principal resolution", objectType)
	}
	var name string
	scanErr := g.db.QueryRowContext(ctx, query, adID, oid).Scan(&name)
	if scanErr == sql.ErrNoRows {
		return "", false, nil
	}
	if scanErr != nil {
		return "", false, fmt.Errorf("persistence: resolve principal by type: %w", scanErr)
	}
	return name, true, nil
}

// RunByADID reads back one EnumerationRun row, used by the Query HTTP
// API's run-status endpoint.
func (g *Gateway) RunByADID(ctx context.Context, adID int64) (model.EnumerationRun, error) {
	var run model.EnumerationRun
	var endedAt sql.NullTime
	err := g.db.QueryRowContext(ctx, `
		SELECT ad_id, domain_name, domain_sid, state, started_at, ended_at
		FROM enumeration_runs WHERE ad_id = $1
	`, adID).Scan(&run.ADID, &run.DomainName, &run.DomainSID, &run.State, &run.StartedAt, &endedAt)
	if err == sql.ErrNoRows {
		return model.EnumerationRun{}, fmt.Errorf("persistence: no enumeration run for ad_id %d", adID)
	}
	if err != nil {
		return model.EnumerationRun{}, fmt.Errorf("persistence: run by ad_id: %w", err)
	}
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	return run, nil
}

// CategoryCounts returns the stored row count of each of the seven
// per-run record tables (every Phase 1 category except adinfo), keyed by
// table name, used by the run-status endpoint to report progress.
func (g *Gateway) CategoryCounts(ctx context.Context, adID int64) (map[string]int64, error) {
	tables := []string{"trusts", "users", "machines", "groups", "ous", "gpos", "spn_services"}
	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		var n int64
		err := g.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE ad_id = $1`, table), adID).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("persistence: count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// FinishedRunADIDs lists the ad_id of every completed enumeration run, the
// set the graph cache refresher iterates to keep edges.csv current.
func (g *Gateway) FinishedRunADIDs(ctx context.Context) ([]int64, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT ad_id FROM enumeration_runs WHERE state = $1
	`, model.RunFinished)
	if err != nil {
		return nil, fmt.Errorf("persistence: finished run ad_ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("persistence: scan ad_id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EdgeLabelsBetween returns every distinct label stored for (src, dst)
// within graphID, preserving the multi-edge case a result path must
// render as one edge per label.
func (g *Gateway) EdgeLabelsBetween(ctx context.Context, graphID, src, dst int64) ([]string, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT label FROM edges WHERE graph_id = $1 AND src_id = $2 AND dst_id = $3
	`, graphID, src, dst)
	if err != nil {
		return nil, fmt.Errorf("persistence: edge labels: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("persistence: scan edge label: %w", err)
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}
