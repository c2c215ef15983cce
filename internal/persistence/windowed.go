package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adtrails/adtrails/internal/model"
)

// PendingTarget is one object whose (ad_id, guid) has not yet been
// processed by a Phase 2 targeted job.
type PendingTarget struct {
	DN         string
	SID        string
	GUID       string
	ObjectType string
}

// pendingSDQueries maps each object type to the base SELECT used by
// PendingSDTargets, parameterized on ad_id and the keyset predicate.
var pendingSDQueries = map[string]string{
	"User":    "SELECT dn, object_sid, object_guid, 'User' FROM users WHERE ad_id = $1",
	"Machine": "SELECT dn, object_sid, object_guid, 'Machine' FROM machines WHERE ad_id = $1",
	"Group":   "SELECT dn, object_sid, object_guid, 'Group' FROM groups WHERE ad_id = $1",
	"OU":      "SELECT dn, '', object_guid, 'OU' FROM ous WHERE ad_id = $1",
	"GPO":     "SELECT dn, '', object_guid, 'GPO' FROM gpos WHERE ad_id = $1",
}

// PendingSDTargets streams objects of type objectType belonging to adID
// whose guid is not yet present in security_descriptor_bindings,
// keyset-paginated by guid with the given window size. It calls handle once
// per row and stops at the first error handle returns.
func (g *Gateway) PendingSDTargets(ctx context.Context, adID int64, objectType string, window int, handle func(PendingTarget) error) error {
	base, ok := pendingSDQueries[objectType]
	if !ok {
		return fmt.Errorf("persistence: unknown pending-sd object type %q", objectType)
	}
	query := fmt.Sprintf(`
		SELECT x.dn, x.sid, x.guid, x.kind FROM (
			%s
		) AS x(dn, sid, guid, kind)
		WHERE NOT EXISTS (
			SELECT 1 FROM security_descriptor_bindings s
			WHERE s.ad_id = $1 AND s.guid = x.guid
		)
		ORDER BY x.guid
	`, base)
	return g.windowedKeysetScan(ctx, query, []interface{}{adID}, window, handle)
}

var pendingMembershipQueries = map[string]string{
	"User":    "SELECT dn, object_sid, object_guid, 'User' FROM users WHERE ad_id = $1",
	"Machine": "SELECT dn, object_sid, object_guid, 'Machine' FROM machines WHERE ad_id = $1",
	"Group":   "SELECT dn, object_sid, object_guid, 'Group' FROM groups WHERE ad_id = $1",
}

// PendingMembershipTargets streams objects of type objectType belonging
// to adID whose guid has no token_group_entries row yet, analogous to
// PendingSDTargets.
func (g *Gateway) PendingMembershipTargets(ctx context.Context, adID int64, objectType string, window int, handle func(PendingTarget) error) error {
	base, ok := pendingMembershipQueries[objectType]
	if !ok {
		return fmt.Errorf("persistence: unknown pending-membership object type %q", objectType)
	}
	query := fmt.Sprintf(`
		SELECT x.dn, x.sid, x.guid, x.kind FROM (
			%s
		) AS x(dn, sid, guid, kind)
		WHERE NOT EXISTS (
			SELECT 1 FROM token_group_entries t
			WHERE t.ad_id = $1 AND t.guid = x.guid
		)
		ORDER BY x.guid
	`, base)
	return g.windowedKeysetScan(ctx, query, []interface{}{adID}, window, handle)
}

// windowedKeysetScan implements the windowed_query operation: it fetches
// base (which must be ORDER BY the object's guid already) in pages of
// window rows using keyset pagination on guid, never OFFSET, so it never
// loads the full result set into memory and is resumable by restarting
// from the last seen guid.
func (g *Gateway) windowedKeysetScan(ctx context.Context, base string, args []interface{}, window int, handle func(PendingTarget) error) error {
	lastGUID := ""
	for {
		pagedArgs := append(append([]interface{}{}, args...), lastGUID, window)
		keyIdx := len(args) + 1
		limitIdx := len(args) + 2
		query := fmt.Sprintf(`
			SELECT dn, sid, guid, kind FROM (%s) AS page
			WHERE page.guid > $%d
			ORDER BY page.guid
			LIMIT $%d
		`, base, keyIdx, limitIdx)

		rows, err := g.db.QueryContext(ctx, query, pagedArgs...)
		if err != nil {
			return fmt.Errorf("persistence: windowed query: %w", err)
		}

		n := 0
		var newLast string
		for rows.Next() {
			var t PendingTarget
			if err := rows.Scan(&t.DN, &t.SID, &t.GUID, &t.ObjectType); err != nil {
				rows.Close()
				return fmt.Errorf("persistence: windowed scan row: %w", err)
			}
			newLast = t.GUID
			n++
			if err := handle(t); err != nil {
				rows.Close()
				return err
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("persistence: windowed rows: %w", err)
		}
		rows.Close()

		if n < window {
			return nil
		}
		lastGUID = newLast
	}
}

// EdgeLookupID resolves the stable integer node id for (adID, oid),
// inserting a new Edge Lookup row if one does not already exist so ids
// stay stable across a graph build.
func (g *Gateway) EdgeLookupID(ctx context.Context, adID int64, oid string, objectType string) (int64, error) {
	var id int64
	err := g.db.QueryRowContext(ctx, `
		SELECT id FROM edge_lookups WHERE ad_id = $1 AND oid = $2
	`, adID, oid).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("persistence: edge lookup select: %w", err)
	}
	err = g.db.QueryRowContext(ctx, `
		INSERT INTO edge_lookups (ad_id, oid, object_type) VALUES ($1, $2, $3)
		ON CONFLICT (ad_id, oid) DO UPDATE SET oid = EXCLUDED.oid
		RETURNING id
	`, adID, oid, objectType).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("persistence: edge lookup insert: %w", err)
	}
	return id, nil
}

// InsertEdge appends one labeled edge; multiple labels between the same
// (src, dst) are permitted.
func (g *Gateway) InsertEdge(ctx context.Context, e model.Edge) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO edges (graph_id, ad_id, src_id, dst_id, label) VALUES ($1, $2, $3, $4, $5)
	`, e.GraphID, e.ADID, e.SrcID, e.DstID, e.Label)
	if err != nil {
		return fmt.Errorf("persistence: insert edge: %w", err)
	}
	return nil
}

// StreamGraphEdges streams every (src_id, dst_id) pair for graphID,
// joined against Edge Lookup to exclude entries with a null oid and the
// well-known excludeNodeID endpoint, calling handle once per kept edge.
func (g *Gateway) StreamGraphEdges(ctx context.Context, graphID int64, excludeNodeID int64, handle func(src, dst int64) error) error {
	rows, err := g.db.QueryContext(ctx, `
		SELECT e.src_id, e.dst_id
		FROM edges e
		JOIN edge_lookups sl ON sl.id = e.src_id AND sl.oid IS NOT NULL
		JOIN edge_lookups dl ON dl.id = e.dst_id AND dl.oid IS NOT NULL
		WHERE e.graph_id = $1 AND e.src_id != $2 AND e.dst_id != $2
	`, graphID, excludeNodeID)
	if err != nil {
		return fmt.Errorf("persistence: stream graph edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var src, dst int64
		if err := rows.Scan(&src, &dst); err != nil {
			return fmt.Errorf("persistence: scan edge: %w", err)
		}
		if err := handle(src, dst); err != nil {
			return err
		}
	}
	return rows.Err()
}

// AllNodeIDsExcept streams every Edge Lookup id for adID except the one
// excluded (the domain Users primary-group SID id), keyset-paginated by
// id with the given window size. Used by the (nil, dst) all-sources path
// query.
func (g *Gateway) AllNodeIDsExcept(ctx context.Context, adID, excludeID int64, window int, handle func(id int64) error) error {
	lastID := int64(0)
	for {
		rows, err := g.db.QueryContext(ctx, `
			SELECT id FROM edge_lookups
			WHERE ad_id = $1 AND id != $2 AND id > $3
			ORDER BY id
			LIMIT $4
		`, adID, excludeID, lastID, window)
		if err != nil {
			return fmt.Errorf("persistence: all node ids: %w", err)
		}
		n := 0
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("persistence: scan node id: %w", err)
			}
			lastID = id
			n++
			if err := handle(id); err != nil {
				rows.Close()
				return err
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("persistence: all node ids rows: %w", err)
		}
		rows.Close()
		if n < window {
			return nil
		}
	}
}
