package graphpath

import (
	"context"
	"fmt"

	"github.com/adtrails/adtrails/internal/model"
	"github.com/adtrails/adtrails/internal/persistence"
	"github.com/adtrails/adtrails/internal/svcerrors"
)

// principal is the resolved identity behind an Edge Lookup node id.
type principal struct {
	SID  string
	Name string
	Type model.ObjectType
}

// Resolver turns node ids into principals, routing each lookup to the
// one table its stored object type names. Its cache is task-local and
// never evicted; one Resolver is built per query.
type Resolver struct {
	gw    *persistence.Gateway
	adID  int64
	cache map[int64]principal
}

// NewResolver builds a Resolver scoped to one Path Engine query.
func NewResolver(gw *persistence.Gateway, adID int64) *Resolver {
	return &Resolver{gw: gw, adID: adID, cache: make(map[int64]principal)}
}

// Resolve returns the principal behind id, populating the cache on miss.
// The node's object type comes straight from its Edge Lookup row, so the
// single matching CN query is issued directly instead of probing every
// table in turn (which would miss OU and GPO nodes, which have no SID).
func (r *Resolver) Resolve(ctx context.Context, id int64) (principal, error) {
	if p, ok := r.cache[id]; ok {
		return p, nil
	}
	oid, otype, err := r.gw.EdgeLookupOID(ctx, r.adID, id)
	if err != nil {
		return principal{}, svcerrors.Query(fmt.Sprintf("node id %d not found", id), err)
	}
	p := principal{SID: oid, Type: model.ObjectType(otype)}
	cn, found, err := r.gw.ResolvePrincipalByType(ctx, r.adID, p.Type, oid)
	if err != nil {
		return principal{}, fmt.Errorf("graphpath: resolve principal: %w", err)
	}
	if found {
		p.Name = cn
	}
	r.cache[id] = p
	return p, nil
}
