package graphpath

import (
	"context"
	"fmt"
	"time"

	"github.com/adtrails/adtrails/internal/metrics"
	"github.com/adtrails/adtrails/internal/model"
	"github.com/adtrails/adtrails/internal/persistence"
	"github.com/adtrails/adtrails/internal/svcerrors"
)

// ResultNode is one principal positioned along a returned path.
type ResultNode struct {
	SID      string           `json:"sid"`
	Name     string           `json:"name"`
	NodeType model.ObjectType `json:"node_type"`
	DomainID int64            `json:"domain_id"`
	Distance int              `json:"distance"`
}

// ResultEdge is one labelled hop between two consecutive path positions;
// multiple labels between the same pair render as multiple ResultEdges.
type ResultEdge struct {
	Src   int64  `json:"src"`
	Dst   int64  `json:"dst"`
	Label string `json:"label"`
}

// ResultGraph is the JSON-shaped answer to a path query.
type ResultGraph struct {
	Nodes []ResultNode `json:"nodes"`
	Edges []ResultEdge `json:"edges"`
}

// Engine answers shortest-path queries over one loaded Graph.
type Engine struct {
	gw      *persistence.Gateway
	loaded  *Loaded
	window  int
	metrics *metrics.Registry
}

// NewEngine builds a Path Engine over an already-loaded graph. window
// defaults to 1000 when zero, the page size used to stream candidate
// source ids in the (nil, dst) mode.
func NewEngine(gw *persistence.Gateway, loaded *Loaded, window int, reg *metrics.Registry) *Engine {
	if window <= 0 {
		window = 1000
	}
	return &Engine{gw: gw, loaded: loaded, window: window, metrics: reg}
}

// ShortestPaths answers shortest_paths / all_shortest_paths for
// (srcSID, dstSID), exactly one of which may be nil; both nil is a
// caller error. all selects between the single-path and
// every-shortest-path forms.
func (e *Engine) ShortestPaths(ctx context.Context, srcSID, dstSID *string, all bool) (*ResultGraph, error) {
	if e.metrics != nil {
		start := time.Now()
		defer func() {
			e.metrics.PathQueryDuration.WithLabelValues("shortest_paths").Observe(time.Since(start).Seconds())
		}()
	}
	if srcSID == nil && dstSID == nil {
		return nil, svcerrors.Query("src_sid or dst_sid must be set", nil)
	}
	if srcSID == nil {
		return e.allSources(ctx, *dstSID, all)
	}
	if dstSID == nil {
		return nil, svcerrors.Query("shortest_paths(src, nil) not implemented", nil)
	}
	return e.direct(ctx, *srcSID, *dstSID, all)
}

func (e *Engine) direct(ctx context.Context, srcSID, dstSID string, all bool) (*ResultGraph, error) {
	src, err := e.resolveID(ctx, srcSID)
	if err != nil {
		return nil, err
	}
	dst, err := e.resolveID(ctx, dstSID)
	if err != nil {
		return nil, err
	}

	var paths [][]int64
	if all {
		paths = e.loaded.Graph.AllShortestPaths(src, dst)
	} else if p, ok := e.loaded.Graph.ShortestPath(src, dst); ok {
		paths = [][]int64{p}
	}
	return e.assemble(ctx, paths)
}

// allSources implements the (nil, dst) mode: iterate every node id in
// the Edge Lookup for this ad_id, excluding <domain-sid>-513, computing
// shortest path(s) to dst for each.
func (e *Engine) allSources(ctx context.Context, dstSID string, all bool) (*ResultGraph, error) {
	dst, err := e.resolveID(ctx, dstSID)
	if err != nil {
		return nil, err
	}
	domainUsersSID := model.DomainUsersSID(e.loaded.DomainSID)
	excludeID, ok, err := e.gw.EdgeLookupBySID(ctx, e.loaded.ADID, domainUsersSID)
	if err != nil {
		return nil, fmt.Errorf("graphpath: resolve domain users exclusion: %w", err)
	}
	if !ok {
		excludeID = 0
	}

	var paths [][]int64
	err = e.gw.AllNodeIDsExcept(ctx, e.loaded.ADID, excludeID, e.window, func(src int64) error {
		if src == dst {
			return nil
		}
		if all {
			paths = append(paths, e.loaded.Graph.AllShortestPaths(src, dst)...)
			return nil
		}
		if p, found := e.loaded.Graph.ShortestPath(src, dst); found {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graphpath: scan node ids: %w", err)
	}
	return e.assemble(ctx, paths)
}

func (e *Engine) resolveID(ctx context.Context, sid string) (int64, error) {
	id, ok, err := e.gw.EdgeLookupBySID(ctx, e.loaded.ADID, sid)
	if err != nil {
		return 0, fmt.Errorf("graphpath: resolve sid: %w", err)
	}
	if !ok {
		return 0, svcerrors.Query(fmt.Sprintf("SID %s not found", sid), nil)
	}
	return id, nil
}

// assemble turns raw id-paths into the result graph: one ResultNode per
// distinct position (via the task-local Resolver cache) and one
// ResultEdge per distinct label between consecutive positions.
func (e *Engine) assemble(ctx context.Context, paths [][]int64) (*ResultGraph, error) {
	out := &ResultGraph{}
	resolver := NewResolver(e.gw, e.loaded.ADID)
	seenNodes := map[int64]bool{}
	seenEdges := map[[3]interface{}]bool{}

	for _, path := range paths {
		for d, id := range path {
			if seenNodes[id] {
				continue
			}
			p, err := resolver.Resolve(ctx, id)
			if err != nil {
				return nil, err
			}
			out.Nodes = append(out.Nodes, ResultNode{
				SID: p.SID, Name: p.Name, NodeType: p.Type,
				DomainID: e.loaded.ADID, Distance: d,
			})
			seenNodes[id] = true
		}
		for i := 0; i+1 < len(path); i++ {
			src, dst := path[i], path[i+1]
			labels, err := e.gw.EdgeLabelsBetween(ctx, e.loaded.GraphID, src, dst)
			if err != nil {
				return nil, fmt.Errorf("graphpath: edge labels: %w", err)
			}
			for _, label := range labels {
				key := [3]interface{}{src, dst, label}
				if seenEdges[key] {
					continue
				}
				seenEdges[key] = true
				out.Edges = append(out.Edges, ResultEdge{Src: src, Dst: dst, Label: label})
			}
		}
	}
	return out, nil
}
