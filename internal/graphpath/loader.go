package graphpath

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adtrails/adtrails/internal/model"
	"github.com/adtrails/adtrails/internal/persistence"
	"github.com/adtrails/adtrails/pkg/logger"
)

// LoaderConfig controls where the Graph Loader caches edges.csv and how
// wide its windowed scans are.
type LoaderConfig struct {
	WorkDir string // empty disables on-disk caching
	Window  int
}

// Loader resolves a graph_id to its edge set and builds the in-memory
// Graph: resolve graph_id -> (ad_id, domain SID), check the work-dir
// cache, rebuild from the edges table on a miss, excluding endpoints
// equal to the well-known "Users" local group id.
type Loader struct {
	gw  *persistence.Gateway
	cfg LoaderConfig
	log *logger.Logger
}

// NewLoader constructs a Loader. cfg.Window defaults to 1000 when zero.
func NewLoader(gw *persistence.Gateway, cfg LoaderConfig, log *logger.Logger) *Loader {
	if cfg.Window <= 0 {
		cfg.Window = 1000
	}
	return &Loader{gw: gw, cfg: cfg, log: log}
}

// Loaded bundles the built Graph with the domain identity the Path
// Engine needs to apply the <domain-sid>-513 exclusion rule.
type Loaded struct {
	Graph     *Graph
	ADID      int64
	GraphID   int64
	DomainSID string
}

// Load resolves graphID and returns its Graph, building and caching
// edges.csv on a cache miss.
func (l *Loader) Load(ctx context.Context, graphID int64) (*Loaded, error) {
	adID, err := l.gw.ADIDForGraph(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("graphpath: resolve graph: %w", err)
	}
	_, domainSID, err := l.gw.DomainInfoByADID(ctx, adID)
	if err != nil {
		return nil, fmt.Errorf("graphpath: resolve domain: %w", err)
	}

	excludeID, err := l.excludedUsersAliasID(ctx, adID)
	if err != nil {
		return nil, err
	}

	var g *Graph
	cachePath := l.cachePath(graphID)
	if cachePath != "" {
		if cached, ok := l.loadFromCache(cachePath); ok {
			g = cached
		}
	}
	if g == nil {
		g, err = l.buildFromDatabase(ctx, graphID, excludeID, cachePath)
		if err != nil {
			return nil, err
		}
	}
	return &Loaded{Graph: g, ADID: adID, GraphID: graphID, DomainSID: domainSID}, nil
}

// Refresh rebuilds edges.csv for graphID from the database unconditionally,
// overwriting any existing cache file; used by the periodic graph cache
// refresher rather than the on-demand Load path.
func (l *Loader) Refresh(ctx context.Context, graphID int64) (*Loaded, error) {
	adID, err := l.gw.ADIDForGraph(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("graphpath: resolve graph: %w", err)
	}
	_, domainSID, err := l.gw.DomainInfoByADID(ctx, adID)
	if err != nil {
		return nil, fmt.Errorf("graphpath: resolve domain: %w", err)
	}
	excludeID, err := l.excludedUsersAliasID(ctx, adID)
	if err != nil {
		return nil, err
	}
	g, err := l.buildFromDatabase(ctx, graphID, excludeID, l.cachePath(graphID))
	if err != nil {
		return nil, err
	}
	return &Loaded{Graph: g, ADID: adID, GraphID: graphID, DomainSID: domainSID}, nil
}

func (l *Loader) excludedUsersAliasID(ctx context.Context, adID int64) (int64, error) {
	id, ok, err := l.gw.EdgeLookupBySID(ctx, adID, model.WellKnownLocalUsersSID)
	if err != nil {
		return 0, fmt.Errorf("graphpath: resolve local users alias: %w", err)
	}
	if !ok {
		// Not every domain's Edge Lookup carries this well-known SID; no
		// exclusion is needed when it was never assigned an id.
		return 0, nil
	}
	return id, nil
}

func (l *Loader) cachePath(graphID int64) string {
	if l.cfg.WorkDir == "" {
		return ""
	}
	return filepath.Join(l.cfg.WorkDir, strconv.FormatInt(graphID, 10), "edges.csv")
}

// loadFromCache reads a previously written edges.csv. A missing or
// unreadable file is treated as a cache miss, not an error.
func (l *Loader) loadFromCache(path string) (*Graph, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	g := newGraph()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			continue
		}
		src, errA := strconv.ParseInt(parts[0], 10, 64)
		dst, errB := strconv.ParseInt(parts[1], 10, 64)
		if errA != nil || errB != nil {
			continue
		}
		g.addEdge(src, dst)
	}
	if scanner.Err() != nil {
		return nil, false
	}
	return g, true
}

// buildFromDatabase streams edges for graphID, excluding any touching
// excludeID, and writes the CRLF edges.csv cache when a work dir is
// configured.
func (l *Loader) buildFromDatabase(ctx context.Context, graphID, excludeID int64, cachePath string) (*Graph, error) {
	g := newGraph()

	var w *bufio.Writer
	var f *os.File
	if cachePath != "" {
		if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
			return nil, fmt.Errorf("graphpath: create work dir: %w", err)
		}
		var err error
		f, err = os.Create(cachePath)
		if err != nil {
			return nil, fmt.Errorf("graphpath: create edges cache: %w", err)
		}
		defer f.Close()
		w = bufio.NewWriter(f)
		defer w.Flush()
	}

	err := l.gw.StreamGraphEdges(ctx, graphID, excludeID, func(src, dst int64) error {
		g.addEdge(src, dst)
		if w != nil {
			if _, err := fmt.Fprintf(w, "%d,%d\r\n", src, dst); err != nil {
				return fmt.Errorf("graphpath: write edges cache: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graphpath: build graph: %w", err)
	}
	return g, nil
}
