package progress

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// LocalTTY is the local-console Progress Observer. No library in this
// module's dependency pack provides a terminal progress bar, so this
// sink redraws a single line with a carriage return, the way a minimal
// CLI tool would without pulling in an extra dependency for it.
type LocalTTY struct {
	mu      sync.Mutex
	out     *os.File
	counter int64
}

// NewLocalTTY creates a local-console sink writing to stdout.
func NewLocalTTY() *LocalTTY {
	return &LocalTTY{out: os.Stdout}
}

func (l *LocalTTY) Item(_ context.Context, snap Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counter++

	switch {
	case l.counter%5000 == 0:
		fmt.Fprintf(l.out, "\rFINISHED: %s RUNNING: %s (%d items)\n",
			strings.Join(snap.Finished, ","), strings.Join(snap.Running, ","), l.counter)
	case l.counter%100 == 0:
		fmt.Fprintf(l.out, "\r[%s] %d items", bar(l.counter), l.counter)
	}
}

func (l *LocalTTY) Lifecycle(_ context.Context, event Lifecycle, snap Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "\r%s: ad_id=%d domain=%s\n", event, snap.ADID, snap.DomainName)
}

func (l *LocalTTY) Close() error { return nil }

func bar(n int64) string {
	width := int((n / 100) % 20)
	if width == 0 {
		width = 1
	}
	return strings.Repeat("#", width) + strings.Repeat(".", 20-width)
}
