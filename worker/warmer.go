package worker

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"column-indexer/internal/config"
	"column-indexer/internal/model"
	"column-indexer/internal/server"
)

// Indexer is the index lookup the warmer drives, normally a *server.Hub.
type Indexer interface {
	Get(ctx context.Context, key model.ColumnKey, reportedCount int, onRefined func(model.ArticleIndex)) server.IndexResult
}

// Warmer periodically requests the configured columns so their indexes are
// rebuilt soon after the cached copy expires.
type Warmer struct {
	Index    Indexer
	Interval time.Duration

	mu      sync.Mutex
	columns []config.WarmColumn
}

func NewWarmer(idx Indexer, interval time.Duration, columns []config.WarmColumn) *Warmer {
	w := &Warmer{Index: idx, Interval: interval}
	w.SetColumns(columns)
	return w
}

func (w *Warmer) Name() string { return "warmer" }

// SetColumns replaces the warm list. Entries without an owner or column are skipped.
func (w *Warmer) SetColumns(columns []config.WarmColumn) {
	clean := make([]config.WarmColumn, 0, len(columns))
	for _, c := range columns {
		c.Owner = strings.TrimSpace(c.Owner)
		c.Column = strings.TrimSpace(c.Column)
		if c.Owner == "" || c.Column == "" {
			continue
		}
		clean = append(clean, c)
	}
	w.mu.Lock()
	w.columns = clean
	w.mu.Unlock()
}

// Columns returns a copy of the current warm list.
func (w *Warmer) Columns() []config.WarmColumn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.columns)
}

func (w *Warmer) Start(ctx context.Context) error {
	if w.Interval <= 0 {
		w.Interval = time.Hour
	}

	// initial run
	w.runOnce(ctx)

	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Warmer) runOnce(ctx context.Context) {
	for _, c := range w.Columns() {
		if ctx.Err() != nil {
			return
		}
		key := model.ColumnKey{ColumnID: c.Column, Owner: c.Owner}
		res := w.Index.Get(ctx, key, c.Count, func(idx model.ArticleIndex) {
			slog.Info("warmer: column refined", "column", key.String(), "articles", len(idx))
		})
		slog.Info("warmer: column checked", "column", key.String(), "articles", len(res.Articles), "complete", res.Complete)
	}
}
