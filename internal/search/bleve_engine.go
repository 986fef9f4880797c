package search

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/pders01/ntrack/internal/debuglog"
	"github.com/pders01/ntrack/internal/tracker"
)

// BleveEngine keeps a full-text index of trackers.
type BleveEngine struct {
	src Source
	idx bleve.Index
}

// NewBleveEngine creates or opens a Bleve index at indexPath and indexes the
// current trackers. An empty indexPath keeps the index in memory.
func NewBleveEngine(src Source, indexPath string) (*BleveEngine, error) {
	idx, err := openIndex(indexPath)
	if err != nil {
		return nil, err
	}

	be := &BleveEngine{src: src, idx: idx}
	if err := be.reindexAll(); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("indexing trackers: %w", err)
	}
	return be, nil
}

func openIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		return bleve.NewMemOnly(buildIndexMapping())
	}

	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	idx, err := bleve.Open(indexPath)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(indexPath, buildIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("opening search index %s: %w", indexPath, err)
	}
	return idx, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.Store = true
	title.IncludeTermVectors = true

	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	content.Store = false

	source := bleve.NewTextFieldMapping()
	source.Analyzer = standard.Name
	source.Store = true

	label := bleve.NewTextFieldMapping()
	label.Analyzer = standard.Name
	label.Store = false

	typ := bleve.NewTextFieldMapping()
	typ.Analyzer = keyword.Name
	typ.Store = true

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("content", content)
	dm.AddFieldMappingsAt("source", source)
	dm.AddFieldMappingsAt("label", label)
	dm.AddFieldMappingsAt("type", typ)

	im.DefaultMapping = dm
	return im
}

func document(t *tracker.Tracker) map[string]any {
	doc := map[string]any{
		"type":   string(t.Type),
		"title":  t.DisplayTitle(),
		"source": t.Source,
		"label":  t.Type.Label(),
	}
	if fc := t.FeedContent; fc != nil {
		doc["content"] = strings.TrimSpace(fc.DisplayedContent + " " + fc.FetchedContent)
	}
	return doc
}

// reindexAll indexes every tracker and drops documents of trackers that no
// longer exist, which happens when an on-disk index outlives a deletion.
func (b *BleveEngine) reindexAll() error {
	trackers := b.src.List()
	live := make(map[string]bool, len(trackers))

	batch := b.idx.NewBatch()
	for _, t := range trackers {
		live[t.ID] = true
		if err := batch.Index(t.ID, document(t)); err != nil {
			return err
		}
	}
	if err := b.idx.Batch(batch); err != nil {
		return err
	}

	total, err := b.DocCount()
	if err != nil || total <= len(live) {
		return err
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), total, 0, false)
	res, err := b.idx.Search(req)
	if err != nil {
		return err
	}
	for _, h := range res.Hits {
		if !live[h.ID] {
			if err := b.idx.Delete(h.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *BleveEngine) Search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []*Result{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	// an OR of per-term matches across key fields with boosts
	var qs []bleveQuery.Query
	for _, tok := range tokenize(query) {
		for _, f := range []struct {
			name  string
			boost float64
		}{
			{"title", 4.0},
			{"content", 2.0},
			{"label", 1.0},
			{"source", 0.5},
		} {
			qm := bleve.NewMatchQuery(tok)
			qm.SetField(f.name)
			qm.SetBoost(f.boost)
			qp := bleve.NewPrefixQuery(tok)
			qp.SetField(f.name)
			qp.SetBoost(f.boost * 0.9)
			qs = append(qs, qm, qp)
		}
	}
	if len(qs) == 0 {
		return []*Result{}, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	req.Fields = []string{"title"}
	res, err := b.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	out := make([]*Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		t, err := b.src.Get(h.ID)
		if err != nil {
			debuglog.Debugf("search hit %s has no tracker: %v", h.ID, err)
			continue
		}
		r := &Result{Tracker: t, Score: h.Score}
		if title, ok := h.Fields["title"].(string); ok {
			r.Matches = []Match{{Field: "title", Text: title, Weight: h.Score}}
		}
		out = append(out, r)
	}
	return out, nil
}

// OnTrackerUpdated indexes the tracker.
func (b *BleveEngine) OnTrackerUpdated(t *tracker.Tracker) {
	if t == nil {
		return
	}
	if err := b.idx.Index(t.ID, document(t)); err != nil {
		debuglog.Warnf("indexing tracker %s: %v", t.ID, err)
	}
}

// OnTrackerDeleted removes the tracker's document.
func (b *BleveEngine) OnTrackerDeleted(id string) {
	if err := b.idx.Delete(id); err != nil {
		debuglog.Warnf("removing tracker %s from index: %v", id, err)
	}
}

// DocCount reports total documents in the index.
func (b *BleveEngine) DocCount() (int, error) {
	n, err := b.idx.DocCount()
	return int(n), err
}

func (b *BleveEngine) Close() error {
	return b.idx.Close()
}
