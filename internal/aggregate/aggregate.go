// Package aggregate builds the all-data document: it fetches the event's CMS
// collections concurrently, filters stages and schedule items to one event
// and resolves stage, speaker and type references into display names.
package aggregate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dittox/eventgw/internal/logging"
	"github.com/dittox/eventgw/internal/metrics"
	"github.com/dittox/eventgw/internal/webflow"
)

// Kind names one of the collections the document is built from.
type Kind string

// Collection kinds.
const (
	KindSpeakers   Kind = "speakers"
	KindSchedule   Kind = "schedule"
	KindSponsors   Kind = "sponsors"
	KindStages     Kind = "stages"
	KindExhibitors Kind = "exhibitors"
	KindTypes      Kind = "types"
)

// Kinds lists every kind in discovery order.
var Kinds = []Kind{KindSpeakers, KindSchedule, KindSponsors, KindStages, KindExhibitors, KindTypes}

// keywords are matched case-insensitively against displayName and slug.
var keywords = map[Kind]string{
	KindSpeakers:   "speaker",
	KindSchedule:   "schedule",
	KindSponsors:   "sponsor",
	KindStages:     "stage",
	KindExhibitors: "exhibitor",
	KindTypes:      "typ",
}

// Source is the CMS API surface the aggregator needs.
type Source interface {
	ListCollections(ctx context.Context, siteID string) ([]webflow.Collection, error)
	ListItems(ctx context.Context, collectionID string) ([]webflow.Item, error)
}

// Options selects the site, the event partitions and optional pinned
// collection IDs.
type Options struct {
	SiteID        string
	StageEvent    string
	ScheduleEvent string
	// CollectionIDs pins a collection per kind and skips discovery for it.
	CollectionIDs map[Kind]string
}

// Document is the aggregated response.
type Document struct {
	Speakers   []webflow.Item `json:"speakers"`
	Schedule   []webflow.Item `json:"schedule"`
	Sponsors   []webflow.Item `json:"sponsors"`
	Stages     []webflow.Item `json:"stages"`
	Exhibitors []webflow.Item `json:"exhibitors"`
}

// Aggregator builds Documents. Concurrent AllData calls share one build.
type Aggregator struct {
	src   Source
	opts  Options
	group singleflight.Group
}

// New creates an aggregator.
func New(src Source, opts Options) *Aggregator {
	return &Aggregator{src: src, opts: opts}
}

// AllData returns the aggregated document. Callers arriving while a build is
// in flight wait for its result; ctx only bounds the caller's wait.
func (a *Aggregator) AllData(ctx context.Context) (*Document, error) {
	ch := a.group.DoChan("all-data", func() (any, error) {
		return a.build(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Document), nil
	}
}

// Resolve maps every kind to a collection ID: pinned IDs win, the rest are
// discovered by keyword with the first match in listing order. Kinds with no
// match are absent from the result.
func (a *Aggregator) Resolve(ctx context.Context) (map[Kind]string, error) {
	ids := make(map[Kind]string, len(Kinds))
	for k, id := range a.opts.CollectionIDs {
		if id != "" {
			ids[k] = id
		}
	}
	if len(ids) == len(Kinds) {
		return ids, nil
	}

	cols, err := a.src.ListCollections(ctx, a.opts.SiteID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	log := logging.FromContext(ctx)
	for _, k := range Kinds {
		if _, pinned := ids[k]; pinned {
			continue
		}
		if c, ok := findCollection(cols, keywords[k]); ok {
			ids[k] = c.ID
			log.Debug().Str("kind", string(k)).Str("collection", c.DisplayName).Str("id", c.ID).Msg("matched collection")
		} else {
			log.Warn().Str("kind", string(k)).Msg("collection not found")
		}
	}
	return ids, nil
}

func findCollection(cols []webflow.Collection, keyword string) (webflow.Collection, bool) {
	for _, c := range cols {
		if strings.Contains(strings.ToLower(c.DisplayName), keyword) || strings.Contains(strings.ToLower(c.Slug), keyword) {
			return c, true
		}
	}
	return webflow.Collection{}, false
}

func (a *Aggregator) build(ctx context.Context) (*Document, error) {
	ids, err := a.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	lists := make(map[Kind][]webflow.Item, len(Kinds))
	results := make([][]webflow.Item, len(Kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range Kinds {
		id, ok := ids[k]
		if !ok {
			results[i] = []webflow.Item{}
			continue
		}
		g.Go(func() error {
			start := time.Now()
			items, err := a.src.ListItems(gctx, id)
			metrics.UpstreamDuration.WithLabelValues(string(k)).Observe(time.Since(start).Seconds())
			if err != nil {
				return fmt.Errorf("fetch %s: %w", k, err)
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, k := range Kinds {
		lists[k] = results[i]
	}

	doc := Combine(lists, a.opts.StageEvent, a.opts.ScheduleEvent)
	logging.FromContext(ctx).Info().
		Int("speakers", len(doc.Speakers)).
		Int("schedule", len(doc.Schedule)).
		Int("schedule_total", len(lists[KindSchedule])).
		Int("stages", len(doc.Stages)).
		Int("sponsors", len(doc.Sponsors)).
		Int("exhibitors", len(doc.Exhibitors)).
		Msg("aggregated all-data")
	return doc, nil
}
