package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dittox/eventgw/internal/webflow"
)

const (
	stageEvent    = "ev-stage"
	scheduleEvent = "ev-sched"
)

type fakeSource struct {
	mu          sync.Mutex
	collections []webflow.Collection
	items       map[string][]webflow.Item
	failOn      string
	gate        chan struct{}
	listCalls   atomic.Int32
	itemCalls   atomic.Int32
}

func (f *fakeSource) ListCollections(ctx context.Context, _ string) ([]webflow.Collection, error) {
	f.listCalls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.collections, nil
}

func (f *fakeSource) ListItems(_ context.Context, id string) ([]webflow.Item, error) {
	f.itemCalls.Add(1)
	if id == f.failOn {
		return nil, errors.New("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id], nil
}

func item(id string, fields map[string]any) webflow.Item {
	return webflow.Item{"id": id, "fieldData": fields}
}

func newSource() *fakeSource {
	return &fakeSource{
		collections: []webflow.Collection{
			{ID: "c-speakers", DisplayName: "Speakers", Slug: "speakers"},
			{ID: "c-schedule", DisplayName: "Schedule", Slug: "schedule"},
			{ID: "c-sponsors", DisplayName: "Sponsors", Slug: "sponsors"},
			{ID: "c-stages", DisplayName: "Stages", Slug: "stages"},
			{ID: "c-exhibitors", DisplayName: "Exhibitors", Slug: "exhibitors"},
			{ID: "c-types", DisplayName: "Session Types", Slug: "types"},
		},
		items: map[string][]webflow.Item{
			"c-speakers": {
				item("sp1", map[string]any{"name": "Ada", "company-text": "Acme"}),
				item("sp2", map[string]any{"name": "Bob"}),
				item("sp3", map[string]any{"company": "Initech"}),
			},
			"c-stages": {
				item("st1", map[string]any{"name": "Big Room", "event": stageEvent}),
				item("st2", map[string]any{"stage-name": "Loft", "event": stageEvent}),
				item("st3", map[string]any{"name": "Other", "event": "someone-else"}),
			},
			"c-types": {
				item("t1", map[string]any{"name": "Keynote"}),
			},
			"c-schedule": {
				item("s1", map[string]any{
					"event":      scheduleEvent,
					"stage":      "st1",
					"speakers-2": []any{"sp1", "sp2", "missing", "sp3"},
					"typ":        "t1",
				}),
				item("s2", map[string]any{
					"event":  scheduleEvent,
					"stage":  "st3",
					"stages": "st2",
					"type":   "unknown",
				}),
				item("s3", map[string]any{"event": scheduleEvent}),
				item("s4", map[string]any{"event": "other", "stage": "st1"}),
			},
			"c-sponsors":   {item("p1", map[string]any{"name": "Sponsor"})},
			"c-exhibitors": {},
		},
	}
}

func newAggregator(src Source) *Aggregator {
	return New(src, Options{SiteID: "site", StageEvent: stageEvent, ScheduleEvent: scheduleEvent})
}

func TestAllData_FiltersAndEnriches(t *testing.T) {
	doc, err := newAggregator(newSource()).AllData(context.Background())
	require.NoError(t, err)

	assert.Len(t, doc.Speakers, 3)
	assert.Len(t, doc.Sponsors, 1)
	assert.NotNil(t, doc.Exhibitors)
	require.Len(t, doc.Stages, 2)
	require.Len(t, doc.Schedule, 3, "items from other events are dropped")

	s1 := doc.Schedule[0]
	assert.Equal(t, "Big Room", s1["stageName"])
	assert.Equal(t, "Ada (Acme), Bob, Unknown Speaker (Initech)", s1["speakerNames"])
	assert.Equal(t, "Keynote", s1["typeName"])

	s2 := doc.Schedule[1]
	assert.Equal(t, "Loft", s2["stageName"], "stages overrides stage")
	v, ok := s2["typeName"]
	assert.True(t, ok)
	assert.Nil(t, v)
	_, ok = s2["speakerNames"]
	assert.False(t, ok)

	s3 := doc.Schedule[2]
	for _, k := range []string{"stageName", "speakerNames", "typeName"} {
		_, ok := s3[k]
		assert.False(t, ok, k)
	}
}

func TestAllData_SourceItemsNotMutated(t *testing.T) {
	src := newSource()
	_, err := newAggregator(src).AllData(context.Background())
	require.NoError(t, err)
	_, ok := src.items["c-schedule"][0]["stageName"]
	assert.False(t, ok)
}

func TestCombine_UnknownStageFallsBackToMainStage(t *testing.T) {
	lists := map[Kind][]webflow.Item{
		KindSchedule: {
			item("a", map[string]any{"event": "e", "stage": "nope"}),
			item("b", map[string]any{"event": "e", "stages": []any{"nope"}}),
		},
	}
	doc := Combine(lists, "x", "e")
	require.Len(t, doc.Schedule, 2)
	assert.Equal(t, DefaultStage, doc.Schedule[0]["stageName"])
	assert.Equal(t, DefaultStage, doc.Schedule[1]["stageName"])
}

func TestCombine_StageWithoutNameIsUnknown(t *testing.T) {
	lists := map[Kind][]webflow.Item{
		KindStages:   {item("st", map[string]any{"event": "se"})},
		KindSchedule: {item("a", map[string]any{"event": "e", "stages": []any{"st"}})},
	}
	doc := Combine(lists, "se", "e")
	assert.Equal(t, UnknownStage, doc.Schedule[0]["stageName"])
}

func TestCombine_EmptySpeakerList(t *testing.T) {
	lists := map[Kind][]webflow.Item{
		KindSchedule: {item("a", map[string]any{"event": "e", "speakers-2": []any{}})},
	}
	doc := Combine(lists, "x", "e")
	assert.Equal(t, "", doc.Schedule[0]["speakerNames"])
}

func TestAllData_MissingCollectionsYieldEmptyLists(t *testing.T) {
	src := newSource()
	src.collections = src.collections[:1]
	doc, err := newAggregator(src).AllData(context.Background())
	require.NoError(t, err)

	b, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"speakers":[
		{"id":"sp1","fieldData":{"name":"Ada","company-text":"Acme"}},
		{"id":"sp2","fieldData":{"name":"Bob"}},
		{"id":"sp3","fieldData":{"company":"Initech"}}
	],"schedule":[],"sponsors":[],"stages":[],"exhibitors":[]}`, string(b))
	assert.Equal(t, int32(1), src.itemCalls.Load())
}

func TestAllData_FetchErrorFailsDocument(t *testing.T) {
	src := newSource()
	src.failOn = "c-sponsors"
	_, err := newAggregator(src).AllData(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sponsors")
}

func TestResolve_PinnedIDsOverrideDiscovery(t *testing.T) {
	src := newSource()
	agg := New(src, Options{CollectionIDs: map[Kind]string{KindStages: "pinned"}})
	ids, err := agg.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pinned", ids[KindStages])
	assert.Equal(t, "c-types", ids[KindTypes])
}

func TestResolve_AllPinnedSkipsListing(t *testing.T) {
	src := newSource()
	pinned := map[Kind]string{}
	for _, k := range Kinds {
		pinned[k] = "id-" + string(k)
	}
	ids, err := New(src, Options{CollectionIDs: pinned}).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pinned, ids)
	assert.Equal(t, int32(0), src.listCalls.Load())
}

func TestResolve_FirstMatchWinsAndSlugMatches(t *testing.T) {
	src := &fakeSource{collections: []webflow.Collection{
		{ID: "a", DisplayName: "Featured Speakers", Slug: "featured"},
		{ID: "b", DisplayName: "Speakers", Slug: "speakers"},
		{ID: "c", DisplayName: "Partners", Slug: "sponsor-logos"},
	}}
	ids, err := New(src, Options{}).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", ids[KindSpeakers])
	assert.Equal(t, "c", ids[KindSponsors])
	_, ok := ids[KindExhibitors]
	assert.False(t, ok)
}

func TestAllData_ConcurrentCallsShareOneBuild(t *testing.T) {
	src := newSource()
	src.gate = make(chan struct{})
	agg := newAggregator(src)

	const n = 8
	var wg sync.WaitGroup
	docs := make([]*Document, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := agg.AllData(context.Background())
			assert.NoError(t, err)
			docs[i] = d
		}(i)
	}
	require.Eventually(t, func() bool { return src.listCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Equal(t, int32(1), src.listCalls.Load())
	for _, d := range docs {
		assert.Same(t, docs[0], d)
	}
}

func TestAllData_CallerCancelDoesNotAbortBuild(t *testing.T) {
	src := newSource()
	src.gate = make(chan struct{})
	agg := newAggregator(src)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := agg.AllData(ctx)
		errc <- err
	}()
	require.Eventually(t, func() bool { return src.listCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	close(src.gate)
	doc, err := agg.AllData(context.Background())
	require.NoError(t, err)
	assert.Len(t, doc.Schedule, 3)
}
