package aggregate

import (
	"strings"

	"github.com/dittox/eventgw/internal/webflow"
)

// Fallback display names.
const (
	UnknownStage   = "Unknown Stage"
	UnknownSpeaker = "Unknown Speaker"
	UnknownType    = "Unknown Type"
	DefaultStage   = "Main Stage"
)

type speaker struct {
	name    string
	company string
}

// Combine filters and joins already fetched collections. It never fails:
// missing lists become empty, unresolvable references fall back to fixed
// names or are dropped.
func Combine(lists map[Kind][]webflow.Item, stageEvent, scheduleEvent string) *Document {
	stages := make([]webflow.Item, 0)
	for _, it := range lists[KindStages] {
		if it.Field("event") == stageEvent {
			stages = append(stages, it)
		}
	}

	stageNames := make(map[string]string, len(stages))
	for _, it := range stages {
		stageNames[it.ID()] = firstNonEmpty(it.Field("name"), it.Field("stage-name"), UnknownStage)
	}

	speakers := make(map[string]speaker, len(lists[KindSpeakers]))
	for _, it := range lists[KindSpeakers] {
		speakers[it.ID()] = speaker{
			name:    firstNonEmpty(it.Field("name"), UnknownSpeaker),
			company: firstNonEmpty(it.Field("company-text"), it.Field("company")),
		}
	}

	typeNames := make(map[string]string, len(lists[KindTypes]))
	for _, it := range lists[KindTypes] {
		typeNames[it.ID()] = firstNonEmpty(it.Field("name"), it.Field("typ"), UnknownType)
	}

	schedule := make([]webflow.Item, 0)
	for _, it := range lists[KindSchedule] {
		if it.Field("event") != scheduleEvent {
			continue
		}
		schedule = append(schedule, enrich(it, stageNames, speakers, typeNames))
	}

	return &Document{
		Speakers:   orEmpty(lists[KindSpeakers]),
		Schedule:   schedule,
		Sponsors:   orEmpty(lists[KindSponsors]),
		Stages:     stages,
		Exhibitors: orEmpty(lists[KindExhibitors]),
	}
}

// enrich returns a copy of it with stageName, speakerNames and typeName set
// where the item carries the matching reference.
func enrich(it webflow.Item, stageNames map[string]string, speakers map[string]speaker, typeNames map[string]string) webflow.Item {
	out := it.Clone()
	fields := it.Fields()

	if present(fields["stage"]) {
		out["stageName"] = firstNonEmpty(stageNames[refID(fields["stage"])], DefaultStage)
	}
	if present(fields["stages"]) {
		prev, _ := out["stageName"].(string)
		out["stageName"] = firstNonEmpty(stageNames[refID(fields["stages"])], prev, DefaultStage)
	}

	if ids, ok := fields["speakers-2"].([]any); ok {
		names := make([]string, 0, len(ids))
		for _, raw := range ids {
			id, _ := raw.(string)
			sp, ok := speakers[id]
			if !ok {
				continue
			}
			if sp.company != "" {
				names = append(names, sp.name+" ("+sp.company+")")
			} else {
				names = append(names, sp.name)
			}
		}
		out["speakerNames"] = strings.Join(names, ", ")
	}

	ref, hasType := fields["typ"], present(fields["typ"])
	if !hasType {
		ref, hasType = fields["type"], present(fields["type"])
	}
	if hasType {
		if name, ok := typeNames[refID(ref)]; ok {
			out["typeName"] = name
		} else {
			out["typeName"] = nil
		}
	}
	return out
}

// present reports whether a reference field is set to something non-empty.
func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	}
	return true
}

// refID reads a reference field: a single id, or a one-element
// multi-reference list.
func refID(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []any:
		if len(x) == 1 {
			s, _ := x[0].(string)
			return s
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func orEmpty(items []webflow.Item) []webflow.Item {
	if items == nil {
		return []webflow.Item{}
	}
	return items
}
