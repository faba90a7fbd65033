// Package eventlog loads event logs and turns them into the activity
// sequences (traces and variants) that get aligned.
package eventlog

import (
	"sort"
	"strconv"
	"strings"
)

// Standard XES attribute keys.
const (
	KeyActivity  = "concept:name"
	KeyCase      = "case:concept:name"
	KeyTimestamp = "time:timestamp"
	KeyResource  = "org:resource"
)

// Event is a single recorded activity execution.
type Event struct {
	Activity string
	// Timestamp in nanoseconds since Unix epoch, 0 when unknown.
	Timestamp  int64
	Resource   string
	Attributes map[string]string
}

// Attr returns the value of key, mapping the standard keys to their fields.
func (e *Event) Attr(key string) (string, bool) {
	switch key {
	case KeyActivity:
		return e.Activity, e.Activity != ""
	case KeyResource:
		return e.Resource, e.Resource != ""
	}
	v, ok := e.Attributes[key]
	return v, ok
}

// Trace is the ordered list of events of one case.
type Trace struct {
	CaseID     string
	Attributes map[string]string
	Events     []Event
}

// Project returns the value of activityKey for every event. Events without
// the attribute are left out.
func (t *Trace) Project(activityKey string) []string {
	out := make([]string, 0, len(t.Events))
	for i := range t.Events {
		if v, ok := t.Events[i].Attr(activityKey); ok {
			out = append(out, v)
		}
	}
	return out
}

// Log is an ordered collection of traces.
type Log struct {
	Traces []Trace
}

// Project projects every trace onto activityKey.
func (l *Log) Project(activityKey string) [][]string {
	out := make([][]string, len(l.Traces))
	for i := range l.Traces {
		out[i] = l.Traces[i].Project(activityKey)
	}
	return out
}

// NumEvents returns the total number of events.
func (l *Log) NumEvents() int {
	n := 0
	for i := range l.Traces {
		n += len(l.Traces[i].Events)
	}
	return n
}

// FromTraces builds a log from plain activity sequences, one case per
// sequence, named by position.
func FromTraces(traces ...[]string) *Log {
	l := &Log{Traces: make([]Trace, len(traces))}
	for i, tr := range traces {
		events := make([]Event, len(tr))
		for j, a := range tr {
			events[j] = Event{Activity: a}
		}
		l.Traces[i] = Trace{CaseID: caseName(i), Events: events}
	}
	return l
}

func caseName(i int) string {
	return "case-" + strconv.Itoa(i+1)
}

// caseEvent is a flat row before grouping.
type caseEvent struct {
	caseID string
	event  Event
}

// groupByCase groups rows into traces in order of first appearance and
// orders each trace by timestamp, keeping file order for ties.
func groupByCase(rows []caseEvent) *Log {
	index := make(map[string]int)
	l := &Log{}
	for _, r := range rows {
		i, ok := index[r.caseID]
		if !ok {
			i = len(l.Traces)
			index[r.caseID] = i
			l.Traces = append(l.Traces, Trace{CaseID: r.caseID})
		}
		l.Traces[i].Events = append(l.Traces[i].Events, r.event)
	}
	for i := range l.Traces {
		events := l.Traces[i].Events
		sort.SliceStable(events, func(a, b int) bool {
			return events[a].Timestamp < events[b].Timestamp
		})
	}
	return l
}

// Variant is a distinct activity sequence with the cases that follow it.
type Variant struct {
	Activities []string
	// Cases holds the indices of the traces following the variant.
	Cases []int
}

// Count returns the number of cases following the variant.
func (v *Variant) Count() int {
	return len(v.Cases)
}

// Key returns the variant key.
func (v *Variant) Key() string {
	return VariantKey(v.Activities)
}

// variantSep separates activities in variant keys. A unit separator cannot
// clash with labels taken from text logs.
const variantSep = "\x1f"

// VariantKey joins activities into a map key.
func VariantKey(activities []string) string {
	return strings.Join(activities, variantSep)
}

// SplitVariantKey is the inverse of VariantKey.
func SplitVariantKey(key string) []string {
	if key == "" {
		return []string{}
	}
	return strings.Split(key, variantSep)
}

// Variants groups projected traces into variants in order of first
// appearance.
func Variants(traces [][]string) []*Variant {
	index := make(map[string]*Variant)
	var out []*Variant
	for i, tr := range traces {
		key := VariantKey(tr)
		v, ok := index[key]
		if !ok {
			v = &Variant{Activities: tr}
			index[key] = v
			out = append(out, v)
		}
		v.Cases = append(v.Cases, i)
	}
	return out
}

// LogVariants projects l onto activityKey and groups the result.
func LogVariants(l *Log, activityKey string) []*Variant {
	return Variants(l.Project(activityKey))
}
