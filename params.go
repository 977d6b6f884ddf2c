package dreamlake

import (
	"context"
	"sort"
	"strings"

	"github.com/dreamlake-ai/dreamlake-go/internal/model"
)

// ParametersHandle is the fluent entry point for a session's flat
// dotted-key parameter map, per spec §4.6.
type ParametersHandle struct {
	session *Session
}

// Parameters returns the handle for this session's parameter map. It
// is a method rather than a bare field per §9's open-question
// resolution: the wire/on-disk contract is identical either way, and a
// method keeps the Session struct's exported surface small.
func (s *Session) Parameters() *ParametersHandle {
	return &ParametersHandle{session: s}
}

// Set flattens updates (descending into nested maps, but not into
// arrays) and merges the resulting leaves into the current parameter
// map, upsert-style, then atomically persists the full map.
func (p *ParametersHandle) Set(updates model.Fields) error {
	s := p.session
	if err := s.checkOpen(); err != nil {
		return err
	}

	flat := Flatten(updates)

	s.mu.Lock()
	if s.params == nil {
		s.params = make(model.Fields, len(flat))
	}
	for k, v := range flat {
		s.params[k] = v
	}
	snapshot := s.params.Clone()
	s.mu.Unlock()

	if err := s.backend.ReplaceParameters(context.Background(), s.handle, snapshot); err != nil {
		return err
	}
	s.metrics.ParameterWritesTotal.Inc()
	return nil
}

// Get returns the current flat dotted-key parameter map.
func (p *ParametersHandle) Get() (model.Fields, error) {
	if err := p.session.checkOpen(); err != nil {
		return nil, err
	}
	p.session.mu.Lock()
	defer p.session.mu.Unlock()
	return p.session.params.Clone(), nil
}

// GetNested reconstructs the nested-map shape the flat keys came from,
// the inverse of Flatten.
func (p *ParametersHandle) GetNested() (model.Fields, error) {
	flat, err := p.Get()
	if err != nil {
		return nil, err
	}
	return Unflatten(flat), nil
}

// Flatten recursively descends nested maps, joining keys with '.', and
// stops at any non-map value (numbers, strings, booleans, null,
// arrays) per spec §4.6: arrays are leaves, never descended into.
func Flatten(m model.Fields) model.Fields {
	out := make(model.Fields)
	flattenInto(out, "", m)
	return out
}

func flattenInto(out model.Fields, prefix string, m model.Fields) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(model.Fields); ok {
			flattenInto(out, key, nested)
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok {
			flattenInto(out, key, model.Fields(nested))
			continue
		}
		out[key] = v
	}
}

// Unflatten is the inverse of Flatten: dotted keys become nested maps.
// Keys are processed in sorted order, so on an ambiguous collision (a
// key that is both a leaf and a map prefix elsewhere, e.g. "a" and
// "a.b") the longer dotted key, which sorts later, replaces the leaf.
func Unflatten(flat model.Fields) model.Fields {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(model.Fields)
	for _, k := range keys {
		segments := strings.Split(k, ".")
		cursor := out
		for i, seg := range segments {
			if i == len(segments)-1 {
				cursor[seg] = flat[k]
				continue
			}
			next, ok := cursor[seg].(model.Fields)
			if !ok {
				next = make(model.Fields)
				cursor[seg] = next
			}
			cursor = next
		}
	}
	return out
}
