package dreamlake

import (
	"context"

	"github.com/dreamlake-ai/dreamlake-go/internal/model"
	"github.com/dreamlake-ai/dreamlake-go/internal/validation"
)

// TrackHandle is bound to one track name; calling Session.Track(name)
// twice returns handles sharing the same backing buffer, since the
// buffer lives on the Session, not on the handle.
type TrackHandle struct {
	session *Session
	name    string
}

// Track returns a handle bound to name. The track's buffer is created
// lazily on first append.
func (s *Session) Track(name string) *TrackHandle {
	return &TrackHandle{session: s, name: name}
}

// TrackOption customizes a track's display metadata; supplying it on
// any append updates the track's metadata sidecar on next flush.
type TrackOption func(*model.TrackMetadata)

func WithTrackDisplayName(displayName string) TrackOption {
	return func(m *model.TrackMetadata) { m.DisplayName = displayName }
}

func WithTrackDescription(description string) TrackOption {
	return func(m *model.TrackMetadata) { m.Description = description }
}

func WithTrackTags(tags ...string) TrackOption {
	return func(m *model.TrackMetadata) { m.Tags = tags }
}

func WithTrackMetadata(metadata model.Fields) TrackOption {
	return func(m *model.TrackMetadata) { m.Metadata = metadata }
}

// Append adds one point to the track's buffer, resolving `_ts` per
// spec §4.5: absent assigns now(), a finite number is used verbatim,
// the sentinel -1 inherits the session's last resolved timestamp
// across any track, and anything else fails BadInput.
func (t *TrackHandle) Append(fields model.Fields, opts ...TrackOption) error {
	return t.appendMany([]model.Fields{fields}, opts)
}

// AppendBatch adds N points at once. Per spec §4.5, a batch of N>=2
// points is persisted as a single columnar block on flush rather than
// N row records.
func (t *TrackHandle) AppendBatch(points []model.Fields, opts ...TrackOption) error {
	return t.appendMany(points, opts)
}

func (t *TrackHandle) appendMany(points []model.Fields, opts []TrackOption) error {
	s := t.session
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validation.TrackName(t.name); err != nil {
		return err
	}

	resolved := make([]model.DataPoint, 0, len(points))

	s.mu.Lock()
	for _, fields := range points {
		raw, hasRaw := fields[model.TSKey]
		ts, err := s.resolveTimestampLocked(raw, hasRaw)
		if err != nil {
			s.mu.Unlock()
			return err
		}

		point := make(model.DataPoint, len(fields)+1)
		for k, v := range fields {
			if k == model.TSKey {
				continue
			}
			point[k] = v
		}
		point[model.TSKey] = ts
		resolved = append(resolved, point)
	}

	st := s.tracks[t.name]
	if st == nil {
		st = &trackState{meta: model.TrackMetadata{Name: t.name}}
		s.tracks[t.name] = st
	}
	for _, opt := range opts {
		opt(&st.meta)
	}
	st.buffer = append(st.buffer, resolved...)
	overThreshold := len(st.buffer) >= s.flushThreshold
	s.mu.Unlock()

	s.metrics.TrackAppendsTotal.Add(float64(len(resolved)))

	if overThreshold {
		return s.flushTrack(t.name)
	}
	return nil
}

// Flush writes this track's pending buffer now instead of waiting for
// the next implicit trigger.
func (t *TrackHandle) Flush() error {
	if err := t.session.checkOpen(); err != nil {
		return err
	}
	return t.session.flushTrack(t.name)
}

// Stats returns the track's current metadata, including the
// monotonically increasing total-data-points counter. It flushes the
// buffer first so pending appends are reflected.
func (t *TrackHandle) Stats() (model.TrackMetadata, error) {
	if err := t.Flush(); err != nil {
		return model.TrackMetadata{}, err
	}
	all, err := t.session.backend.ListTracks(context.Background(), t.session.handle)
	if err != nil {
		return model.TrackMetadata{}, err
	}
	for _, m := range all {
		if m.Name == t.name {
			return m, nil
		}
	}
	return model.TrackMetadata{Name: t.name}, nil
}

// ReadByIndex returns points at logical indices [start, start+limit),
// flushing the buffer first so pending points are visible.
func (t *TrackHandle) ReadByIndex(start, limit int64) (*model.TrackPage, error) {
	if err := t.Flush(); err != nil {
		return nil, err
	}
	return t.session.backend.ReadTrackRange(context.Background(), t.session.handle, t.name, start, limit)
}

// ReadByTime returns points whose `_ts` falls in [startTs, endTs)
// (either bound nil for unbounded), up to limit points (0 defaults to
// 1000, capped at 10000), oldest-first unless reverse is set.
func (t *TrackHandle) ReadByTime(startTs, endTs *float64, limit int, reverse bool) (*model.TimeRangePage, error) {
	if err := t.Flush(); err != nil {
		return nil, err
	}
	return t.session.backend.ReadTrackTime(context.Background(), t.session.handle, t.name, startTs, endTs, limit, reverse)
}

// Tracks lists every track's metadata, flushing all pending buffers
// first.
func (s *Session) Tracks() ([]model.TrackMetadata, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := s.Flush(); err != nil {
		return nil, err
	}
	return s.backend.ListTracks(context.Background(), s.handle)
}
