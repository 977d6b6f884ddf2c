// Package dreamlake is a client SDK for recording machine-learning and
// robotics experiment telemetry: logs, a flat parameter map, named
// time-series tracks, and file artifacts, persisted either to a local
// directory tree or to a remote HTTP service.
//
// Grounded on the teacher's service.StorageService for the
// lock-guarded, single-struct-owns-everything session shape, and on
// original_source/session.py for the operation surface (open/close,
// per-track buffers, global last-timestamp inheritance) this package
// reimplements in Go idiom rather than transliterates.
package dreamlake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dreamlake-ai/dreamlake-go/internal/backend"
	"github.com/dreamlake-ai/dreamlake-go/internal/dlerrors"
	"github.com/dreamlake-ai/dreamlake-go/internal/metrics"
	"github.com/dreamlake-ai/dreamlake-go/internal/model"
	"github.com/dreamlake-ai/dreamlake-go/internal/trackio"
	"github.com/dreamlake-ai/dreamlake-go/internal/validation"
	"github.com/dreamlake-ai/dreamlake-go/internal/workerpool"
)

// FlushThreshold is the number of buffered points on a single track
// that triggers an implicit flush: the append that brings the buffer
// to this size flushes it, independent of any explicit Flush call.
const FlushThreshold = 1000

// trackState is the per-track bookkeeping a Session owns: the pending
// buffer plus the display metadata supplied the first time the track
// was touched.
type trackState struct {
	buffer []model.DataPoint
	meta   model.TrackMetadata
}

// Session is a single experiment run's identity and open handle. All
// mutable state is guarded by mu, per spec §5: one mutex serializes
// last-timestamp resolution, track buffers, the parameter map, and the
// log sequence counter.
type Session struct {
	mu sync.Mutex

	backend backend.Backend
	handle  *model.SessionHandle
	logger  *zap.Logger
	metrics *metrics.Metrics

	opened bool
	closed bool

	logSeq         uint64
	lastTimestamp  *float64
	tracks         map[string]*trackState
	params         model.Fields
	flushThreshold int
}

// Open creates (or resumes) a session scoped to (workspace, name) and
// upserts its backing state via whichever Backend the resolved options
// select. The returned Session is ready for use; call Close when done,
// ideally via defer so it runs on every exit path.
func Open(workspace, name string, opts ...Option) (*Session, error) {
	s, err := resolve(workspace, name, opts)
	if err != nil {
		return nil, err
	}

	var be backend.Backend
	if s.localPath != "" {
		be, err = backend.NewLocalBackend(s.localPath)
		if err != nil {
			return nil, err
		}
	} else {
		be, err = backend.NewRemoteBackend(s.remoteURL, s.apiKey, s.userName)
		if err != nil {
			return nil, err
		}
	}

	handle, err := be.UpsertSession(context.Background(), backend.UpsertSessionRequest{
		Namespace:   s.namespace,
		Workspace:   s.workspace,
		Name:        s.name,
		Description: s.description,
		Tags:        s.tags,
		Folder:      s.folder,
	})
	if err != nil {
		return nil, err
	}

	params, err := be.ReadParameters(context.Background(), handle)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		backend:        be,
		handle:         handle,
		logger:         s.logger,
		metrics:        metrics.For(s.registry),
		opened:         true,
		tracks:         make(map[string]*trackState),
		params:         params,
		flushThreshold: FlushThreshold,
	}
	return sess, nil
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return dlerrors.Closed("session is closed")
	}
	return nil
}

// resolveTimestampLocked implements the §4.5 table. Caller must hold s.mu.
func (s *Session) resolveTimestampLocked(raw interface{}, hasRaw bool) (float64, error) {
	if !hasRaw {
		ts := float64(time.Now().UnixNano()) / 1e9
		s.lastTimestamp = &ts
		return ts, nil
	}

	ts, err := validation.Timestamp(raw)
	if err != nil {
		return 0, err
	}

	if ts == model.TSInherit {
		if s.lastTimestamp == nil {
			return 0, dlerrors.Invalid("no previous timestamp to inherit")
		}
		return *s.lastTimestamp, nil
	}

	s.lastTimestamp = &ts
	return ts, nil
}

// nextLogSequenceLocked returns the next monotonic sequence number, starting
// at 0 for a fresh session and continuing for a resumed one.
func (s *Session) nextLogSequenceLocked() uint64 {
	n := s.logSeq
	s.logSeq++
	return n
}

// Flush flushes every track's pending buffer.
func (s *Session) Flush() error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.mu.Lock()
	names := make([]string, 0, len(s.tracks))
	for name, st := range s.tracks {
		if len(st.buffer) > 0 {
			names = append(names, name)
		}
	}
	s.mu.Unlock()

	var errs error
	for _, name := range names {
		if err := s.flushTrack(name); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// flushTrack merges and writes one track's buffer. It is safe to call
// with an empty buffer (a no-op).
func (s *Session) flushTrack(name string) error {
	s.mu.Lock()
	st := s.tracks[name]
	if st == nil || len(st.buffer) == 0 {
		s.mu.Unlock()
		return nil
	}
	buffered := st.buffer
	st.buffer = nil
	meta := st.meta
	s.mu.Unlock()

	merged := trackio.MergeByTimestamp(buffered)
	s.metrics.TrackMergedPoints.Add(float64(len(buffered) - len(merged)))

	timer := time.Now()
	ctx := context.Background()
	if err := s.backend.EnsureTrack(ctx, s.handle, name, meta); err != nil {
		s.rebuffer(name, buffered)
		return err
	}
	if err := s.backend.WriteTrackRecords(ctx, s.handle, name, merged); err != nil {
		s.rebuffer(name, buffered)
		return err
	}
	s.metrics.TrackFlushesTotal.Inc()
	s.metrics.TrackFlushDuration.Observe(time.Since(timer).Seconds())
	return nil
}

// rebuffer restores unflushed points to the front of a track's buffer
// after a failed flush, per spec §4.5's "retain the un-flushed points"
// failure semantics.
func (s *Session) rebuffer(name string, points []model.DataPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.tracks[name]
	if st == nil {
		st = &trackState{}
		s.tracks[name] = st
	}
	st.buffer = append(points, st.buffer...)
}

// Close idempotently flushes every track and releases backend
// resources; it does not rewrite the session's stored metadata
// (session.json keeps what Open wrote). Transient errors
// encountered while flushing on close are demoted to a warning, per
// spec §7's propagation policy, so the session still closes cleanly.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	names := make([]string, 0, len(s.tracks))
	for name, st := range s.tracks {
		if len(st.buffer) > 0 {
			names = append(names, name)
		}
	}
	s.mu.Unlock()

	pool := workerpool.New(workerpool.Config{
		Name:       "session-close-flush",
		MaxWorkers: 4,
		Logger:     s.logger,
	})
	tasks := make([]workerpool.Task, 0, len(names))
	for _, name := range names {
		name := name
		tasks = append(tasks, workerpool.Task{
			ID: name,
			Fn: func(ctx context.Context) error { return s.flushTrack(name) },
		})
	}
	flushErrs := pool.Run(tasks)
	_ = pool.Stop(10 * time.Second)

	var warnings error
	for _, err := range flushErrs {
		if dlerrors.Is(err, dlerrors.Transient) {
			s.logger.Warn("track flush failed during close, buffered points lost", zap.Error(err))
			continue
		}
		warnings = multierr.Append(warnings, err)
	}

	if err := s.backend.Close(context.Background(), s.handle); err != nil {
		warnings = multierr.Append(warnings, err)
	}

	return warnings
}

// Handle exposes the backend-assigned session identity, useful for
// logging or for correlating with a remote server's records.
func (s *Session) Handle() model.SessionHandle {
	return *s.handle
}

func (s *Session) String() string {
	return fmt.Sprintf("dreamlake.Session(%s/%s)", s.handle.Workspace, s.handle.Name)
}
