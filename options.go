package dreamlake

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dreamlake-ai/dreamlake-go/internal/config"
	"github.com/dreamlake-ai/dreamlake-go/internal/dlerrors"
)

// settings collects every construction-time option before Open decides
// which Backend to build. Adapted from the teacher's internal/config
// defaulting pattern (read profile, then env, then explicit overrides
// win) but expressed as functional options instead of a YAML server
// config, since this SDK has no daemon to configure.
type settings struct {
	namespace string
	workspace string
	name      string

	localPath string
	remoteURL string

	userName string
	apiKey   string

	description string
	tags        []string
	folder      string

	logger   *zap.Logger
	registry prometheus.Registerer

	skipProfile bool
}

// Option configures a Session at construction time.
type Option func(*settings)

func WithNamespace(ns string) Option { return func(s *settings) { s.namespace = ns } }
func WithLocalPath(path string) Option { return func(s *settings) { s.localPath = path } }
func WithRemoteURL(url string) Option { return func(s *settings) { s.remoteURL = url } }
func WithUserName(userName string) Option { return func(s *settings) { s.userName = userName } }
func WithAPIKey(apiKey string) Option { return func(s *settings) { s.apiKey = apiKey } }
func WithDescription(desc string) Option { return func(s *settings) { s.description = desc } }
func WithTags(tags ...string) Option { return func(s *settings) { s.tags = tags } }
func WithFolder(folder string) Option { return func(s *settings) { s.folder = folder } }
func WithLogger(logger *zap.Logger) Option { return func(s *settings) { s.logger = logger } }

// WithMetricsRegistry registers this session's counters/histograms
// against reg instead of the process-wide default Prometheus
// registry, letting a caller that runs its own /metrics endpoint
// control exactly which registry collects them.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(s *settings) { s.registry = reg }
}

// WithoutProfile skips loading ~/.dreamlake/config.yaml, useful for
// tests that want fully explicit configuration.
func WithoutProfile() Option { return func(s *settings) { s.skipProfile = true } }

// resolve applies the profile file, then environment variables, then
// the explicit options (in that precedence order, lowest to highest),
// and validates the result against spec §6's option contract.
func resolve(workspace, name string, opts []Option) (*settings, error) {
	s := &settings{workspace: workspace, name: name}

	// Pass 1: profile (lowest precedence).
	skip := false
	for _, opt := range opts {
		probe := &settings{}
		opt(probe)
		if probe.skipProfile {
			skip = true
		}
	}
	if !skip {
		if path, err := config.DefaultPath(); err == nil {
			if profile, err := config.Load(path); err == nil {
				s.localPath = profile.LocalPath
				s.remoteURL = profile.APIURL
				s.apiKey = profile.APIKey
				if s.namespace == "" {
					s.namespace = profile.Namespace
				}
				if s.workspace == "" {
					s.workspace = profile.Workspace
				}
			}
		}
	}

	// Pass 2: environment variables.
	if v := os.Getenv("DREAMLAKE_LOCAL_PATH"); v != "" {
		s.localPath = v
	}
	if v := os.Getenv("DREAMLAKE_API_URL"); v != "" {
		s.remoteURL = v
	}
	if v := os.Getenv("DREAMLAKE_API_KEY"); v != "" {
		s.apiKey = v
	}

	// Pass 3: explicit functional options (highest precedence).
	for _, opt := range opts {
		opt(s)
	}

	if s.workspace == "" || s.name == "" {
		return nil, dlerrors.Invalid("workspace and name are required")
	}
	if s.localPath != "" && s.remoteURL != "" {
		return nil, dlerrors.Invalid("local_path and remote_url are mutually exclusive")
	}
	if s.localPath == "" && s.remoteURL == "" {
		return nil, dlerrors.Invalid("one of local_path or remote_url is required")
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	return s, nil
}
