package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/andywolf/spiralsync/internal/anchor"
	"github.com/andywolf/spiralsync/internal/cloud/gcp"
	"github.com/andywolf/spiralsync/internal/config"
	"github.com/andywolf/spiralsync/internal/journal"
	"github.com/andywolf/spiralsync/internal/observability"
	"github.com/andywolf/spiralsync/internal/population"
	"github.com/andywolf/spiralsync/internal/roster"
	"github.com/andywolf/spiralsync/internal/state"
)

// session bundles what a command needs: validated config, logger, metrics
// and the sinks opened for this run.
type session struct {
	runID   string
	command string
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *observability.Metrics
	store   *state.Store
	sinks   []journal.Sink
	closers []func() error
}

func newSession(command string) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runID := uuid.NewString()
	logger, err := observability.NewLogger("spiralctl", os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("run_id", runID).Str("command", command).Logger()

	return &session{
		runID:   runID,
		command: command,
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
	}, nil
}

// openSinks attaches the journal sinks enabled in config. Metrics always
// observe the journal.
func (s *session) openSinks(ctx context.Context) error {
	s.sinks = append(s.sinks, s.metrics)

	if s.cfg.Journal.Dir != "" {
		fs, err := journal.NewFileSink(s.cfg.Journal.Dir)
		if err != nil {
			return err
		}
		s.sinks = append(s.sinks, fs)
		s.closers = append(s.closers, fs.Close)
		s.logger.Debug().Str("path", fs.Path()).Msg("journal file sink opened")
	}

	if !s.cfg.Journal.Cloud.Enabled {
		return nil
	}

	labels := gcp.WithLabels(map[string]string{"run_id": s.runID})
	if s.cfg.Journal.Cloud.Mode == "agent" {
		s.sinks = append(s.sinks, gcp.NewAgentSink(os.Stderr, labels))
		return nil
	}

	project := s.cfg.Journal.Cloud.Project
	if project == "" {
		var err error
		if project, err = gcp.ProjectID(ctx); err != nil {
			return fmt.Errorf("failed to resolve project for cloud journal: %w", err)
		}
	}
	cs, err := gcp.NewCloudSink(ctx, project,
		gcp.WithLogID(s.cfg.Journal.Cloud.LogID),
		labels,
		gcp.WithErrorHandler(func(err error) {
			s.logger.Warn().Err(err).Msg("cloud journal delivery failed")
		}),
	)
	if err != nil {
		return err
	}
	s.sinks = append(s.sinks, cs)
	s.closers = append(s.closers, cs.Close)
	s.logger.Debug().Str("project", project).Str("log_id", s.cfg.Journal.Cloud.LogID).Msg("cloud journal sink opened")
	return nil
}

// population builds a validator for the roster wired to the session's sinks.
// When state persistence is enabled, agents resume from the saved state.
func (s *session) population(r *roster.Roster) (*population.Validator[string], error) {
	members := r.Members()
	if s.cfg.State.Dir != "" {
		s.store = state.NewStore(s.cfg.State.Dir)
		if err := s.store.Load(); err != nil {
			return nil, err
		}
		var stale []string
		members, stale = s.store.Resume(members)
		for _, id := range stale {
			s.logger.Warn().Str("agent_id", id).Msg("saved state ignored, reference changed")
		}
	}

	opts := []population.Option{
		population.WithLogger(s.logger),
		population.WithReportOncePerCollapse(s.cfg.Protocol.ReportOncePerCollapse),
		population.WithNodeOptions(s.cfg.NodeOptions()...),
	}
	for _, sink := range s.sinks {
		opts = append(opts, population.WithJournalSink(sink))
	}

	v, err := population.New(members, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build population: %w", err)
	}
	return v, nil
}

// anchor builds the identity anchor from Secret Manager when a secret is
// configured, and from the configured phrase otherwise.
func (s *session) anchor(ctx context.Context) (*anchor.Validator, error) {
	if s.cfg.Anchor.Secret == "" {
		return anchor.New(s.cfg.Anchor.Phrase), nil
	}

	client, err := gcp.NewSecretManagerClient(ctx, s.cfg.Journal.Cloud.Project)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	return anchor.FromSecret(ctx, client, s.cfg.Anchor.Secret)
}

// finish saves population state, exports metrics for the given reports and
// closes every sink. pop is nil when the run failed before it was built.
func (s *session) finish(pop *population.Validator[string], reports []population.AgentReport, collapsed []string) error {
	var errs []error

	if s.store != nil && pop != nil {
		s.store.Capture(pop.Snapshots())
		s.store.RecordRun(state.RunRecord{
			RunID:        s.runID,
			Command:      s.command,
			At:           time.Now().UTC(),
			DriftEntries: pop.Journal().Len(),
			Collapsed:    collapsed,
		})
		if err := s.store.Save(); err != nil {
			errs = append(errs, err)
		} else {
			s.logger.Debug().Str("path", s.store.Path()).Msg("population state saved")
		}
	}

	s.metrics.ObserveReports(reports)
	if path := s.cfg.Metrics.Textfile; path != "" {
		if err := s.metrics.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		} else {
			s.logger.Debug().Str("path", path).Msg("metrics written")
		}
	}

	for _, closeFn := range s.closers {
		errs = append(errs, closeFn())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func loadRoster(path string) (*roster.Roster, error) {
	r, err := roster.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	return r, nil
}
