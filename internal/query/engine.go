package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/magiconair/properties"
	"github.com/otcheredev/ris-db-connector/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Query statuses reported to the Observer
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Executor runs a statement against an archive database
type Executor interface {
	Query(ctx context.Context, stmt Statement) (Cursor, error)
	Placeholder() Placeholder
}

// Engine holds everything resolved from one archive property set.
// It is safe for concurrent use; per-request state lives in a Session.
type Engine struct {
	name       string
	builder    *Builder
	fields     *FieldMap
	transport  Transport
	aggregator *Aggregator
	executor   Executor
	observer   Observer
	log        zerolog.Logger
}

type engineOptions struct {
	observer Observer
	logger   *zerolog.Logger
}

// Option configures an Engine
type Option func(*engineOptions)

// WithObserver reports engine events to o
func WithObserver(o Observer) Option {
	return func(eo *engineOptions) { eo.observer = o }
}

// WithLogger overrides the global logger
func WithLogger(l zerolog.Logger) Option {
	return func(eo *engineOptions) { eo.logger = &l }
}

// NewEngine validates the property set and prepares the builder, decoder
// and aggregator. Configuration problems are returned as *ConfigError.
func NewEngine(name string, p *properties.Properties, exec Executor, opts ...Option) (*Engine, error) {
	if exec == nil {
		return nil, errors.New("nil executor")
	}
	eo := engineOptions{observer: nopObserver{}}
	for _, opt := range opts {
		opt(&eo)
	}
	logger := log.With().Str("archive", name).Logger()
	if eo.logger != nil {
		logger = eo.logger.With().Str("archive", name).Logger()
	}

	fields, err := LoadFieldMap(p)
	if err != nil {
		return nil, err
	}
	builder, err := NewBuilder(p, exec.Placeholder())
	if err != nil {
		return nil, err
	}
	transport := ParseTransport(p.GetString(PropTransport, ""))

	decoder := NewDecoder(fields, logger, WithDecoderObserver(name, eo.observer))

	return &Engine{
		name:       name,
		builder:    builder,
		fields:     fields,
		transport:  transport,
		aggregator: NewAggregator(name, decoder, transport, eo.observer, logger),
		executor:   exec,
		observer:   eo.observer,
		log:        logger,
	}, nil
}

// Name returns the archive name
func (e *Engine) Name() string {
	return e.name
}

// KeyKinds returns the search key kinds this archive can serve
func (e *Engine) KeyKinds() []KeyKind {
	return e.builder.KeyKinds()
}

// Supports reports whether kind is configured
func (e *Engine) Supports(kind KeyKind) bool {
	return e.builder.Supports(kind)
}

// Transport returns the transfer syntax attached to every series
func (e *Engine) Transport() Transport {
	return e.transport
}

// NewSession starts an empty result set
func (e *Engine) NewSession() *Session {
	return &Session{engine: e, sink: NewSink()}
}

func (e *Engine) logger(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l.With().Str("archive", e.name).Logger()
	}
	return e.log
}

// run executes stmt and folds the rows into sink. The cursor is closed on every path.
func (e *Engine) run(ctx context.Context, stmt Statement, sink *Sink) error {
	logger := e.logger(ctx).With().Str("key_kind", stmt.Kind.String()).Logger()
	start := time.Now()
	status := StatusSuccess
	defer func() {
		e.observer.QueryFinished(e.name, stmt.Kind.String(), status, time.Since(start))
	}()

	logger.Debug().Str("sql", stmt.SQL).Str("keys", stmt.ValueList).Msg("Executing archive query")

	cur, err := e.executor.Query(ctx, stmt)
	if err != nil {
		status = StatusError
		logger.Error().Err(err).Str("keys", stmt.ValueList).Msg("DB query error")
		return fmt.Errorf("failed to execute %s query on %s: %w", stmt.Kind, e.name, err)
	}
	defer func() {
		if cerr := cur.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("Failed to close cursor")
		}
	}()

	stats, err := e.aggregator.Aggregate(cur, sink)
	if err != nil {
		status = StatusError
		logger.Error().Err(err).Int("rows", stats.Rows).Msg("DB query error")
		return fmt.Errorf("failed to read %s results from %s: %w", stmt.Kind, e.name, err)
	}

	logger.Info().
		Int("rows", stats.Rows).
		Int("skipped", stats.Skipped).
		Int("new_patients", stats.Patients).
		Int("new_studies", stats.Studies).
		Int("new_series", stats.Series).
		Dur("duration", time.Since(start)).
		Msg("Archive query completed")
	return nil
}

// Session accumulates patients over repeated invocations.
// Passes over the same session are serialized.
type Session struct {
	engine *Engine
	mu     sync.Mutex
	sink   *Sink
}

// BuildFromPatientID runs the patient ID where template
func (s *Session) BuildFromPatientID(ctx context.Context, patientIDs ...string) error {
	return s.Build(ctx, KeyPatientID, patientIDs...)
}

// BuildFromStudyInstanceUID runs the study UID where template
func (s *Session) BuildFromStudyInstanceUID(ctx context.Context, studyInstanceUIDs ...string) error {
	return s.Build(ctx, KeyStudyInstanceUID, studyInstanceUIDs...)
}

// BuildFromStudyAccessionNumber runs the accession number where template
func (s *Session) BuildFromStudyAccessionNumber(ctx context.Context, accessionNumbers ...string) error {
	return s.Build(ctx, KeyAccessionNumber, accessionNumbers...)
}

// BuildFromSeriesInstanceUID runs the series UID where template
func (s *Session) BuildFromSeriesInstanceUID(ctx context.Context, seriesInstanceUIDs ...string) error {
	return s.Build(ctx, KeySeriesInstanceUID, seriesInstanceUIDs...)
}

// BuildFromSopInstanceUID runs the SOP instance UID where template
func (s *Session) BuildFromSopInstanceUID(ctx context.Context, sopInstanceUIDs ...string) error {
	return s.Build(ctx, KeySOPInstanceUID, sopInstanceUIDs...)
}

// Build queries the archive by keys of the given kind and adds the results
// to the session. Keys are validated before anything is executed.
func (s *Session) Build(ctx context.Context, kind KeyKind, keys ...string) error {
	stmt, err := s.engine.builder.BuildSearchQuery(kind, keys)
	if err != nil {
		return fmt.Errorf("failed to build %s query: %w", kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.run(ctx, stmt, s.sink)
}

// BuildFromParams runs one query per key kind present in p. Every kind is
// attempted; the errors are joined.
func (s *Session) BuildFromParams(ctx context.Context, p models.QueryParams) error {
	byKind := map[KeyKind][]string{
		KeyPatientID:         p.PatientIDs,
		KeyStudyInstanceUID:  p.StudyUIDs,
		KeyAccessionNumber:   p.AccessionNumbers,
		KeySeriesInstanceUID: p.SeriesUIDs,
		KeySOPInstanceUID:    p.SOPInstanceUIDs,
	}

	var errs []error
	ran := false
	for _, kind := range AllKeyKinds {
		keys := byKind[kind]
		if len(searchValues(keys)) == 0 {
			continue
		}
		ran = true
		if err := s.Build(ctx, kind, keys...); err != nil {
			errs = append(errs, err)
		}
	}
	if !ran {
		return ErrNoSearchKeys
	}
	return errors.Join(errs...)
}

// Patients returns the accumulated patients in insertion order
func (s *Session) Patients() []*models.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink.Patients()
}

// Counts totals the accumulated nodes
func (s *Session) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink.Counts()
}
