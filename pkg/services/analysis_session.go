package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-analyst/pkg/logging"
	"github.com/ekaya-inc/ekaya-analyst/pkg/metrics"
	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
	"github.com/ekaya-inc/ekaya-analyst/pkg/typeinfer"
)

// DefaultSessionTimeout bounds a whole analysis session.
const DefaultSessionTimeout = 60 * time.Second

// Error codes for failures outside the generation/execution taxonomy.
const (
	CodeSessionTimeout    = "session_timeout"
	CodeSchemaUnavailable = "schema_unavailable"
	CodeInvalidQuestion   = "invalid_question"
)

// ErrNoTerminalEvent is returned by Ask when a session ended without a result,
// which only happens when ctx was cancelled.
var ErrNoTerminalEvent = errors.New("analysis session ended without a result")

var (
	errEmptyQuestion   = fmt.Errorf("%w: query must not be empty", apperrors.ErrInvalidInput)
	errSchemaNotLoaded = fmt.Errorf("%w: dataset schema is not loaded", apperrors.ErrStoreUnavailable)
)

// AnalysisService runs question-to-answer sessions.
type AnalysisService interface {
	// Analyze runs one session and streams its events.
	// Every session ends with exactly one terminal event unless ctx is
	// cancelled, in which case nothing more is sent and ctx.Err() is returned.
	// NOTE: Caller owns the channel and is responsible for closing it. This
	// service writes events but never closes the channel.
	Analyze(ctx context.Context, question models.Question, eventChan chan<- models.StreamEvent) error

	// Ask runs a session to completion and returns only its terminal event.
	Ask(ctx context.Context, question models.Question) (models.StreamEvent, error)
}

type analysisService struct {
	schema      SchemaContextService
	generator   QueryGenerator
	runner      QueryRunner
	synthesizer VisualizationSynthesizer
	composer    NarrativeComposer
	timeout     time.Duration
	logger      *zap.Logger
}

// NewAnalysisService wires the pipeline stages into a session controller.
func NewAnalysisService(
	schema SchemaContextService,
	generator QueryGenerator,
	runner QueryRunner,
	synthesizer VisualizationSynthesizer,
	composer NarrativeComposer,
	timeout time.Duration,
	logger *zap.Logger,
) AnalysisService {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &analysisService{
		schema:      schema,
		generator:   generator,
		runner:      runner,
		synthesizer: synthesizer,
		composer:    composer,
		timeout:     timeout,
		logger:      logger.Named("analysis"),
	}
}

var _ AnalysisService = (*analysisService)(nil)

// session carries per-request state; the schema handle is fixed at start so a
// concurrent reload does not affect it.
type session struct {
	id       string
	question models.Question
	schema   *models.SchemaDescriptor
	events   chan<- models.StreamEvent
	parent   context.Context
	logger   *zap.Logger
}

// emit sends ev unless the caller has gone away. It reports whether the event
// was delivered.
func (s *session) emit(ev models.StreamEvent) bool {
	if s.parent.Err() != nil {
		return false
	}
	select {
	case s.events <- ev:
		return true
	case <-s.parent.Done():
		return false
	}
}

func (s *session) status(stage models.Stage, message string) bool {
	return s.emit(models.StatusEvent{Stage: stage, Message: message})
}

func (a *analysisService) Analyze(ctx context.Context, question models.Question, eventChan chan<- models.StreamEvent) error {
	sess := &session{
		id:       uuid.NewString(),
		question: question,
		schema:   a.schema.Current(),
		events:   eventChan,
		parent:   ctx,
	}
	sess.logger = a.logger.With(zap.String("session_id", sess.id))

	sessionCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	sess.logger.Info("Analysis session started", zap.String("data_file", question.DataFile))

	if !sess.status(models.StageReceived, "Question received") {
		return a.cancelled(sess)
	}
	if question.Text == "" {
		return a.fail(sess, sessionCtx, errEmptyQuestion)
	}
	if sess.schema == nil {
		return a.fail(sess, sessionCtx, errSchemaNotLoaded)
	}

	// Generating
	if !sess.status(models.StageGenerating, "Generating SQL query") {
		return a.cancelled(sess)
	}
	start := time.Now()
	generated, err := a.generator.Generate(sessionCtx, question, sess.schema)
	metrics.ObserveStage(string(models.StageGenerating), time.Since(start))
	if err != nil {
		return a.fail(sess, sessionCtx, err)
	}

	// Executing
	if !sess.status(models.StageExecuting, "Executing query") {
		return a.cancelled(sess)
	}
	start = time.Now()
	rs, err := a.runner.Run(sessionCtx, generated, sess.schema)
	metrics.ObserveStage(string(models.StageExecuting), time.Since(start))
	if err != nil {
		return a.fail(sess, sessionCtx, err)
	}

	// Synthesizing: charts and narrative are independent.
	if !sess.status(models.StageSynthesizing, "Building charts and summary") {
		return a.cancelled(sess)
	}
	start = time.Now()
	var (
		wg        sync.WaitGroup
		charts    []models.ChartDescriptor
		narrative models.Narrative
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		charts = a.synthesizer.Synthesize(rs, generated.ChartHints)
	}()
	go func() {
		defer wg.Done()
		narrative = a.composer.Compose(sessionCtx, question, rs, generated)
	}()
	wg.Wait()
	metrics.ObserveStage(string(models.StageSynthesizing), time.Since(start))

	if ctx.Err() != nil {
		return a.cancelled(sess)
	}

	payload := buildPayload(sess.id, rs, generated, charts, narrative)
	if !sess.emit(models.CompleteEvent{Payload: payload}) {
		return a.cancelled(sess)
	}

	metrics.ObserveSession(string(models.StageCompleted))
	sess.logger.Info("Analysis session completed",
		zap.Int64("rows", payload.RowCount),
		zap.Int("charts", len(payload.Visualizations)),
		zap.Bool("narrative_from_model", narrative.FromModel))
	return nil
}

// fail turns a stage error into the terminal event. Cancellation by the caller
// produces no event; the session deadline produces session_timeout.
func (a *analysisService) fail(sess *session, sessionCtx context.Context, err error) error {
	if sess.parent.Err() != nil {
		return a.cancelled(sess)
	}
	if sessionCtx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
		return a.finishFailed(sess, CodeSessionTimeout, "analysis did not finish within "+a.timeout.String())
	}
	return a.finishFailed(sess, ErrorCode(err), logging.SanitizeError(err))
}

func (a *analysisService) finishFailed(sess *session, code, message string) error {
	metrics.ObserveSession(string(models.StageFailed))
	sess.logger.Warn("Analysis session failed", zap.String("code", code), zap.String("error", message))
	if !sess.emit(models.FailedEvent{Code: code, Message: message}) {
		return a.cancelled(sess)
	}
	return nil
}

func (a *analysisService) cancelled(sess *session) error {
	metrics.ObserveSession("cancelled")
	sess.logger.Info("Analysis session cancelled by caller")
	if err := sess.parent.Err(); err != nil {
		return err
	}
	return context.Canceled
}

func (a *analysisService) Ask(ctx context.Context, question models.Question) (models.StreamEvent, error) {
	events := make(chan models.StreamEvent, 8)
	done := make(chan error, 1)
	go func() {
		done <- a.Analyze(ctx, question, events)
		close(events)
	}()

	var terminal models.StreamEvent
	for ev := range events {
		if ev.Terminal() {
			terminal = ev
		}
	}
	if err := <-done; err != nil {
		return nil, err
	}
	if terminal == nil {
		return nil, ErrNoTerminalEvent
	}
	return terminal, nil
}

func buildPayload(id string, rs *models.ResultSet, generated *models.GeneratedQuery, charts []models.ChartDescriptor, narrative models.Narrative) models.AnalysisPayload {
	records := rs.Records()
	for _, rec := range records {
		for k, v := range rec {
			rec[k] = typeinfer.Normalize(v)
		}
	}
	if records == nil {
		records = []map[string]any{}
	}
	if charts == nil {
		charts = []models.ChartDescriptor{}
	}
	recs := narrative.Recommendations
	if recs == nil {
		recs = []string{}
	}

	return models.AnalysisPayload{
		SessionID:       id,
		Answer:          narrative.Answer,
		TextSummary:     narrative.TextSummary,
		SQLQuery:        rs.SQL,
		Columns:         rs.Columns,
		TableData:       records,
		RowCount:        rs.RowCountTotal,
		ExecutionTime:   float64(rs.ExecutionMillis) / 1000,
		Truncated:       rs.Truncated,
		Visualizations:  charts,
		Recommendations: recs,
	}
}
