package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-analyst/pkg/llm"
	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
)

// runSession collects every event of one session.
func runSession(t *testing.T, svc AnalysisService, ctx context.Context, q models.Question) ([]models.StreamEvent, error) {
	t.Helper()
	events := make(chan models.StreamEvent, 16)
	err := svc.Analyze(ctx, q, events)
	close(events)

	var out []models.StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out, err
}

func stagesOf(events []models.StreamEvent) []models.Stage {
	var stages []models.Stage
	for _, ev := range events {
		if s, ok := ev.(models.StatusEvent); ok {
			stages = append(stages, s.Stage)
		}
	}
	return stages
}

func terminalsOf(events []models.StreamEvent) []models.StreamEvent {
	var out []models.StreamEvent
	for _, ev := range events {
		if ev.Terminal() {
			out = append(out, ev)
		}
	}
	return out
}

func newFixtureAnalysis(t *testing.T, generation llm.LLMClient, narration llm.LLMClient) AnalysisService {
	t.Helper()
	store := openFixtureStore(t)
	sc := loadFixtureSchema(t, store)
	return NewAnalysisService(
		sc,
		NewQueryGenerator(singleTier(generation), GeneratorConfig{Dialect: "sqlite"}, zap.NewNop()),
		NewQueryRunner(store, RunnerConfig{}, zap.NewNop()),
		NewVisualizationSynthesizer(ChartConfig{}, zap.NewNop()),
		NewNarrativeComposer(narration, 0, zap.NewNop()),
		0,
		zap.NewNop(),
	)
}

func TestAnalysisService_TopCustomersEndToEnd(t *testing.T) {
	generation := llm.NewStaticMockLLMClient("gen", topCustomersResponse)
	narration := llm.NewMockLLMClient()
	narration.GenerateResponseFunc = func(context.Context, string, string, float64) (*llm.GenerateResponseResult, error) {
		return nil, errors.New("HTTP 503")
	}
	svc := newFixtureAnalysis(t, generation, narration)

	events, err := runSession(t, svc, context.Background(), models.Question{Text: "top 3 customers by revenue"})
	require.NoError(t, err)

	assert.Equal(t, []models.Stage{
		models.StageReceived, models.StageGenerating, models.StageExecuting, models.StageSynthesizing,
	}, stagesOf(events))

	terminals := terminalsOf(events)
	require.Len(t, terminals, 1)
	assert.True(t, events[len(events)-1].Terminal(), "terminal event must be last")

	complete, ok := terminals[0].(models.CompleteEvent)
	require.True(t, ok, "expected complete event, got %#v", terminals[0])
	p := complete.Payload

	require.Len(t, p.TableData, 3)
	assert.Equal(t, "Stark Industries", p.TableData[0]["name"])
	assert.Equal(t, "Hooli", p.TableData[1]["name"])
	assert.Equal(t, "Tyrell Corp", p.TableData[2]["name"])
	var prev float64 = 1e12
	for _, row := range p.TableData {
		rev, ok := row["revenue"].(int64)
		if !ok {
			f, isFloat := row["revenue"].(float64)
			require.True(t, isFloat, "revenue is %T", row["revenue"])
			rev = int64(f)
		}
		assert.Less(t, float64(rev), prev)
		prev = float64(rev)
	}

	assert.NotEmpty(t, p.Visualizations)
	assert.Equal(t, "name", p.Visualizations[0].Encoding.XField)
	assert.Equal(t, "revenue", p.Visualizations[0].Encoding.YField)
	assert.Equal(t, "SELECT name, revenue FROM customers ORDER BY revenue DESC LIMIT 3", p.SQLQuery)
	assert.Equal(t, int64(3), p.RowCount)
	assert.NotEmpty(t, p.SessionID)
	// Narrative model failed, so the generation answer is used.
	assert.Equal(t, "The top customers by revenue are listed.", p.Answer)
	assert.Equal(t, []string{"Focus account management on the top 3"}, p.Recommendations)

	frame, err := json.Marshal(complete)
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"type":"complete"`)
	assert.Contains(t, string(frame), `"xAxis":"name"`)
}

func TestAnalysisService_OverflowingFloatStillCompletes(t *testing.T) {
	generation := llm.NewStaticMockLLMClient("gen", `{"sql": "SELECT 1e999 AS x, 'a' AS label"}`)
	svc := newFixtureAnalysis(t, generation, llm.NewStaticMockLLMClient("narrator", `{"answer": "One row."}`))

	events, err := runSession(t, svc, context.Background(), models.Question{Text: "how big can a number get"})
	require.NoError(t, err)

	terminals := terminalsOf(events)
	require.Len(t, terminals, 1)
	complete, ok := terminals[0].(models.CompleteEvent)
	require.True(t, ok, "expected complete event, got %#v", terminals[0])
	require.Len(t, complete.Payload.TableData, 1)
	assert.Nil(t, complete.Payload.TableData[0]["x"])

	_, err = json.Marshal(complete)
	require.NoError(t, err)
}

func TestAnalysisService_GenerationFailure(t *testing.T) {
	generation := llm.NewStaticMockLLMClient("gen", "I cannot answer that.")
	svc := newFixtureAnalysis(t, generation, nil)

	events, err := runSession(t, svc, context.Background(), models.Question{Text: "q"})
	require.NoError(t, err)

	assert.Equal(t, []models.Stage{models.StageReceived, models.StageGenerating}, stagesOf(events))
	terminals := terminalsOf(events)
	require.Len(t, terminals, 1)
	failed, ok := terminals[0].(models.FailedEvent)
	require.True(t, ok)
	assert.Equal(t, "generation_no_usable_output", failed.Code)
}

func TestAnalysisService_RejectedQueryFails(t *testing.T) {
	generation := llm.NewStaticMockLLMClient("gen", `{"sql": "DROP TABLE customers"}`)
	svc := newFixtureAnalysis(t, generation, nil)

	events, err := runSession(t, svc, context.Background(), models.Question{Text: "delete everything"})
	require.NoError(t, err)

	assert.Equal(t, []models.Stage{models.StageReceived, models.StageGenerating, models.StageExecuting}, stagesOf(events))
	failed, ok := events[len(events)-1].(models.FailedEvent)
	require.True(t, ok)
	assert.Equal(t, "execution_rejected", failed.Code)
	assert.Contains(t, failed.Message, "forbidden_keyword")
}

func TestAnalysisService_EmptyQuestion(t *testing.T) {
	svc := newFixtureAnalysis(t, llm.NewMockLLMClient(), nil)

	events, err := runSession(t, svc, context.Background(), models.Question{})
	require.NoError(t, err)
	failed, ok := events[len(events)-1].(models.FailedEvent)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidQuestion, failed.Code)
	assert.Equal(t, "invalid input: query must not be empty", failed.Message)
}

func TestAnalysisService_NoSchemaLoaded(t *testing.T) {
	svc := NewAnalysisService(&staticSchema{}, nil, nil, nil, nil, 0, zap.NewNop())

	events, err := runSession(t, svc, context.Background(), models.Question{Text: "q"})
	require.NoError(t, err)
	failed, ok := events[len(events)-1].(models.FailedEvent)
	require.True(t, ok)
	assert.Equal(t, CodeSchemaUnavailable, failed.Code)
	assert.Contains(t, failed.Message, "schema is not loaded")
}

// blockingExecutor blocks every query until its context ends.
type blockingExecutor struct {
	started   chan struct{}
	cancelled chan error
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{started: make(chan struct{}, 1), cancelled: make(chan error, 1)}
}

func (b *blockingExecutor) Query(ctx context.Context, _ string, _ int) (*datasource.QueryExecutionResult, error) {
	b.started <- struct{}{}
	<-ctx.Done()
	b.cancelled <- ctx.Err()
	return nil, ctx.Err()
}

func (b *blockingExecutor) Count(ctx context.Context, _ string) (int64, error) { return 0, nil }
func (b *blockingExecutor) Dialect() datasource.Dialect {
	return datasource.Dialect{Name: "sqlite", MaxParameters: 999}
}
func (b *blockingExecutor) Close() error { return nil }

func newBlockingAnalysis(exec *blockingExecutor, runner RunnerConfig, sessionTimeout time.Duration) AnalysisService {
	return NewAnalysisService(
		&staticSchema{desc: fixedSchema()},
		NewQueryGenerator(singleTier(llm.NewStaticMockLLMClient("gen", topCustomersResponse)), GeneratorConfig{}, zap.NewNop()),
		NewQueryRunner(exec, runner, zap.NewNop()),
		NewVisualizationSynthesizer(ChartConfig{}, zap.NewNop()),
		NewNarrativeComposer(nil, 0, zap.NewNop()),
		sessionTimeout,
		zap.NewNop(),
	)
}

func TestAnalysisService_CancelDuringExecuting(t *testing.T) {
	exec := newBlockingExecutor()
	svc := newBlockingAnalysis(exec, RunnerConfig{Timeout: 10 * time.Second}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-exec.started
		cancel()
	}()

	events, err := runSession(t, svc, ctx, models.Question{Text: "top 3 customers by revenue"})
	assert.ErrorIs(t, err, context.Canceled)

	select {
	case cause := <-exec.cancelled:
		assert.ErrorIs(t, cause, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("store query was not cancelled")
	}

	assert.Empty(t, terminalsOf(events))
	assert.Equal(t, models.StageExecuting, stagesOf(events)[len(stagesOf(events))-1])
}

func TestAnalysisService_QueryTimeout(t *testing.T) {
	exec := newBlockingExecutor()
	svc := newBlockingAnalysis(exec, RunnerConfig{Timeout: 20 * time.Millisecond}, 0)

	events, err := runSession(t, svc, context.Background(), models.Question{Text: "q"})
	require.NoError(t, err)
	failed, ok := events[len(events)-1].(models.FailedEvent)
	require.True(t, ok)
	assert.Equal(t, "execution_timeout", failed.Code)
}

func TestAnalysisService_SessionTimeout(t *testing.T) {
	exec := newBlockingExecutor()
	svc := newBlockingAnalysis(exec, RunnerConfig{Timeout: 10 * time.Second}, 30*time.Millisecond)

	events, err := runSession(t, svc, context.Background(), models.Question{Text: "q"})
	require.NoError(t, err)
	require.Len(t, terminalsOf(events), 1)
	failed, ok := events[len(events)-1].(models.FailedEvent)
	require.True(t, ok)
	assert.Equal(t, CodeSessionTimeout, failed.Code)
}

func TestAnalysisService_Ask(t *testing.T) {
	svc := newFixtureAnalysis(t, llm.NewStaticMockLLMClient("gen", topCustomersResponse), nil)

	ev, err := svc.Ask(context.Background(), models.Question{Text: "top 3 customers by revenue"})
	require.NoError(t, err)
	complete, ok := ev.(models.CompleteEvent)
	require.True(t, ok)
	assert.Len(t, complete.Payload.TableData, 3)
}

func TestAnalysisService_AskCancelled(t *testing.T) {
	exec := newBlockingExecutor()
	svc := newBlockingAnalysis(exec, RunnerConfig{Timeout: 10 * time.Second}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-exec.started
		cancel()
	}()

	_, err := svc.Ask(ctx, models.Question{Text: "q"})
	assert.ErrorIs(t, err, context.Canceled)
}
