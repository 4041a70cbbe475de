package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ppiankov/factloop/internal/checkpoint"
	"github.com/ppiankov/factloop/internal/factcheck"
	"github.com/ppiankov/factloop/internal/llm"
	"github.com/ppiankov/factloop/internal/model"
	"github.com/ppiankov/factloop/internal/refine"
	"github.com/ppiankov/factloop/internal/worker"
)

var _ worker.Checker = (*Pipeline)(nil)

type scriptedProvider struct {
	replies  []string
	requests []llm.CompletionRequest
}

func (s *scriptedProvider) Name() string                     { return "scripted" }
func (s *scriptedProvider) IsAvailable(context.Context) bool { return true }

func (s *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	text := s.replies[0]
	s.replies = s.replies[1:]
	return &llm.CompletionResponse{Text: text}, nil
}

type failingIdentifier struct{}

func (failingIdentifier) Identify(context.Context, model.Claim) (*checkpoint.Result, error) {
	return &checkpoint.Result{Status: model.CheckPointsFailed}, factcheck.ErrUpstreamUnavailable
}

type staticGatherer struct {
	records []model.EvidenceRecord
	calls   int
}

func (g *staticGatherer) Gather(context.Context, model.Claim) ([]model.EvidenceRecord, model.EvidenceStatus, error) {
	g.calls++
	if len(g.records) == 0 {
		return nil, model.EvidenceEmpty, nil
	}
	return g.records, model.EvidenceOK, nil
}

type memoryArchive struct {
	saved []*model.Result
}

func (m *memoryArchive) Save(_ context.Context, r *model.Result) error {
	m.saved = append(m.saved, r)
	return nil
}

var evidence = []model.EvidenceRecord{
	{SourceType: model.SourceWire, Title: "Power plant fire", Date: "2025-09-11", URL: "https://www.cna.com.tw/news/aall/202509110109.aspx"},
	{SourceType: model.SourceFactCheckReport, Title: "Nuclear rumor", Label: "錯誤", URL: "https://tfc-taiwan.org.tw/articles/1"},
}

const (
	draftReply = "Verdict: false\nThe units started during the outage were gas turbines, not reactors."

	highEvaluation = `{"persuasiveness":5,"logical_correctness":5,"completeness":5,"conciseness":4,"agreement":4,"weakest_aspect":"conciseness","improvement_question":"Which official statement confirms the turbines?","average":4.6}`
	lowEvaluation  = `{"persuasiveness":3,"logical_correctness":3,"completeness":2,"conciseness":4,"agreement":3,"weakest_aspect":"completeness","improvement_question":"Which official statement confirms the turbines?","average":3.0}`

	reportReply = `**Verdict: false**

The units started during the outage were gas turbines on the plant site, not reactors. [1]

A prior fact-check reached the same conclusion. [1],[2]

References:
[1]: https://www.cna.com.tw/news/aall/202509110109.aspx
[2]: https://tfc-taiwan.org.tw/articles/1
`
)

func newTestPipeline(t *testing.T, provider llm.Provider, gatherer Gatherer, archive Archive, policy refine.Policy) *Pipeline {
	t.Helper()
	logger := zaptest.NewLogger(t)
	opts := factcheck.Options{DraftMinChars: 10, DraftMaxChars: 300, Logger: logger}
	controller := refine.NewController(
		factcheck.NewDrafter(provider, opts),
		factcheck.NewEvaluator(provider, opts),
		factcheck.NewSynthesizer(provider, opts),
		policy,
		refine.WithLogger(logger),
	)
	return NewPipeline(failingIdentifier{}, gatherer, controller, archive, logger)
}

func TestCheck_DegradedCheckPoints(t *testing.T) {
	provider := &scriptedProvider{replies: []string{draftReply, highEvaluation, reportReply}}
	archive := &memoryArchive{}
	p := newTestPipeline(t, provider, &staticGatherer{records: evidence}, archive, refine.DefaultPolicy())

	result, err := p.Check(context.Background(), model.Claim{Text: "  Reactor restarted during the outage  "})
	require.NoError(t, err)

	assert.Equal(t, "Reactor restarted during the outage", result.Claim.Text)
	assert.Equal(t, model.CheckPointsFailed, result.CheckPointStatus)
	assert.Nil(t, result.CheckPoints)
	assert.Contains(t, provider.requests[0].Prompt, model.NoCheckPointsMarker)

	require.NotNil(t, result.InitialDraft)
	assert.True(t, result.InitialDraft.Tag.Valid())
	assert.Equal(t, "threshold", result.TerminatedBy)
	require.NotNil(t, result.Report)
	assert.Equal(t, model.TagFalse, result.Report.Tag)
	assert.Len(t, result.Report.References, 2)

	require.Len(t, archive.saved, 1)
	assert.Equal(t, result.SessionID, archive.saved[0].SessionID)
}

func TestCheck_AutoRoundsUntilLimit(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		draftReply, lowEvaluation,
		draftReply, strings.Replace(lowEvaluation, "Which official statement confirms the turbines?", "Who operated the turbines that night?", 1),
		reportReply,
	}}
	p := newTestPipeline(t, provider, &staticGatherer{records: evidence}, nil, refine.Policy{MaxRounds: 1, Threshold: 4.5})

	result, err := p.Check(context.Background(), model.Claim{Text: "Reactor restarted during the outage"})
	require.NoError(t, err)

	assert.Equal(t, "max_rounds", result.TerminatedBy)
	require.Len(t, result.Rounds, 1)
	assert.Equal(t, model.QuestionAISuggested, result.Rounds[0].Source)
	assert.Equal(t, 2, result.TotalRounds())
	assert.Contains(t, provider.requests[4].Prompt, "Round 1")
}

func TestCheck_OracleFailureSurfaces(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"no verdict line here"}}
	archive := &memoryArchive{}
	p := newTestPipeline(t, provider, &staticGatherer{}, archive, refine.DefaultPolicy())

	result, err := p.Check(context.Background(), model.Claim{Text: "Reactor restarted"})
	require.Error(t, err)
	assert.ErrorIs(t, err, factcheck.ErrInvalidOutput)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Error)
	assert.Nil(t, result.Report)
	assert.Len(t, archive.saved, 1, "failed sessions are archived too")
}

func TestPrepare(t *testing.T) {
	gatherer := &staticGatherer{records: evidence}
	p := newTestPipeline(t, &scriptedProvider{}, gatherer, nil, refine.DefaultPolicy())

	_, err := p.Prepare(context.Background(), model.Claim{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyClaim)

	first, err := p.Prepare(context.Background(), model.Claim{Text: "claim"})
	require.NoError(t, err)
	second, err := p.Prepare(context.Background(), model.Claim{Text: "claim"})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Evidence, second.Evidence)
	assert.Equal(t, refine.StateDrafting, first.State())
	assert.Equal(t, model.EvidenceOK, first.EvidenceStatus)
	assert.Zero(t, first.CompletedRounds())
}

func TestPrepare_LeavesEarlierSessionsAlone(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		draftReply, lowEvaluation,
		draftReply, strings.Replace(lowEvaluation, "Which official statement confirms the turbines?", "Who operated the turbines that night?", 1),
	}}
	gatherer := &staticGatherer{records: evidence}
	p := newTestPipeline(t, provider, gatherer, nil, refine.Policy{MaxRounds: 3, Threshold: 4.5})
	ctx := context.Background()
	claim := model.Claim{Text: "Reactor restarted during the outage"}

	first, err := p.Prepare(ctx, claim)
	require.NoError(t, err)
	require.NoError(t, p.Controller().Start(ctx, first))
	require.NoError(t, p.Controller().Apply(ctx, first, refine.Decision{Action: refine.ActionAccept}))

	rounds := first.Rounds()
	require.Len(t, rounds, 1)
	state, draft := first.State(), first.CurrentDraft()

	second, err := p.Prepare(ctx, claim)
	require.NoError(t, err)

	assert.Equal(t, rounds, first.Rounds())
	assert.Equal(t, state, first.State())
	assert.Equal(t, draft, first.CurrentDraft())
	assert.Equal(t, refine.StateAwaitingDecision, first.State())

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Evidence, second.Evidence)
	assert.Equal(t, refine.StateDrafting, second.State())
	assert.Zero(t, second.CompletedRounds())
	assert.Nil(t, second.CurrentDraft())
	assert.Equal(t, 2, gatherer.calls)
}

func TestRenderer(t *testing.T) {
	provider := &scriptedProvider{replies: []string{draftReply, highEvaluation, reportReply}}
	p := newTestPipeline(t, provider, &staticGatherer{records: evidence}, nil, refine.DefaultPolicy())
	result, err := p.Check(context.Background(), model.Claim{Text: "Reactor restarted during the outage"})
	require.NoError(t, err)

	r := NewRenderer(true)
	md := r.Markdown(result)
	assert.Contains(t, md, "**Verdict:** 錯誤 (false)")
	assert.Contains(t, md, "[2]: https://tfc-taiwan.org.tw/articles/1")
	assert.Contains(t, md, "## Evidence")
	assert.Contains(t, md, "rated 錯誤")
	assert.Contains(t, md, "finished by threshold")

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "out", "result.json")
	require.NoError(t, r.WriteJSON(result, jsonPath))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)

	var decoded model.Result
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, result.SessionID, decoded.SessionID)
	assert.Equal(t, model.TagFalse, decoded.Report.Tag)

	var summary strings.Builder
	r.Summary(&summary, result)
	assert.Contains(t, summary.String(), "Evidence:      2 (ok)")
}
