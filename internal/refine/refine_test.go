package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ppiankov/factloop/internal/factcheck"
	"github.com/ppiankov/factloop/internal/model"
)

type fakeDrafter struct {
	requests []factcheck.DraftRequest
	err      error
}

func (f *fakeDrafter) Draft(_ context.Context, req factcheck.DraftRequest) (*model.Draft, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	n := len(f.requests)
	if req.OnDelta != nil {
		req.OnDelta(fmt.Sprintf("draft %d", n))
	}
	return &model.Draft{
		Tag:         model.TagFalse,
		Explanation: fmt.Sprintf("explanation %d", n),
		Text:        fmt.Sprintf("Verdict: false\nexplanation %d", n),
	}, nil
}

type fakeEvaluator struct {
	requests []factcheck.EvaluateRequest
	evals    []model.Evaluation // Served in order, the last one repeats
	err      error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, req factcheck.EvaluateRequest) (*model.Evaluation, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	i := len(f.requests) - 1
	if i >= len(f.evals) {
		i = len(f.evals) - 1
	}
	e := f.evals[i]
	return &e, nil
}

type fakeSynthesizer struct {
	requests []factcheck.SynthesizeRequest
	err      error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, req factcheck.SynthesizeRequest) (*model.FinalReport, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &model.FinalReport{Tag: model.TagFalse, Markdown: "**Verdict**: false"}, nil
}

func evaluation(avg float64, question string) model.Evaluation {
	score := int(avg)
	return model.Evaluation{
		Scores: model.Scores{
			Persuasiveness:     score,
			LogicalCorrectness: score,
			Completeness:       score,
			Conciseness:        score,
			Agreement:          score,
		},
		Average:  avg,
		Weakest:  model.DimPersuasiveness,
		Question: question,
	}
}

type harness struct {
	drafter     *fakeDrafter
	evaluator   *fakeEvaluator
	synthesizer *fakeSynthesizer
	controller  *Controller
	session     *Session
}

func newHarness(t *testing.T, policy Policy, evals ...model.Evaluation) *harness {
	t.Helper()
	h := &harness{
		drafter:     &fakeDrafter{},
		evaluator:   &fakeEvaluator{evals: evals},
		synthesizer: &fakeSynthesizer{},
	}
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.controller = NewController(h.drafter, h.evaluator, h.synthesizer, policy,
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return clock }))
	h.session = NewSession(Inputs{
		Claim:            model.Claim{Text: "Tap water in Taipei contains lead"},
		CheckPointStatus: model.CheckPointsFailed,
		EvidenceStatus:   model.EvidenceEmpty,
	})
	return h
}

func TestStartAwaitsDecision(t *testing.T) {
	h := newHarness(t, DefaultPolicy(), evaluation(3, "Which water plant was tested?"))

	require.NoError(t, h.controller.Start(context.Background(), h.session))

	assert.Equal(t, StateAwaitingDecision, h.session.State())
	assert.Equal(t, 0, h.session.CompletedRounds())
	require.NotNil(t, h.session.CurrentDraft())
	assert.Equal(t, model.TagFalse, h.session.CurrentDraft().Tag)
	require.Len(t, h.drafter.requests, 1)
	assert.Empty(t, h.drafter.requests[0].Question)
	assert.Nil(t, h.drafter.requests[0].CheckPoints, "failed check points stay null")
	assert.Empty(t, h.synthesizer.requests)
}

func TestStartTwiceRejected(t *testing.T) {
	h := newHarness(t, DefaultPolicy(), evaluation(3, "Which water plant was tested?"))
	require.NoError(t, h.controller.Start(context.Background(), h.session))

	err := h.controller.Start(context.Background(), h.session)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestThresholdFinalizesImmediately(t *testing.T) {
	h := newHarness(t, DefaultPolicy(), evaluation(4.6, "Anything else?"))

	require.NoError(t, h.controller.Start(context.Background(), h.session))

	assert.Equal(t, StateDone, h.session.State())
	assert.Equal(t, TerminatedThreshold, h.session.TerminatedBy())
	require.Len(t, h.synthesizer.requests, 1)
	assert.NotNil(t, h.session.Report())
}

func TestStrictPolicyIgnoresThreshold(t *testing.T) {
	policy := DefaultPolicy()
	policy.Strict = true
	h := newHarness(t, policy, evaluation(5, "Anything else?"))

	require.NoError(t, h.controller.Start(context.Background(), h.session))

	assert.Equal(t, StateAwaitingDecision, h.session.State())
	assert.True(t, policy.MeetsThreshold(h.session.Pending()))
	assert.Empty(t, h.synthesizer.requests)
}

func TestThreeUserRoundsReachSynthesizer(t *testing.T) {
	h := newHarness(t, DefaultPolicy(), evaluation(3, "Which water plant was tested?"))
	ctx := context.Background()
	require.NoError(t, h.controller.Start(ctx, h.session))

	questions := []string{"Who ran the test?", "When was the sample taken?", "What is the legal limit?"}
	for i, q := range questions {
		require.Equal(t, StateAwaitingDecision, h.session.State(), "round %d", i+1)
		require.NoError(t, h.controller.Apply(ctx, h.session, Decision{Action: ActionCustom, Question: q}))
	}

	assert.Equal(t, StateDone, h.session.State())
	assert.Equal(t, TerminatedMaxRounds, h.session.TerminatedBy())

	rounds := h.session.Rounds()
	require.Len(t, rounds, 3)
	for i, r := range rounds {
		assert.Equal(t, i+1, r.Round)
		assert.Equal(t, questions[i], r.Question)
		assert.Equal(t, model.QuestionUserSupplied, r.Source)
		assert.Equal(t, fmt.Sprintf("explanation %d", i+1), r.Draft.Explanation)
	}

	require.Len(t, h.synthesizer.requests, 1)
	history := h.synthesizer.requests[0].History
	assert.Equal(t, 1, strings.Count(history, "Initial draft:"))
	assert.Equal(t, 3, strings.Count(history, "Evaluated draft:"))
	assert.Contains(t, history, "Round 3")
	assert.NotContains(t, history, "Round 4")
	assert.Contains(t, history, "explanation 4", "latest draft is included")

	assert.Len(t, h.drafter.requests, 4)
	assert.Equal(t, "What is the legal limit?", h.drafter.requests[3].Question)
	require.NotNil(t, h.drafter.requests[3].Previous)
	assert.Equal(t, "explanation 3", h.drafter.requests[3].Previous.Explanation)
	assert.Equal(t, questions, h.evaluator.requests[3].AskedQuestions)

	result := h.session.Result()
	assert.Equal(t, 4, result.TotalRounds())
	assert.Equal(t, "explanation 1", result.InitialDraft.Explanation)
	assert.Equal(t, "explanation 4", result.FinalDraft.Explanation)
}

func TestAcceptUsesSuggestedQuestion(t *testing.T) {
	h := newHarness(t, DefaultPolicy(), evaluation(3, "Which water plant was tested?"), evaluation(3, "Who ran the test?"))
	ctx := context.Background()
	require.NoError(t, h.controller.Start(ctx, h.session))

	require.NoError(t, h.controller.Apply(ctx, h.session, Decision{Action: ActionAccept}))

	rounds := h.session.Rounds()
	require.Len(t, rounds, 1)
	assert.Equal(t, "Which water plant was tested?", rounds[0].Question)
	assert.Equal(t, model.QuestionAISuggested, rounds[0].Source)
	assert.Equal(t, "Who ran the test?", h.session.Pending().Question)
}

func TestDuplicateQuestionRejected(t *testing.T) {
	dup := evaluation(3, "Who ran the test?")
	dup.DuplicateQuestion = true
	h := newHarness(t, DefaultPolicy(), dup)
	ctx := context.Background()
	require.NoError(t, h.controller.Start(ctx, h.session))

	err := h.controller.Apply(ctx, h.session, Decision{Action: ActionAccept})
	assert.ErrorIs(t, err, factcheck.ErrDuplicateQuestion)
	assert.Equal(t, StateAwaitingDecision, h.session.State())
	assert.Equal(t, 0, h.session.CompletedRounds())
	assert.Len(t, h.drafter.requests, 1)

	require.NoError(t, h.controller.Apply(ctx, h.session, Decision{Action: ActionCustom, Question: "What lab did the test?"}))
	assert.Equal(t, 1, h.session.CompletedRounds())
}

func TestEmptyCustomQuestionRejected(t *testing.T) {
	h := newHarness(t, DefaultPolicy(), evaluation(3, "Which water plant was tested?"))
	ctx := context.Background()
	require.NoError(t, h.controller.Start(ctx, h.session))

	err := h.controller.Apply(ctx, h.session, Decision{Action: ActionCustom, Question: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Equal(t, StateAwaitingDecision, h.session.State())
}

func TestStopFinalizes(t *testing.T) {
	h := newHarness(t, DefaultPolicy(), evaluation(3, "Which water plant was tested?"))
	ctx := context.Background()
	require.NoError(t, h.controller.Start(ctx, h.session))

	require.NoError(t, h.controller.Apply(ctx, h.session, Decision{Action: ActionStop}))

	assert.Equal(t, StateDone, h.session.State())
	assert.Equal(t, TerminatedStopped, h.session.TerminatedBy())
	history := h.synthesizer.requests[0].History
	assert.Contains(t, history, "Initial draft:")
	assert.NotContains(t, history, "Latest draft:")

	err := h.controller.Apply(ctx, h.session, Decision{Action: ActionStop})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRoundBound(t *testing.T) {
	policy := Policy{MaxRounds: 2, Strict: true, Threshold: 4.5}
	h := newHarness(t, policy, evaluation(3, "Which water plant was tested?"))

	result, err := h.controller.Run(context.Background(), h.session, AutoDecider{})
	require.NoError(t, err)

	assert.Len(t, result.Rounds, 2)
	assert.Equal(t, string(TerminatedMaxRounds), result.TerminatedBy)
	assert.Len(t, h.drafter.requests, 3)
	assert.Len(t, h.evaluator.requests, 3)
}

func TestAutoDeciderStopsOnDuplicate(t *testing.T) {
	dup := evaluation(3, "Which water plant was tested?")
	dup.DuplicateQuestion = true
	h := newHarness(t, DefaultPolicy(), evaluation(3, "Which water plant was tested?"), dup)

	result, err := h.controller.Run(context.Background(), h.session, AutoDecider{})
	require.NoError(t, err)

	assert.Len(t, result.Rounds, 1)
	assert.Equal(t, string(TerminatedStopped), result.TerminatedBy)
}

func TestEvaluatorFailureFailsSession(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.evaluator.err = &factcheck.OracleCallError{Stage: factcheck.StageEvaluate, Err: errors.New("timeout")}

	_, err := h.controller.Run(context.Background(), h.session, AutoDecider{})
	require.Error(t, err)
	assert.ErrorIs(t, err, factcheck.ErrOracleCallFailed)
	assert.Equal(t, StateFailed, h.session.State())
	assert.Equal(t, err, h.session.Err())
	assert.Len(t, h.evaluator.requests, 1, "no retry")

	err = h.controller.Apply(context.Background(), h.session, Decision{Action: ActionStop})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSynthesizerFailureFailsSession(t *testing.T) {
	h := newHarness(t, DefaultPolicy(), evaluation(5, "Anything else?"))
	h.synthesizer.err = &factcheck.CitationOutOfRangeError{Index: 3}

	err := h.controller.Start(context.Background(), h.session)
	assert.ErrorIs(t, err, factcheck.ErrCitationOutOfRange)
	assert.Equal(t, StateFailed, h.session.State())
	assert.Nil(t, h.session.Report())
}

func TestChannelDecider(t *testing.T) {
	h := newHarness(t, DefaultPolicy(), evaluation(3, "Which water plant was tested?"))
	ch := make(chan Decision, 2)
	ch <- Decision{Action: ActionCustom, Question: "Who ran the test?"}
	close(ch)

	result, err := h.controller.Run(context.Background(), h.session, NewChannelDecider(ch))
	require.NoError(t, err)
	assert.Len(t, result.Rounds, 1)
	assert.Equal(t, string(TerminatedStopped), result.TerminatedBy)
}

func TestChannelDeciderHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChannelDecider(make(chan Decision)).Decide(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestObserverSeesStates(t *testing.T) {
	h := newHarness(t, DefaultPolicy(), evaluation(3, "Which water plant was tested?"))
	var states []State
	var deltas []string
	h.session.Observe(Observer{
		OnState: func(_ *Session, st State) { states = append(states, st) },
		OnDelta: func(stage factcheck.Stage, d string) { deltas = append(deltas, string(stage)+":"+d) },
	})
	ctx := context.Background()
	require.NoError(t, h.controller.Start(ctx, h.session))
	require.NoError(t, h.controller.Apply(ctx, h.session, Decision{Action: ActionStop}))

	assert.Equal(t, []State{StateEvaluating, StateAwaitingDecision, StateFinalizing, StateDone}, states)
	assert.Equal(t, []string{string(factcheck.StageDraft) + ":draft 1"}, deltas)
}

func TestParseAction(t *testing.T) {
	for in, want := range map[string]Action{"1": ActionAccept, "custom": ActionCustom, "3": ActionStop} {
		got, err := ParseAction(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseAction("4")
	assert.Error(t, err)
}

func TestPolicyFromConfig(t *testing.T) {
	p, err := PolicyFromConfig(model.DefaultConfig().Refine)
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)

	p, err = PolicyFromConfig(model.RefineConfig{MaxRounds: 5, Policy: model.PolicyStrict, Threshold: 4})
	require.NoError(t, err)
	assert.True(t, p.Strict)

	_, err = PolicyFromConfig(model.RefineConfig{MaxRounds: 3, Policy: "lenient"})
	assert.Error(t, err)
	_, err = PolicyFromConfig(model.RefineConfig{MaxRounds: 0})
	assert.Error(t, err)
}

func TestRunGivesUpAfterRepeatedRejections(t *testing.T) {
	dup := evaluation(3, "Which water plant was tested?")
	dup.DuplicateQuestion = true
	h := newHarness(t, DefaultPolicy(), dup)

	var notified []error
	h.session.Observe(Observer{OnRejected: func(_ *Session, err error) { notified = append(notified, err) }})

	asked := 0
	decider := DeciderFunc(func(context.Context, *Session) (Decision, error) {
		asked++
		return Decision{Action: ActionAccept}, nil
	})

	_, err := h.controller.Run(context.Background(), h.session, decider)
	require.ErrorIs(t, err, factcheck.ErrDuplicateQuestion)
	assert.Equal(t, maxRejectedDecisions, asked)
	assert.Len(t, notified, maxRejectedDecisions-1)
	assert.Equal(t, StateAwaitingDecision, h.session.State())
	assert.Equal(t, 0, h.session.CompletedRounds())
	assert.Len(t, h.drafter.requests, 1)
}

func TestRunResetsRejectionsAfterAcceptedDecision(t *testing.T) {
	dup := evaluation(3, "Which water plant was tested?")
	dup.DuplicateQuestion = true
	h := newHarness(t, DefaultPolicy(), dup)

	decisions := []Decision{
		{Action: ActionAccept},
		{Action: ActionAccept},
		{Action: ActionCustom, Question: "Who ran the test?"},
		{Action: ActionAccept},
		{Action: ActionAccept},
		{Action: ActionCustom, Question: "When was the sample taken?"},
		{Action: ActionStop},
	}
	decider := DeciderFunc(func(context.Context, *Session) (Decision, error) {
		d := decisions[0]
		decisions = decisions[1:]
		return d, nil
	})

	result, err := h.controller.Run(context.Background(), h.session, decider)
	require.NoError(t, err)
	assert.Empty(t, decisions)
	assert.Len(t, result.Rounds, 2)
	assert.Equal(t, string(TerminatedStopped), result.TerminatedBy)
}

func TestLastRoundDraftIsEvaluated(t *testing.T) {
	policy := Policy{MaxRounds: 1, Threshold: 4.5}
	h := newHarness(t, policy, evaluation(3, "Which water plant was tested?"), evaluation(4, "Who ran the test?"))
	ctx := context.Background()
	require.NoError(t, h.controller.Start(ctx, h.session))

	require.NoError(t, h.controller.Apply(ctx, h.session, Decision{Action: ActionAccept}))

	assert.Equal(t, StateDone, h.session.State())
	assert.Equal(t, TerminatedMaxRounds, h.session.TerminatedBy())
	require.Len(t, h.evaluator.requests, 2)
	assert.Equal(t, "explanation 2", h.evaluator.requests[1].Draft.Explanation)

	result := h.session.Result()
	require.NotNil(t, result.LastEvaluation)
	assert.Equal(t, 4.0, result.LastEvaluation.Average)
	assert.Equal(t, "Who ran the test?", result.LastEvaluation.Question)
	assert.Equal(t, "explanation 2", result.FinalDraft.Explanation)
}
