package factcheck

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/ppiankov/factloop/internal/llm"
	"github.com/ppiankov/factloop/internal/model"
)

// EvaluateRequest is the input for one evaluation
type EvaluateRequest struct {
	Draft          model.Draft
	CheckPoints    model.CheckPoints
	AskedQuestions []string // Questions already used this session, oldest first
}

// Evaluator rates drafts and proposes follow-up questions
type Evaluator struct {
	oracle *oracle
	opts   Options
}

// NewEvaluator creates an evaluator backed by provider
func NewEvaluator(provider llm.Provider, opts Options) *Evaluator {
	opts = opts.withDefaults()
	return &Evaluator{
		oracle: &oracle{provider: provider, logger: opts.Logger, metrics: opts.Metrics},
		opts:   opts,
	}
}

// evaluationSchema constrains the oracle reply
var evaluationSchema = &llm.Schema{
	Name: "draft_evaluation",
	Definition: jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"persuasiveness":       scoreDefinition("Is the explanation convincing?"),
			"logical_correctness":  scoreDefinition("Is the reasoning consistent and valid?"),
			"completeness":         scoreDefinition("Does it give all information needed?"),
			"conciseness":          scoreDefinition("Is it clear and direct?"),
			"agreement":            scoreDefinition("Do you agree with it?"),
			"weakest_aspect":       {Type: jsonschema.String, Enum: dimensionNames()},
			"improvement_question": {Type: jsonschema.String, Description: "One complete question targeting the weakest aspect"},
			"average":              {Type: jsonschema.Number, Description: "Mean of the five scores, one decimal"},
		},
		Required: []string{
			"persuasiveness", "logical_correctness", "completeness", "conciseness", "agreement",
			"weakest_aspect", "improvement_question", "average",
		},
		AdditionalProperties: false,
	},
}

func scoreDefinition(desc string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Integer, Description: desc + " 1-5"}
}

func dimensionNames() []string {
	names := make([]string, len(model.Dimensions))
	for i, d := range model.Dimensions {
		names[i] = string(d)
	}
	return names
}

type evaluationPayload struct {
	Persuasiveness      *int     `json:"persuasiveness"`
	LogicalCorrectness  *int     `json:"logical_correctness"`
	Completeness        *int     `json:"completeness"`
	Conciseness         *int     `json:"conciseness"`
	Agreement           *int     `json:"agreement"`
	WeakestAspect       string   `json:"weakest_aspect"`
	ImprovementQuestion string   `json:"improvement_question"`
	Average             *float64 `json:"average"`
}

// Evaluate rates a draft. The average and weakest dimension are recomputed locally.
func (e *Evaluator) Evaluate(ctx context.Context, req EvaluateRequest) (*model.Evaluation, error) {
	text, err := e.oracle.call(ctx, StageEvaluate, llm.CompletionRequest{
		System:      directive(e.opts.Prompts.Evaluate, e.opts.Language, e.opts.Now()),
		Prompt:      evaluatePrompt(req),
		Model:       e.opts.EvaluateModel,
		MaxTokens:   e.opts.MaxTokens,
		Temperature: 0.2,
		Schema:      evaluationSchema,
	})
	if err != nil {
		return nil, err
	}

	eval, claimed, err := parseEvaluation(text)
	if err != nil {
		e.opts.Logger.Error("evaluation rejected", zap.Error(err))
		return nil, err
	}

	if claimed.average != eval.Average {
		e.opts.Logger.Debug("oracle average differs from computed",
			zap.Float64("oracle", claimed.average),
			zap.Float64("computed", eval.Average))
	}
	if claimed.weakest != eval.Weakest {
		e.opts.Logger.Debug("oracle weakest aspect differs from computed",
			zap.String("oracle", string(claimed.weakest)),
			zap.String("computed", string(eval.Weakest)))
	}

	if IsDuplicateQuestion(eval.Question, req.AskedQuestions, e.opts.DuplicateSimilarity) {
		eval.DuplicateQuestion = true
		e.opts.Metrics.IncDuplicateQuestion()
		e.opts.Logger.Warn("evaluator repeated an earlier question",
			zap.String("question", eval.Question),
			zap.Int("asked", len(req.AskedQuestions)))
	}

	return eval, nil
}

// oracleClaims holds the values the oracle reported for fields recomputed locally
type oracleClaims struct {
	average float64
	weakest model.Dimension
}

// ParseEvaluation decodes and validates an evaluator reply
func ParseEvaluation(text string) (*model.Evaluation, error) {
	eval, _, err := parseEvaluation(text)
	return eval, err
}

func parseEvaluation(text string) (*model.Evaluation, oracleClaims, error) {
	raw := stripFence(text)

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var p evaluationPayload
	if err := dec.Decode(&p); err != nil {
		return nil, oracleClaims{}, invalid(StageEvaluate, text, "decode: %v", err)
	}
	if dec.More() {
		return nil, oracleClaims{}, invalid(StageEvaluate, text, "trailing data after JSON object")
	}

	fields := []struct {
		name string
		v    *int
	}{
		{"persuasiveness", p.Persuasiveness},
		{"logical_correctness", p.LogicalCorrectness},
		{"completeness", p.Completeness},
		{"conciseness", p.Conciseness},
		{"agreement", p.Agreement},
	}
	for _, f := range fields {
		if f.v == nil {
			return nil, oracleClaims{}, invalid(StageEvaluate, text, "missing %s", f.name)
		}
		if *f.v < model.MinScore || *f.v > model.MaxScore {
			return nil, oracleClaims{}, invalid(StageEvaluate, text, "%s=%d outside [%d,%d]", f.name, *f.v, model.MinScore, model.MaxScore)
		}
	}
	if p.Average == nil {
		return nil, oracleClaims{}, invalid(StageEvaluate, text, "missing average")
	}

	question := strings.TrimSpace(p.ImprovementQuestion)
	if !isCompleteQuestion(question) {
		return nil, oracleClaims{}, invalid(StageEvaluate, text, "improvement question %q is not a complete question", question)
	}

	scores := model.Scores{
		Persuasiveness:     *p.Persuasiveness,
		LogicalCorrectness: *p.LogicalCorrectness,
		Completeness:       *p.Completeness,
		Conciseness:        *p.Conciseness,
		Agreement:          *p.Agreement,
	}

	eval := &model.Evaluation{
		Scores:   scores,
		Average:  scores.Average(),
		Weakest:  scores.Weakest(),
		Question: question,
	}
	claims := oracleClaims{
		average: math.Round(*p.Average*10) / 10,
		weakest: model.Dimension(strings.TrimSpace(p.WeakestAspect)),
	}
	return eval, claims, nil
}

// stripFence removes one surrounding markdown code fence, if present
func stripFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// isCompleteQuestion accepts interrogative sentences of more than one word.
// CJK questions count as multi-word from four characters.
func isCompleteQuestion(q string) bool {
	if q == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(q)
	if last != '?' && last != '？' && last != '嗎' && last != '呢' {
		return false
	}
	if len(strings.Fields(q)) > 1 {
		return true
	}
	han := 0
	for _, r := range q {
		if unicode.Is(unicode.Han, r) {
			han++
		}
	}
	return han >= 4
}
