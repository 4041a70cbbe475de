package factcheck

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ppiankov/factloop/internal/llm"
	"github.com/ppiankov/factloop/internal/model"
)

// fakeProvider answers each Complete call with the next scripted reply
type fakeProvider struct {
	replies  []string
	err      error
	requests []llm.CompletionRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) IsAvailable(context.Context) bool { return true }

func (f *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	text := f.replies[0]
	f.replies = f.replies[1:]
	if req.OnDelta != nil {
		req.OnDelta(text)
	}
	return &llm.CompletionResponse{Text: text, Model: "fake-model"}, nil
}

func testOptions(t *testing.T) Options {
	return Options{
		DraftMinChars: 10,
		DraftMaxChars: 300,
		Language:      "Traditional Chinese (Taiwan)",
		MaxBodyChars:  50,
		Now:           func() time.Time { return time.Date(2025, 9, 12, 0, 0, 0, 0, time.UTC) },
		Logger:        zaptest.NewLogger(t),
	}
}

var sampleEvidence = []model.EvidenceRecord{
	{SourceType: model.SourceWire, Title: "Power plant fire", Date: "2025-09-11", Body: "Gas turbines inside the nuclear plant site were started.", URL: "https://www.cna.com.tw/news/aall/202509110109.aspx"},
	{SourceType: model.SourceFactCheckReport, Title: "Nuclear rumor", Label: "錯誤", URL: "https://tfc-taiwan.org.tw/articles/1"},
}

func TestParseDraft(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantTag model.Tag
		wantErr bool
	}{
		{"english", "Verdict: false\nThe claim mixes up gas turbines with nuclear units.", model.TagFalse, false},
		{"chinese bold", "**查核結果: 錯誤**\n\n傳言把輕油機組誤稱為核電。", model.TagFalse, false},
		{"full width colon", "查核結果：部分錯誤\n內容部分屬實。", model.TagPartiallyFalse, false},
		{"bracketed", "Verdict: [unverifiable]\nNo source confirms it.", model.TagUnverifiable, false},
		{"missing line", "The claim is wrong.", "", true},
		{"unknown tag", "Verdict: misleading\nSomething.", "", true},
		{"template echo", "查核結果: [錯誤/部分錯誤/正確/證據不足]\n說明", "", true},
		{"no explanation", "Verdict: true", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDraft(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidOutput)
				var ioe *InvalidOutputError
				require.ErrorAs(t, err, &ioe)
				assert.Equal(t, StageDraft, ioe.Stage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTag, d.Tag)
			assert.NotEmpty(t, d.Explanation)
			assert.NotContains(t, d.Explanation, "Verdict")
		})
	}
}

func TestDrafter_DraftIncludesQuestionAndStreams(t *testing.T) {
	fp := &fakeProvider{replies: []string{"Verdict: false\nGas turbines, not nuclear units, were started."}}
	d := NewDrafter(fp, testOptions(t))

	var streamed strings.Builder
	draft, err := d.Draft(context.Background(), DraftRequest{
		Claim:       model.Claim{Text: "Nuclear plants rescued the grid."},
		CheckPoints: model.CheckPoints{"Which units generated power?"},
		Evidence:    sampleEvidence,
		Question:    "Which agency confirmed the units?",
		Previous:    &model.Draft{Text: "Verdict: false\nold"},
		OnDelta:     func(s string) { streamed.WriteString(s) },
	})
	require.NoError(t, err)
	assert.Equal(t, model.TagFalse, draft.Tag)
	assert.Equal(t, draft.Text, streamed.String())

	require.Len(t, fp.requests, 1)
	prompt := fp.requests[0].Prompt
	assert.Contains(t, prompt, "Which agency confirmed the units?")
	assert.Contains(t, prompt, "1. Which units generated power?")
	assert.Contains(t, prompt, "https://www.cna.com.tw/news/aall/202509110109.aspx")
	assert.Contains(t, prompt, "Previous draft")
	assert.Contains(t, fp.requests[0].System, "2025-09-12")
	assert.Contains(t, fp.requests[0].System, "between 10 and 300 characters")
}

func TestDrafter_MarkersWhenNothingUpstream(t *testing.T) {
	fp := &fakeProvider{replies: []string{"Verdict: unverifiable\nNo evidence either way."}}
	d := NewDrafter(fp, testOptions(t))

	_, err := d.Draft(context.Background(), DraftRequest{Claim: model.Claim{Text: "x"}})
	require.NoError(t, err)
	assert.Contains(t, fp.requests[0].Prompt, model.NoCheckPointsMarker)
	assert.Contains(t, fp.requests[0].Prompt, model.NoEvidenceMarker)
}

func TestDrafter_OracleFailure(t *testing.T) {
	fp := &fakeProvider{err: context.DeadlineExceeded}
	d := NewDrafter(fp, testOptions(t))

	_, err := d.Draft(context.Background(), DraftRequest{Claim: model.Claim{Text: "x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOracleCallFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var oce *OracleCallError
	require.ErrorAs(t, err, &oce)
	assert.Equal(t, StageDraft, oce.Stage)
}

const validEvaluation = `{"persuasiveness":4,"logical_correctness":3,"completeness":3,"conciseness":5,"agreement":4,"weakest_aspect":"logical_correctness","improvement_question":"Which official statement shows the units were not nuclear?","average":3.8}`

func TestParseEvaluation(t *testing.T) {
	eval, err := ParseEvaluation(validEvaluation)
	require.NoError(t, err)
	assert.Equal(t, 3.8, eval.Average)
	assert.Equal(t, model.DimLogicalCorrectness, eval.Weakest)
	assert.Equal(t, "Which official statement shows the units were not nuclear?", eval.Question)
}

func TestParseEvaluation_FencedJSON(t *testing.T) {
	eval, err := ParseEvaluation("```json\n" + validEvaluation + "\n```")
	require.NoError(t, err)
	assert.Equal(t, 4, eval.Scores.Persuasiveness)
}

func TestParseEvaluation_Rejects(t *testing.T) {
	tests := map[string]string{
		"not json":       "scores: 4,4,4,4,4",
		"out of range":   strings.Replace(validEvaluation, `"conciseness":5`, `"conciseness":6`, 1),
		"zero score":     strings.Replace(validEvaluation, `"agreement":4`, `"agreement":0`, 1),
		"missing field":  strings.Replace(validEvaluation, `"agreement":4,`, ``, 1),
		"unknown field":  strings.Replace(validEvaluation, `{`, `{"mood":"good",`, 1),
		"float score":    strings.Replace(validEvaluation, `"persuasiveness":4`, `"persuasiveness":4.5`, 1),
		"not a question": strings.Replace(validEvaluation, `Which official statement shows the units were not nuclear?`, `Add sources.`, 1),
		"one word":       strings.Replace(validEvaluation, `Which official statement shows the units were not nuclear?`, `Why?`, 1),
		"trailing data":  validEvaluation + ` {}`,
	}

	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEvaluation(text)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidOutput)
		})
	}
}

func TestParseEvaluation_LocalAverageAndTieBreak(t *testing.T) {
	// oracle claims a wrong average and weakest; local values win
	text := `{"persuasiveness":4,"logical_correctness":3,"completeness":4,"conciseness":3,"agreement":4,"weakest_aspect":"conciseness","improvement_question":"哪一個單位證實了這件事？","average":4.0}`
	eval, err := ParseEvaluation(text)
	require.NoError(t, err)
	assert.Equal(t, 3.6, eval.Average)
	assert.Equal(t, model.DimLogicalCorrectness, eval.Weakest)
}

func TestEvaluator_FlagsDuplicateQuestion(t *testing.T) {
	fp := &fakeProvider{replies: []string{validEvaluation}}
	e := NewEvaluator(fp, testOptions(t))

	eval, err := e.Evaluate(context.Background(), EvaluateRequest{
		Draft:          model.Draft{Text: "Verdict: false\nx"},
		AskedQuestions: []string{"Which official statement shows the units were not nuclear?"},
	})
	require.NoError(t, err)
	assert.True(t, eval.DuplicateQuestion)

	require.Len(t, fp.requests, 1)
	assert.NotNil(t, fp.requests[0].Schema)
	assert.Contains(t, fp.requests[0].Prompt, "do not repeat")
}

func TestEvaluator_FreshQuestionNotFlagged(t *testing.T) {
	fp := &fakeProvider{replies: []string{validEvaluation}}
	e := NewEvaluator(fp, testOptions(t))

	eval, err := e.Evaluate(context.Background(), EvaluateRequest{
		Draft:          model.Draft{Text: "Verdict: false\nx"},
		AskedQuestions: []string{"How long does a reactor restart take?"},
	})
	require.NoError(t, err)
	assert.False(t, eval.DuplicateQuestion)
}

func TestQuestionSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, QuestionSimilarity("Who said it?", "who said it"))
	assert.Equal(t, 1.0, QuestionSimilarity("台電如何說明？", "台電如何說明?"))
	assert.Less(t, QuestionSimilarity("台電如何說明？", "核電重啟需要多久？"), 0.3)
	assert.Equal(t, 0.0, QuestionSimilarity("", "anything"))
	assert.True(t, IsDuplicateQuestion("Who said it?", []string{"other", "who said it"}, 0.8))
	assert.False(t, IsDuplicateQuestion("Who said it?", nil, 0.8))
}

const validReport = `**Verdict: false**

The units started during the outage were gas turbines on the plant site, not reactors. [1]

A prior fact-check reached the same conclusion. [1],[2]

References:
[1]: https://www.cna.com.tw/news/aall/202509110109.aspx
[2]: https://tfc-taiwan.org.tw/articles/1
`

func TestParseReport(t *testing.T) {
	report, err := ParseReport(validReport, model.EvidenceURLs(sampleEvidence))
	require.NoError(t, err)
	assert.Equal(t, model.TagFalse, report.Tag)
	require.Len(t, report.Paragraphs, 2)
	assert.Equal(t, []int{1}, report.Paragraphs[0].References)
	assert.Equal(t, []int{1, 2}, report.Paragraphs[1].References)
	require.Len(t, report.References, 2)
	assert.Equal(t, "https://tfc-taiwan.org.tw/articles/1", report.References[1].URL)
	assert.Empty(t, report.Warnings)
}

func TestParseReport_ChineseLabels(t *testing.T) {
	text := "**查證結果：錯誤**\n\n傳言有誤。[1]\n\n參考資料：\n[1]: https://www.cna.com.tw/news/aall/202509110109.aspx\n"
	report, err := ParseReport(text, model.EvidenceURLs(sampleEvidence))
	require.NoError(t, err)
	assert.Equal(t, model.TagFalse, report.Tag)
	assert.Len(t, report.References, 1)
}

func TestParseReport_CitationErrors(t *testing.T) {
	allowed := model.EvidenceURLs(sampleEvidence)
	withThird := append(append([]string(nil), allowed...), "https://www.cna.com.tw/news/aall/3.aspx")
	tests := map[string]struct {
		text    string
		allowed []string
	}{
		"url outside evidence": {strings.Replace(validReport, "https://tfc-taiwan.org.tw/articles/1", "https://example.com/made-up", 1), allowed},
		"cited index missing":  {strings.Replace(validReport, "[1],[2]", "[1],[3]", 1), withThird},
		"duplicated index":     {strings.Replace(validReport, "[2]: https://tfc", "[1]: https://tfc", 1), allowed},
		"duplicated url":       {strings.Replace(validReport, "https://tfc-taiwan.org.tw/articles/1", "https://www.cna.com.tw/news/aall/202509110109.aspx", 1), allowed},
		"raw url in paragraph": {strings.Replace(validReport, "not reactors.", "not reactors, see https://example.com/x.", 1), allowed},
		"zero index":           {strings.Replace(strings.Replace(validReport, "[2]: https", "[0]: https", 1), "[1],[2]", "[1],[0]", 1), allowed},
		"bracketed outside":    {strings.Replace(validReport, "[2]: https://tfc-taiwan.org.tw/articles/1", "[2]: <https://example.com/made-up>", 1), allowed},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseReport(tt.text, tt.allowed)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCitationOutOfRange)
			var coe *CitationOutOfRangeError
			assert.ErrorAs(t, err, &coe)
		})
	}
}

func TestParseReport_AngleBracketURLs(t *testing.T) {
	url := "https://www.cna.com.tw/news/aall/202509110109.aspx"
	text := "**Verdict: false**\n\nThe claim is wrong [1]\n\nReferences:\n[1]: <" + url + ">"
	report, err := ParseReport(text, []string{url})
	require.NoError(t, err)
	require.Len(t, report.References, 1)
	assert.Equal(t, url, report.References[0].URL)
}

func TestParseReport_BracketedNumbersAreText(t *testing.T) {
	text := strings.Replace(validReport, "not reactors. [1]", "not reactors, as in [2024]. [1]", 1)
	report, err := ParseReport(text, model.EvidenceURLs(sampleEvidence))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, report.Paragraphs[0].References)
}

func TestParseReport_StructuralErrors(t *testing.T) {
	allowed := model.EvidenceURLs(sampleEvidence)
	tests := map[string]string{
		"no verdict":          strings.Replace(validReport, "**Verdict: false**", "", 1),
		"bad tag":             strings.Replace(validReport, "Verdict: false", "Verdict: mostly", 1),
		"uncited paragraph":   strings.Replace(validReport, "not reactors. [1]", "not reactors.", 1),
		"too many paragraphs": strings.Replace(validReport, "References:", "Third. [1]\n\nFourth. [2]\n\nReferences:", 1),
		"malformed reference": strings.Replace(validReport, "[2]: https://tfc-taiwan.org.tw/articles/1", "see the TFC article", 1),
		"empty body":          "**Verdict: true**\n\nReferences:\n",
	}

	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseReport(text, allowed)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidOutput)
		})
	}
}

func TestParseReport_NoEvidence(t *testing.T) {
	report, err := ParseReport("**Verdict: unverifiable**\n\nThe evidence is insufficient to verify this claim.", nil)
	require.NoError(t, err)
	assert.Equal(t, model.TagUnverifiable, report.Tag)
	assert.Empty(t, report.References)

	_, err = ParseReport(validReport, nil)
	assert.ErrorIs(t, err, ErrCitationOutOfRange)
}

func TestParseReport_UnusedReferenceWarns(t *testing.T) {
	text := strings.Replace(validReport, "[1],[2]", "[1]", 1)
	report, err := ParseReport(text, model.EvidenceURLs(sampleEvidence))
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "[2]")
}

func TestSynthesizer_RejectsLeakedCitation(t *testing.T) {
	leaked := strings.Replace(validReport, "https://tfc-taiwan.org.tw/articles/1", "https://example.com/made-up", 1)
	fp := &fakeProvider{replies: []string{leaked}}
	s := NewSynthesizer(fp, testOptions(t))

	report, err := s.Synthesize(context.Background(), SynthesizeRequest{
		Claim:    model.Claim{Text: "x"},
		Evidence: sampleEvidence,
		History:  "Initial draft:\nVerdict: false\nx",
	})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrCitationOutOfRange)
}

func TestSynthesizer_Success(t *testing.T) {
	fp := &fakeProvider{replies: []string{validReport}}
	s := NewSynthesizer(fp, testOptions(t))

	report, err := s.Synthesize(context.Background(), SynthesizeRequest{
		Claim:       model.Claim{Text: "Nuclear plants rescued the grid."},
		CheckPoints: model.CheckPoints{"Which units ran?"},
		Evidence:    sampleEvidence,
		History:     "Initial draft:\nVerdict: false\nx",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TagFalse, report.Tag)
	assert.Contains(t, fp.requests[0].Prompt, "History:\nInitial draft:")
}

func TestSerializeEvidence(t *testing.T) {
	out, err := SerializeEvidence(nil, 10)
	require.NoError(t, err)
	assert.Equal(t, model.NoEvidenceMarker, out)

	out, err = SerializeEvidence([]model.EvidenceRecord{{Title: "t", Body: "一二三四五六七八九十十一", URL: "u"}}, 5)
	require.NoError(t, err)
	assert.Contains(t, out, `"body": "一二三四五…"`)
}

func TestRenderHistory(t *testing.T) {
	initial := &model.Draft{Text: "Verdict: false\nfirst"}
	latest := &model.Draft{Text: "Verdict: false\nsecond"}
	rounds := []model.RoundRecord{{
		Round:      1,
		Draft:      *initial,
		Evaluation: model.Evaluation{Scores: model.Scores{Persuasiveness: 4, LogicalCorrectness: 3, Completeness: 4, Conciseness: 4, Agreement: 4}, Average: 3.8, Weakest: model.DimLogicalCorrectness},
		Question:   "Who confirmed it?",
		Source:     model.QuestionUserSupplied,
	}}

	h := RenderHistory(initial, rounds, latest)
	assert.True(t, strings.HasPrefix(h, "Initial draft:"))
	assert.Contains(t, h, "Round 1")
	assert.Contains(t, h, "Question (user-supplied): Who confirmed it?")
	assert.Contains(t, h, "average=3.8")
	assert.Contains(t, h, "Latest draft:\nVerdict: false\nsecond")

	only := RenderHistory(initial, nil, initial)
	assert.NotContains(t, only, "Latest draft")
	assert.Equal(t, []string{"Who confirmed it?"}, AskedQuestions(rounds))
}
