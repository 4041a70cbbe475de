package factcheck

import (
	"fmt"
	"strings"
	"time"
)

// Prompts holds the role instructions for each oracle stage.
// They are configuration: callers may replace any of them.
type Prompts struct {
	Draft      string
	Evaluate   string
	Synthesize string
}

// DefaultPrompts returns the built-in role instructions
func DefaultPrompts() Prompts {
	return Prompts{
		Draft:      draftInstructions,
		Evaluate:   evaluateInstructions,
		Synthesize: synthesizeInstructions,
	}
}

const tagDefinitions = `Verdict tags:
- false: the main content is fabricated or untrue. Includes scams, impersonated quotes, outdated items, misplaced time or place, edited or repurposed media.
- partially-false: the content is partly true but one-sided, or the event happened but context or background is wrong.
- true: the main content is accurate.
- unverifiable: the evidence does not allow a judgement either way.
Prior fact-check reports carry an expert label; weigh it, but check its date and context.`

const draftInstructions = `You are a Taiwanese fact-check specialist who verifies claims against supplied evidence.

Inputs: the claim to check, the check points (specific doubts worth verifying), the evidence records (news wire articles and prior fact-check reports, as JSON), and optionally a reviewer question with the previous draft.

Steps:
1. Go through every check point and find evidence that supports or refutes it. Prefer the most recent evidence; read the body, not just the title.
2. Decide one verdict tag.
3. If a reviewer question is present, revise the explanation so it answers that question, and update the tag if the evidence requires it.

` + tagDefinitions + `

Output format:
- First line exactly: "Verdict: <tag>" where <tag> is one of false, partially-false, true, unverifiable.
- Then a single plain-text summary: what the claim says, the verdict, and the key evidence (statements from the responsible agency, facts from the wire reports).
- No headings, no bullet points, no reference list, no URLs.`

const evaluateInstructions = `You review fact-check explanations as an ordinary news reader seeing the explanation for the first time, with no prior knowledge. A good explanation is clear, short and convincing.

Rate the explanation from 1 to 5 on each dimension (1 = definitely not, 2 = probably not, 3 = unsure, 4 = probably, 5 = definitely):
- persuasiveness: does the explanation sound convincing?
- logical_correctness: is the reasoning consistent and valid?
- completeness: does it provide all the information needed to convey the argument?
- conciseness: is it expressed clearly and directly?
- agreement: do you agree with the explanation?

Then name the weakest dimension (the lowest score) and ask one improvement question about it. The question must:
- be a complete interrogative sentence of more than one word,
- help improve the weakest dimension,
- not repeat or paraphrase any previously asked question.

Also report the average of the five scores rounded to one decimal.`

const synthesizeInstructions = `You are a Taiwanese fact-check center editor who writes the final fact-check report.

Inputs: the interaction history (initial draft, every round's evaluation and question, latest draft), the check points, the claim, and the evidence records as JSON.

Task:
- Decide the final verdict tag from the history.
- Write 1 to 3 paragraphs explaining the verdict. Re-check every statement against the evidence. Address the reviewer questions explicitly; they mark what readers find most confusing.
- If the evidence cannot support a conclusion, say plainly that the evidence is insufficient.

` + tagDefinitions + `

Output format:
**Verdict: <tag>**

<paragraph 1> [1]

<paragraph 2> [1],[2]

References:
[1]: URL1
[2]: URL2

Rules:
1. <tag> is one of false, partially-false, true, unverifiable.
2. Every paragraph ends with the reference numbers it relies on.
3. Every reference number used in a paragraph appears exactly once in the reference list.
4. Reference URLs must be copied exactly from the evidence records. Never use any other URL.`

// directive appends the output language and date context to a role instruction
func directive(instructions, language string, now time.Time) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nToday's date is ")
	b.WriteString(now.Format("2006-01-02"))
	b.WriteString(".")
	if language != "" {
		b.WriteString(" Write the explanation in ")
		b.WriteString(language)
		b.WriteString("; keep the verdict line and section labels in English.")
	}
	return b.String()
}

// lengthTarget adds the configured explanation length to the draft instructions
func lengthTarget(minChars, maxChars int) string {
	if minChars <= 0 && maxChars <= 0 {
		return ""
	}
	return fmt.Sprintf("\nKeep the explanation between %d and %d characters.", minChars, maxChars)
}

func draftPrompt(req DraftRequest, evidence string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Claim:\n%s\n\n", req.Claim.Text)
	fmt.Fprintf(&b, "Check points:\n%s\n\n", req.CheckPoints.String())
	fmt.Fprintf(&b, "Evidence:\n%s\n", evidence)
	if req.Question != "" {
		fmt.Fprintf(&b, "\nReviewer question:\n%s\n", req.Question)
		if req.Previous != nil {
			fmt.Fprintf(&b, "\nPrevious draft:\n%s\n", req.Previous.Text)
		}
	}
	return b.String()
}

func evaluatePrompt(req EvaluateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Draft explanation:\n%s\n\n", req.Draft.Text)
	fmt.Fprintf(&b, "Check points:\n%s\n", req.CheckPoints.String())
	if len(req.AskedQuestions) > 0 {
		b.WriteString("\nPreviously asked questions (do not repeat):\n")
		for i, q := range req.AskedQuestions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
	}
	return b.String()
}

func synthesizePrompt(req SynthesizeRequest, evidence string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "History:\n%s\n\n", req.History)
	fmt.Fprintf(&b, "Check points:\n%s\n\n", req.CheckPoints.String())
	fmt.Fprintf(&b, "Claim:\n%s\n\n", req.Claim.Text)
	fmt.Fprintf(&b, "Evidence:\n%s\n", evidence)
	return b.String()
}
