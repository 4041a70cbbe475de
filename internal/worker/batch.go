package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/factloop/internal/model"
)

// Checker runs a complete fact-check for one claim
type Checker interface {
	Check(ctx context.Context, claim model.Claim) (*model.Result, error)
}

// ClaimResult is the outcome of one batch entry
type ClaimResult struct {
	Claim  model.Claim
	Result *model.Result
	Error  error
}

// BatchProcessor checks many claims with bounded concurrency
type BatchProcessor struct {
	checker     Checker
	concurrency int
	progress    func(done, total int, r *ClaimResult)
	mu          sync.Mutex
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(checker Checker, concurrency int) *BatchProcessor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchProcessor{checker: checker, concurrency: concurrency}
}

// OnProgress registers a callback invoked after each claim finishes.
// Calls are serialized.
func (b *BatchProcessor) OnProgress(fn func(done, total int, r *ClaimResult)) {
	b.progress = fn
}

// ProcessClaims checks every claim and returns results in input order.
// A failed claim does not stop the others.
func (b *BatchProcessor) ProcessClaims(ctx context.Context, claims []model.Claim) []*ClaimResult {
	results := make([]*ClaimResult, len(claims))
	if len(claims) == 0 {
		return results
	}

	var (
		g    errgroup.Group
		done int
	)
	g.SetLimit(b.concurrency)

	for i, claim := range claims {
		g.Go(func() error {
			r := &ClaimResult{Claim: claim}
			if err := ctx.Err(); err != nil {
				r.Error = err
			} else {
				r.Result, r.Error = b.checker.Check(ctx, claim)
			}
			results[i] = r

			b.mu.Lock()
			done++
			if b.progress != nil {
				b.progress(done, len(claims), r)
			}
			b.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// ReadClaimsFromFile reads one claim per line. Lines starting with '{' are
// decoded as JSON claims so a source label can be attached.
func ReadClaimsFromFile(filePath string) ([]model.Claim, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var claims []model.Claim
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		claim := model.Claim{Text: line}
		if strings.HasPrefix(line, "{") {
			if err := json.Unmarshal([]byte(line), &claim); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			claim.Text = strings.TrimSpace(claim.Text)
			if claim.Text == "" {
				return nil, fmt.Errorf("line %d: claim text is empty", lineNo)
			}
		}

		if !seen[claim.Text] {
			seen[claim.Text] = true
			claims = append(claims, claim)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return claims, nil
}
