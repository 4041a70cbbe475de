package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/ppiankov/factloop/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockChecker struct {
	fail     map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (m *mockChecker) Check(ctx context.Context, claim model.Claim) (*model.Result, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	time.Sleep(10 * time.Millisecond)
	if m.fail[claim.Text] {
		return nil, errors.New("check error")
	}
	return &model.Result{Claim: claim, TerminatedBy: "max_rounds"}, nil
}

func TestBatchProcessor_ProcessClaims(t *testing.T) {
	checker := &mockChecker{}
	processor := NewBatchProcessor(checker, 2)

	claims := []model.Claim{{Text: "claim one"}, {Text: "claim two"}, {Text: "claim three"}}
	results := processor.ProcessClaims(context.Background(), claims)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	for i, res := range results {
		if res.Error != nil {
			t.Errorf("unexpected error for %q: %v", res.Claim.Text, res.Error)
			continue
		}
		if res.Claim.Text != claims[i].Text {
			t.Errorf("result %d out of order: %q", i, res.Claim.Text)
		}
		if res.Result == nil || res.Result.Claim.Text != claims[i].Text {
			t.Errorf("expected result for %q", claims[i].Text)
		}
	}

	if peak := checker.peak.Load(); peak > 2 {
		t.Errorf("expected at most 2 concurrent checks, saw %d", peak)
	}
}

func TestBatchProcessor_PartialFailure(t *testing.T) {
	checker := &mockChecker{fail: map[string]bool{"bad claim": true}}
	processor := NewBatchProcessor(checker, 4)

	var calls int
	processor.OnProgress(func(done, total int, r *ClaimResult) {
		calls++
		if total != 2 {
			t.Errorf("expected total 2, got %d", total)
		}
	})

	results := processor.ProcessClaims(context.Background(), []model.Claim{{Text: "bad claim"}, {Text: "good claim"}})

	if results[0].Error == nil || results[0].Result != nil {
		t.Errorf("expected failure for first claim, got %+v", results[0])
	}
	if results[1].Error != nil {
		t.Errorf("expected success for second claim: %v", results[1].Error)
	}
	if calls != 2 {
		t.Errorf("expected 2 progress calls, got %d", calls)
	}
}

func TestBatchProcessor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewBatchProcessor(&mockChecker{}, 1).ProcessClaims(ctx, []model.Claim{{Text: "claim"}})
	if !errors.Is(results[0].Error, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", results[0].Error)
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	results := NewBatchProcessor(&mockChecker{}, 0).ProcessClaims(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestReadClaimsFromFile(t *testing.T) {
	content := `# claims to check
Tap water in Taipei contains lead

Tap water in Taipei contains lead
{"text": "Vaccines cause autism", "source": "line"}
`
	path := filepath.Join(t.TempDir(), "claims.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	claims, err := ReadClaimsFromFile(path)
	if err != nil {
		t.Fatalf("ReadClaimsFromFile failed: %v", err)
	}

	if len(claims) != 2 {
		t.Fatalf("expected 2 claims, got %d: %v", len(claims), claims)
	}
	if claims[1].Text != "Vaccines cause autism" || claims[1].Source != "line" {
		t.Errorf("unexpected JSON claim: %+v", claims[1])
	}
}

func TestReadClaimsFromFile_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claims.txt")
	if err := os.WriteFile(path, []byte("{\"text\": \n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := ReadClaimsFromFile(path); err == nil {
		t.Error("expected error for malformed JSON line")
	}
}

func TestReadClaimsFromFile_Missing(t *testing.T) {
	if _, err := ReadClaimsFromFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
