// Package pipeline wires the check-point identifier, evidence retrieval and the
// refinement loop into one fact-check run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/factloop/internal/checkpoint"
	"github.com/ppiankov/factloop/internal/model"
	"github.com/ppiankov/factloop/internal/refine"
)

// ErrEmptyClaim is returned for a blank claim
var ErrEmptyClaim = errors.New("claim text is empty")

// Gatherer collects evidence for a claim
type Gatherer interface {
	Gather(ctx context.Context, claim model.Claim) ([]model.EvidenceRecord, model.EvidenceStatus, error)
}

// Archive stores finished sessions
type Archive interface {
	Save(ctx context.Context, result *model.Result) error
}

// Pipeline runs fact-check sessions
type Pipeline struct {
	identifier checkpoint.Identifier
	gatherer   Gatherer
	controller *refine.Controller
	archive    Archive
	logger     *zap.Logger
}

// NewPipeline creates a pipeline from its collaborators. archive may be nil.
func NewPipeline(identifier checkpoint.Identifier, gatherer Gatherer, controller *refine.Controller, archive Archive, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		identifier: identifier,
		gatherer:   gatherer,
		controller: controller,
		archive:    archive,
		logger:     logger,
	}
}

// Controller returns the refinement controller used by this pipeline
func (p *Pipeline) Controller() *refine.Controller { return p.controller }

// Prepare identifies check points and gathers evidence, then returns a session
// ready to start. Upstream failures degrade to empty inputs and are logged.
func (p *Pipeline) Prepare(ctx context.Context, claim model.Claim) (*refine.Session, error) {
	claim.Text = strings.TrimSpace(claim.Text)
	claim.Source = strings.TrimSpace(claim.Source)
	if claim.Text == "" {
		return nil, ErrEmptyClaim
	}

	in := refine.Inputs{Claim: claim, CheckPointStatus: model.CheckPointsFailed, EvidenceStatus: model.EvidenceFailed}

	if p.identifier != nil {
		res, err := p.identifier.Identify(ctx, claim)
		if err != nil {
			p.logger.Warn("proceeding without check points", zap.Error(err))
		}
		if res != nil {
			in.CheckPoints = res.CheckPoints
			in.CheckPointStatus = res.Status
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if p.gatherer != nil {
		records, status, err := p.gatherer.Gather(ctx, claim)
		if err != nil {
			p.logger.Warn("proceeding without evidence", zap.Error(err))
		}
		in.Evidence = records
		in.EvidenceStatus = status
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return refine.NewSession(in), nil
}

// Run prepares a session and drives it with decider. The observer, when set,
// is attached before the first draft.
func (p *Pipeline) Run(ctx context.Context, claim model.Claim, decider refine.Decider, observer *refine.Observer) (*model.Result, error) {
	session, err := p.Prepare(ctx, claim)
	if err != nil {
		return nil, err
	}
	if observer != nil {
		session.Observe(*observer)
	}

	result, err := p.controller.Run(ctx, session, decider)
	p.Save(ctx, result)
	if err != nil {
		return result, fmt.Errorf("session %s: %w", session.ID, err)
	}
	return result, nil
}

// Check runs a claim without a human in the loop
func (p *Pipeline) Check(ctx context.Context, claim model.Claim) (*model.Result, error) {
	return p.Run(ctx, claim, refine.AutoDecider{}, nil)
}

// Save archives a finished result. Archive failures are logged, not returned.
func (p *Pipeline) Save(ctx context.Context, result *model.Result) {
	if p.archive == nil || result == nil || result.FinishedAt.IsZero() {
		return
	}
	if err := p.archive.Save(ctx, result); err != nil {
		p.logger.Warn("session not archived", zap.String("session", result.SessionID), zap.Error(err))
	}
}
