package service

import (
	"context"
	"time"

	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/persistence"
	"github.com/fjod/storefront-cart/internal/validator"
	"go.uber.org/zap"
)

// Commit is what a mutation hands to the pipeline stages.
type Commit struct {
	CartID string
	// State is a copy of the cart after the mutation.
	State domain.CartState
	// Event is nil for commits that must not notify listeners.
	Event      *domain.CartEvent
	Validation domain.CartValidation
	Now        time.Time
}

// Stage is one step run after every cart mutation. Stages run in order;
// the default order is validate, persist, emit.
type Stage interface {
	Name() string
	Run(ctx context.Context, c *Commit) error
}

// Persister stores and restores cart state.
type Persister interface {
	Save(ctx context.Context, cartID string, state domain.CartState) error
	Load(ctx context.Context, cartID string) (domain.CartState, error)
}

// Emitter delivers cart events to listeners.
type Emitter interface {
	Emit(ctx context.Context, event domain.CartEvent)
}

type ValidateStage struct {
	validator *validator.Validator
}

func NewValidateStage(v *validator.Validator) *ValidateStage {
	return &ValidateStage{validator: v}
}

func (s *ValidateStage) Name() string { return "validate" }

func (s *ValidateStage) Run(_ context.Context, c *Commit) error {
	c.Validation = s.validator.Validate(c.State.Items, c.State.Options, c.Now)
	return nil
}

const persistTimeout = 3 * time.Second

// PersistStage saves the snapshot. Failures are logged and recorded but
// never fail the mutation.
type PersistStage struct {
	persister Persister
	recorder  persistence.FailureRecorder
	log       *zap.Logger
}

func NewPersistStage(p Persister, recorder persistence.FailureRecorder, log *zap.Logger) *PersistStage {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PersistStage{persister: p, recorder: recorder, log: log}
}

func (s *PersistStage) Name() string { return "persist" }

func (s *PersistStage) Run(ctx context.Context, c *Commit) error {
	// the request may be gone already; the save should still happen
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.persister.Save(ctx, c.CartID, c.State); err != nil {
		s.log.Warn("cart persistence failed", zap.String("cart_id", c.CartID), zap.Error(err))
		s.recorder.RecordFailure(ctx, "save", err)
	}
	return nil
}

type EmitStage struct {
	emitter Emitter
}

func NewEmitStage(e Emitter) *EmitStage {
	return &EmitStage{emitter: e}
}

func (s *EmitStage) Name() string { return "emit" }

func (s *EmitStage) Run(ctx context.Context, c *Commit) error {
	if c.Event != nil && s.emitter != nil {
		s.emitter.Emit(ctx, *c.Event)
	}
	return nil
}

type nopRecorder struct{}

func (nopRecorder) RecordFailure(context.Context, string, error) {}
