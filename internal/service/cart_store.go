package service

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/storefront-cart/internal/catalog"
	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/persistence"
	"github.com/fjod/storefront-cart/internal/pricing"
	"github.com/fjod/storefront-cart/internal/validator"
	"go.uber.org/zap"
)

// Deps are the collaborators of a CartStore.
type Deps struct {
	Lookup    catalog.Lookup
	Discounts catalog.DiscountLookup
	Pricing   *pricing.Engine
	Validator *validator.Validator
	Persister Persister
	Emitter   Emitter
	Recorder  persistence.FailureRecorder
	Log       *zap.Logger
}

type Option func(*CartStore)

// WithStages replaces the default validate/persist/emit pipeline.
func WithStages(stages ...Stage) Option {
	return func(s *CartStore) {
		s.stages = stages
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *CartStore) {
		s.now = now
	}
}

// CartStore owns the state of one cart. Every operation holds mu for its
// whole duration, catalog calls included, so mutations of the same cart
// never interleave.
type CartStore struct {
	id string

	mu         sync.Mutex
	state      domain.CartState
	validation domain.CartValidation
	open       bool
	lastError  string
	closed     bool

	lookup    catalog.Lookup
	discounts catalog.DiscountLookup
	pricing   *pricing.Engine
	validator *validator.Validator
	persister Persister
	recorder  persistence.FailureRecorder
	stages    []Stage
	log       *zap.Logger
	now       func() time.Time
}

func NewCartStore(id string, deps Deps, opts ...Option) *CartStore {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Validator == nil {
		deps.Validator = validator.New(0)
	}
	if deps.Pricing == nil {
		deps.Pricing = pricing.NewEngine(pricing.Config{})
	}

	s := &CartStore{
		id:        id,
		state:     domain.CartState{Options: domain.CartOptions{AppliedDiscounts: []domain.AppliedDiscount{}}},
		lookup:    deps.Lookup,
		discounts: deps.Discounts,
		pricing:   deps.Pricing,
		validator: deps.Validator,
		persister: deps.Persister,
		recorder:  deps.Recorder,
		log:       deps.Log.With(zap.String("cart_id", id)),
		now:       time.Now,
	}
	s.stages = s.defaultStages(deps)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CartStore) defaultStages(deps Deps) []Stage {
	stages := []Stage{NewValidateStage(s.validator)}
	if deps.Persister != nil {
		stages = append(stages, NewPersistStage(deps.Persister, deps.Recorder, s.log))
	}
	if deps.Emitter != nil {
		stages = append(stages, NewEmitStage(deps.Emitter))
	}
	return stages
}

func (s *CartStore) ID() string {
	return s.id
}

// Hydrate replaces the in-memory state with the persisted snapshot.
// A storage failure is logged and leaves the cart empty.
func (s *CartStore) Hydrate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persister == nil {
		return
	}
	state, err := s.persister.Load(ctx, s.id)
	if err != nil {
		s.log.Warn("cart hydration failed, starting empty", zap.Error(err))
		s.recorder.RecordFailure(ctx, "load", err)
	}
	s.state = state
	s.validation = s.validator.Validate(s.state.Items, s.state.Options, s.now())
}

// commit runs the pipeline over the current state. Callers hold mu.
func (s *CartStore) commit(ctx context.Context, eventType domain.EventType, data map[string]any) {
	now := s.now()
	s.state.LastUpdated = now

	c := &Commit{
		CartID: s.id,
		State:  s.state.Clone(),
		Now:    now,
	}
	if eventType != "" {
		c.Event = &domain.CartEvent{
			Type:      eventType,
			CartID:    s.id,
			Data:      data,
			Timestamp: now,
		}
	}

	for _, stage := range s.stages {
		if err := stage.Run(ctx, c); err != nil {
			s.log.Error("cart pipeline stage failed",
				zap.String("stage", stage.Name()),
				zap.String("event_type", string(eventType)),
				zap.Error(err))
			break
		}
	}
	s.validation = c.Validation
}

// Close rejects further mutations. It waits for an in-flight mutation,
// whose pipeline has already saved the cart, so there is nothing left to
// persist.
func (s *CartStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
}
