// Package oracle combines storage, the calculator router and the permission
// layer into the single entry point used by producers, consumers and
// administrators.
//
// Every consumer read goes through the permission check first; derived feed
// types are routed to the calculator graph, base types are read from storage.
package oracle

import (
	"github.com/xtxerr/feedoracle/internal/calculator"
	"github.com/xtxerr/feedoracle/internal/errors"
	"github.com/xtxerr/feedoracle/internal/feed"
	"github.com/xtxerr/feedoracle/internal/logging"
	"github.com/xtxerr/feedoracle/internal/permission"
	"github.com/xtxerr/feedoracle/internal/pricing"
	"github.com/xtxerr/feedoracle/internal/router"
	"github.com/xtxerr/feedoracle/internal/storage"
)

var log = logging.Component("oracle")

// Service is the feed oracle.
type Service struct {
	store  *storage.Store
	router *router.Router
	perms  *permission.Manager
}

// New creates a service with an empty store, no calculators and no grants.
func New(cfg router.Config) *Service {
	store := storage.New()
	return &Service{
		store:  store,
		router: router.New(store, cfg),
		perms:  permission.NewManager(),
	}
}

// Store returns the underlying store.
func (s *Service) Store() *storage.Store { return s.store }

// Router returns the underlying router.
func (s *Service) Router() *router.Router { return s.router }

// Permissions returns the permission manager.
func (s *Service) Permissions() *permission.Manager { return s.perms }

// =============================================================================
// Consumer
// =============================================================================

// GetLatest returns the latest value of f on behalf of principal.
func (s *Service) GetLatest(principal permission.Principal, f feed.Feed) (feed.Data, error) {
	if err := s.perms.Authorize(principal, f); err != nil {
		log.Debug("read denied", "principal", principal, "feed", f.String())
		return feed.Data{}, err
	}
	return s.GetLatestUnchecked(f)
}

// GetLatestUnchecked is GetLatest without the permission check.
func (s *Service) GetLatestUnchecked(f feed.Feed) (feed.Data, error) {
	if s.router.IsDerived(f.Type) {
		return s.router.Resolve(f)
	}
	return s.store.Get(f)
}

// Greeks returns the full pricing result of an option price feed. The
// registered calculator for f.Type must be calculator.OptionPrice.
func (s *Service) Greeks(principal permission.Principal, f feed.Feed) (pricing.Result, int64, error) {
	if err := s.perms.Authorize(principal, f); err != nil {
		return pricing.Result{}, 0, err
	}

	var handler calculator.OptionPrice
	reg, ok := s.router.Lookup(f.Type)
	if ok {
		handler, ok = reg.Handler.(calculator.OptionPrice)
	}
	if !ok {
		return pricing.Result{}, 0, errors.Wrapf(errors.ErrCalculatorNotFound, "%s has no option price calculator", f.Type)
	}

	in, err := s.router.ResolveInputs(f)
	if err != nil {
		return pricing.Result{}, 0, err
	}
	res, err := handler.Greeks(in.Timestamp, in.Values, f.Params)
	if err != nil {
		return pricing.Result{}, 0, err
	}
	return res, in.Timestamp, nil
}

// =============================================================================
// Producer
// =============================================================================

// Add stores a new base observation.
func (s *Service) Add(f feed.Feed, value float64, timestamp int64) (storage.Slot, error) {
	return s.store.Add(f, value, timestamp)
}

// Update overwrites an existing base observation.
func (s *Service) Update(f feed.Feed, value float64, timestamp int64) error {
	return s.store.Update(f, value, timestamp)
}

// Put adds f or, if it already exists, updates it. It reports whether the
// feed was newly added.
func (s *Service) Put(f feed.Feed, value float64, timestamp int64) (bool, error) {
	err := s.store.Update(f, value, timestamp)
	if err == nil {
		return false, nil
	}
	if !errors.IsNotFound(err) {
		return false, err
	}

	_, err = s.store.Add(f, value, timestamp)
	if errors.IsAlreadyExists(err) {
		// Lost a race with another producer; the entry exists now.
		return false, s.store.Update(f, value, timestamp)
	}
	return err == nil, err
}

// Remove deletes a base observation.
func (s *Service) Remove(f feed.Feed) error {
	return s.store.Remove(f)
}

// Reset drops all observations.
func (s *Service) Reset() {
	s.store.Reset()
}

// Count returns the number of stored observations.
func (s *Service) Count() int {
	return s.store.Count()
}

// =============================================================================
// Admin
// =============================================================================

// RegisterCalculator installs handler for output.
func (s *Service) RegisterCalculator(output feed.Type, inputs []feed.Type, handler router.Handler) error {
	return s.router.Register(output, inputs, handler)
}

// UnregisterCalculator removes the calculator for output.
func (s *Service) UnregisterCalculator(output feed.Type) error {
	return s.router.Unregister(output)
}

// Grant replaces the permission record of (principal, t).
func (s *Service) Grant(principal permission.Principal, t feed.Type, masks []uint64) {
	s.perms.Grant(principal, t, masks)
}

// Revoke removes the permission record of (principal, t).
func (s *Service) Revoke(principal permission.Principal, t feed.Type) {
	s.perms.Revoke(principal, t)
}

// Stats aggregates storage and router statistics.
type Stats struct {
	Storage     storage.Stats
	Router      []router.Stats
	Calculators int
	Principals  int
}

// Stats returns a point-in-time view of the service.
func (s *Service) Stats() Stats {
	return Stats{
		Storage:     s.store.Stats(),
		Router:      s.router.Stats(),
		Calculators: len(s.router.Registrations()),
		Principals:  len(s.perms.Principals()),
	}
}
