// Package router resolves derived feeds through a registry of calculators.
//
// A calculator is registered for an output feed type together with the
// ordered list of input feed types it consumes. Resolving a derived feed
// reads each input from storage and, when an input is missing and itself
// derived, resolves it recursively. The result carries the minimum timestamp
// of its inputs. Nothing is memoised: every Resolve recomputes the chain.
//
// Interactions:
//   - storage: base inputs are read through the Reader interface
//   - calculators: Handler implementations supply input parameters and values
//   - callers: permission checks happen before Resolve, not inside it
package router

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/xtxerr/feedoracle/config"
	"github.com/xtxerr/feedoracle/internal/errors"
	"github.com/xtxerr/feedoracle/internal/feed"
	"github.com/xtxerr/feedoracle/internal/logging"
)

var log = logging.Component("router")

// Handler computes one derived feed type.
type Handler interface {
	// InputParameters maps the output parameters to one parameter set per
	// registered input type, in registration order.
	InputParameters(params feed.Parameters) []feed.Parameters

	// Calculate derives the output value. timestamp is the minimum timestamp
	// of the inputs and serves as the reference time.
	Calculate(timestamp int64, inputs []float64, params feed.Parameters) (float64, error)
}

// Func adapts a pair of functions to Handler.
type Func struct {
	Inputs func(params feed.Parameters) []feed.Parameters
	Calc   func(timestamp int64, inputs []float64, params feed.Parameters) (float64, error)
}

func (f Func) InputParameters(params feed.Parameters) []feed.Parameters { return f.Inputs(params) }

func (f Func) Calculate(timestamp int64, inputs []float64, params feed.Parameters) (float64, error) {
	return f.Calc(timestamp, inputs, params)
}

// Reader is the read side of the observation store.
type Reader interface {
	Get(f feed.Feed) (feed.Data, error)
}

// Registration describes a registered calculator.
type Registration struct {
	Output  feed.Type
	Inputs  []feed.Type
	Handler Handler
}

// Inputs is a resolved input vector.
type Inputs struct {
	Feeds     []feed.Feed
	Values    []float64
	Timestamp int64
}

// Config holds router settings.
type Config struct {
	// MaxDepth bounds nested resolution. Zero means config.DefaultMaxResolveDepth.
	MaxDepth int

	// SketchAccuracy is the relative accuracy of latency quantiles.
	SketchAccuracy float64
}

// DefaultConfig returns the default router settings.
func DefaultConfig() Config {
	return Config{
		MaxDepth:       config.DefaultMaxResolveDepth,
		SketchAccuracy: config.DefaultSketchAccuracy,
	}
}

// Router resolves derived feeds. It is safe for concurrent use; no lock is
// held while a handler runs.
type Router struct {
	reader   Reader
	maxDepth int

	mu   sync.RWMutex
	regs map[feed.Type]Registration

	stats *statsRegistry
}

// New creates a router reading base inputs from reader.
func New(reader Reader, cfg Config) *Router {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = config.DefaultMaxResolveDepth
	}
	if cfg.SketchAccuracy <= 0 || cfg.SketchAccuracy >= 1 {
		cfg.SketchAccuracy = config.DefaultSketchAccuracy
	}
	return &Router{
		reader:   reader,
		maxDepth: cfg.MaxDepth,
		regs:     make(map[feed.Type]Registration),
		stats:    newStatsRegistry(cfg.SketchAccuracy),
	}
}

// Register installs handler as the calculator for output, replacing any
// previous registration. inputs must be non-empty.
func (r *Router) Register(output feed.Type, inputs []feed.Type, handler Handler) error {
	if handler == nil {
		return errors.NewValidation("handler", "must not be nil")
	}
	if len(inputs) == 0 {
		return errors.NewValidation("inputs", "calculator needs at least one input type")
	}

	reg := Registration{
		Output:  output,
		Inputs:  append([]feed.Type(nil), inputs...),
		Handler: handler,
	}

	r.mu.Lock()
	_, replaced := r.regs[output]
	r.regs[output] = reg
	cyclic := r.reachesLocked(output, output)
	r.mu.Unlock()

	if cyclic {
		log.Warn("calculator graph has a type-level cycle; resolution may fail",
			"output", output, "inputs", inputs)
	}
	log.Info("calculator registered", "output", output, "inputs", inputs, "replaced", replaced)
	return nil
}

// reachesLocked reports whether target is reachable from the inputs of from.
func (r *Router) reachesLocked(from, target feed.Type) bool {
	seen := make(map[feed.Type]bool)
	var walk func(t feed.Type) bool
	walk = func(t feed.Type) bool {
		reg, ok := r.regs[t]
		if !ok {
			return false
		}
		for _, in := range reg.Inputs {
			if in == target {
				return true
			}
			if seen[in] {
				continue
			}
			seen[in] = true
			if walk(in) {
				return true
			}
		}
		return false
	}
	return walk(from)
}

// Unregister removes the calculator for output. Afterwards the type is
// treated as base.
func (r *Router) Unregister(output feed.Type) error {
	r.mu.Lock()
	_, ok := r.regs[output]
	delete(r.regs, output)
	r.mu.Unlock()

	if !ok {
		return errors.Wrapf(errors.ErrCalculatorNotFound, "unregister %s", output)
	}
	log.Info("calculator unregistered", "output", output)
	return nil
}

// IsDerived reports whether a calculator is registered for t.
func (r *Router) IsDerived(t feed.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.regs[t]
	return ok
}

// Registrations returns the registered calculators sorted by output type.
func (r *Router) Registrations() []Registration {
	r.mu.RLock()
	out := make([]Registration, 0, len(r.regs))
	for _, reg := range r.regs {
		reg.Inputs = append([]feed.Type(nil), reg.Inputs...)
		out = append(out, reg)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Output < out[j].Output })
	return out
}

// Lookup returns the registration for t.
func (r *Router) Lookup(t feed.Type) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[t]
	return reg, ok
}

// Resolve computes the current value of the derived feed f.
func (r *Router) Resolve(f feed.Feed) (feed.Data, error) {
	return r.resolve(f, newPath(), 0)
}

// ResolveInputs returns the resolved input vector of the derived feed f
// without running its calculator.
func (r *Router) ResolveInputs(f feed.Feed) (Inputs, error) {
	reg, ok := r.Lookup(f.Type)
	if !ok {
		return Inputs{}, errors.Wrapf(errors.ErrCalculatorNotFound, "resolve %s", f)
	}
	p := newPath()
	p.push(f)
	return r.gather(f, reg, p, 0)
}

func (r *Router) resolve(f feed.Feed, p path, depth int) (feed.Data, error) {
	if depth > r.maxDepth {
		return feed.Data{}, errors.Wrapf(errors.ErrDepthExceeded, "resolve %s at depth %d", f, depth)
	}

	reg, ok := r.Lookup(f.Type)
	if !ok {
		return feed.Data{}, errors.Wrapf(errors.ErrCalculatorNotFound, "resolve %s", f)
	}

	if p.contains(f) {
		return feed.Data{}, errors.Wrapf(errors.ErrCyclicDependency, "resolve %s", f)
	}
	p.push(f)
	defer p.pop(f)

	start := time.Now()

	in, err := r.gather(f, reg, p, depth)
	if err != nil {
		r.stats.record(f.Type, time.Since(start), err)
		return feed.Data{}, err
	}

	value, err := reg.Handler.Calculate(in.Timestamp, in.Values, f.Params)
	r.stats.record(f.Type, time.Since(start), err)
	if err != nil {
		return feed.Data{}, errors.Wrapf(err, "calculate %s", f)
	}

	return feed.Data{Value: value, Timestamp: in.Timestamp}, nil
}

func (r *Router) gather(f feed.Feed, reg Registration, p path, depth int) (Inputs, error) {
	params := reg.Handler.InputParameters(f.Params)
	if len(params) != len(reg.Inputs) {
		return Inputs{}, errors.Wrapf(errors.ErrArityMismatch,
			"%s: handler returned %d parameter sets for %d inputs", f, len(params), len(reg.Inputs))
	}

	in := Inputs{
		Feeds:     make([]feed.Feed, len(params)),
		Values:    make([]float64, len(params)),
		Timestamp: math.MaxInt64,
	}

	for i, t := range reg.Inputs {
		input := feed.New(t, params[i])

		data, err := r.reader.Get(input)
		if err != nil && errors.IsNotFound(err) && r.IsDerived(t) {
			data, err = r.resolve(input, p, depth+1)
		}
		if err != nil {
			return Inputs{}, errors.Wrapf(err, "%s input %d", f, i)
		}

		in.Feeds[i] = input
		in.Values[i] = data.Value
		if data.Timestamp < in.Timestamp {
			in.Timestamp = data.Timestamp
		}
	}

	return in, nil
}

// path tracks the feed identities on the current resolution path.
type path map[feed.Key]struct{}

func newPath() path { return make(path) }

func (p path) contains(f feed.Feed) bool {
	_, ok := p[feed.IdentityKey(f)]
	return ok
}

func (p path) push(f feed.Feed) { p[feed.IdentityKey(f)] = struct{}{} }

func (p path) pop(f feed.Feed) { delete(p, feed.IdentityKey(f)) }

// Stats returns resolve statistics per output type.
func (r *Router) Stats() []Stats {
	return r.stats.snapshot()
}
