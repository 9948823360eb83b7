// Package postprocess runs a requested set of transformation and validation
// steps over a completed scene. Steps declare ordering constraints and
// mutual exclusions; the whole request is checked and ordered before any
// step touches the scene.
package postprocess

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/props"
	"github.com/Faultbox/scenery/pkg/scene"
)

// ID names a step.
type ID string

// Built-in step ids.
const (
	IDValidate                 ID = "validate"
	IDTriangulate              ID = "triangulate"
	IDJoinVertices             ID = "join-vertices"
	IDGenNormals               ID = "gen-normals"
	IDGenFlatNormals           ID = "gen-flat-normals"
	IDCalcTangents             ID = "calc-tangents"
	IDRemoveRedundantMaterials ID = "remove-redundant-materials"
	IDFlipUVs                  ID = "flip-uvs"
	IDOptimizeMeshes           ID = "optimize-meshes"
	IDOptimizeGraph            ID = "optimize-graph"
)

// ConfigKeyValidateEach makes Run check every invariant after each step.
const ConfigKeyValidateEach = "pp.debug.validate_each"

// Step is one transformation or validation pass.
type Step interface {
	ID() ID
	// After lists steps this one must follow when both are requested.
	After() []ID
	// Incompatible lists steps that must not be requested together with
	// this one.
	Incompatible() []ID
	// Idempotent reports whether a second application leaves the scene
	// unchanged. It is informational: Plan collapses duplicate ids for every
	// step, so no step ever runs twice within one pipeline.
	Idempotent() bool
	Apply(ctx *Context, sc *scene.Scene) error
}

// Requirer is implemented by steps that need one of a set of other steps.
// When none of Requires is requested the first one is added to the plan.
type Requirer interface {
	Requires() []ID
}

// Context is handed to every step of one run.
type Context struct {
	Config *props.Store
	Logger *zap.Logger
}

// NewContext returns a context; nil arguments are replaced by empty values.
func NewContext(cfg *props.Store, logger *zap.Logger) *Context {
	if cfg == nil {
		cfg = props.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{Config: cfg, Logger: logger}
}

// Definition declares a step's identity and constraints.
type Definition struct {
	ID           ID
	After        []ID
	Incompatible []ID
	Requires     []ID
	// Idempotent is reported by Step.Idempotent and does not affect Plan.
	Idempotent   bool
}

// ApplyFunc is the body of a step built with NewStep.
type ApplyFunc func(ctx *Context, sc *scene.Scene) error

type funcStep struct {
	def   Definition
	apply ApplyFunc
}

// NewStep builds a Step from a definition and a function.
func NewStep(def Definition, apply ApplyFunc) Step {
	return &funcStep{def: def, apply: apply}
}

func (s *funcStep) ID() ID { return s.def.ID }
func (s *funcStep) After() []ID { return s.def.After }
func (s *funcStep) Incompatible() []ID { return s.def.Incompatible }
func (s *funcStep) Requires() []ID { return s.def.Requires }
func (s *funcStep) Idempotent() bool { return s.def.Idempotent }
func (s *funcStep) Apply(ctx *Context, sc *scene.Scene) error {
	return s.apply(ctx, sc)
}

// Catalog errors.
var (
	ErrStepAlreadyRegistered = errors.New("step already registered")
	ErrCatalogSealed         = errors.New("catalog is sealed")
	ErrStepPanic             = errors.New("step panicked")
	// ErrConfig is matched by every *ConfigError.
	ErrConfig = errors.New("pipeline configuration failure")
)

// ConfigError rejects a step request before anything runs.
type ConfigError struct {
	Reason string
	Steps  []ID
}

func (e *ConfigError) Error() string {
	if len(e.Steps) == 0 {
		return "pipeline: " + e.Reason
	}
	names := make([]string, len(e.Steps))
	for i, id := range e.Steps {
		names[i] = string(id)
	}
	return fmt.Sprintf("pipeline: %s: %s", e.Reason, strings.Join(names, ", "))
}

// Is makes errors.Is(err, ErrConfig) true.
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// StepError reports the step that aborted a run.
type StepError struct {
	Step ID
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Catalog holds the known steps in registration order. Registration order
// breaks ties when ordering a plan.
type Catalog struct {
	mu     sync.RWMutex
	steps  []Step
	index  map[ID]int
	sealed bool
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{index: make(map[ID]int)}
}

// Register adds s.
func (c *Catalog) Register(s Step) error {
	if s == nil || s.ID() == "" {
		return errors.New("step must have an id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return fmt.Errorf("%w: cannot register %s", ErrCatalogSealed, s.ID())
	}
	if _, ok := c.index[s.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrStepAlreadyRegistered, s.ID())
	}
	c.index[s.ID()] = len(c.steps)
	c.steps = append(c.steps, s)
	return nil
}

// Seal makes the catalog immutable.
func (c *Catalog) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
}

// Lookup returns the step registered under id.
func (c *Catalog) Lookup(id ID) (Step, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.steps[i], true
}

// IDs returns every registered id in registration order.
func (c *Catalog) IDs() []ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]ID, len(c.steps))
	for i, s := range c.steps {
		ids[i] = s.ID()
	}
	return ids
}

// Pipeline is a checked, ordered list of steps.
type Pipeline struct {
	steps []Step
}

// Steps returns the ids in execution order.
func (p *Pipeline) Steps() []ID {
	ids := make([]ID, len(p.steps))
	for i, s := range p.steps {
		ids[i] = s.ID()
	}
	return ids
}

// Len returns the number of steps.
func (p *Pipeline) Len() int { return len(p.steps) }

// Plan checks a request and orders it. Unknown ids, incompatible pairs and
// dependency cycles yield a *ConfigError. Duplicate ids collapse into one.
func (c *Catalog) Plan(requested []ID) (*Pipeline, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	selected := make(map[ID]bool, len(requested))
	var unknown []ID
	for _, id := range requested {
		if _, ok := c.index[id]; !ok {
			unknown = append(unknown, id)
			continue
		}
		selected[id] = true
	}
	if len(unknown) > 0 {
		return nil, &ConfigError{Reason: "unknown step", Steps: unknown}
	}

	// Add required co-steps until nothing changes.
	for changed := true; changed; {
		changed = false
		for _, s := range c.steps {
			r, ok := s.(Requirer)
			if !selected[s.ID()] || !ok || len(r.Requires()) == 0 {
				continue
			}
			if slices.ContainsFunc(r.Requires(), func(id ID) bool { return selected[id] }) {
				continue
			}
			need := r.Requires()[0]
			if _, ok := c.index[need]; !ok {
				return nil, &ConfigError{Reason: "required step not registered", Steps: []ID{s.ID(), need}}
			}
			selected[need] = true
			changed = true
		}
	}

	// Work in registration order from here on.
	var order []int
	for i, s := range c.steps {
		if selected[s.ID()] {
			order = append(order, i)
		}
	}

	for ai, a := range order {
		for _, b := range order[ai+1:] {
			sa, sb := c.steps[a], c.steps[b]
			if slices.Contains(sa.Incompatible(), sb.ID()) || slices.Contains(sb.Incompatible(), sa.ID()) {
				return nil, &ConfigError{Reason: "incompatible steps", Steps: []ID{sa.ID(), sb.ID()}}
			}
		}
	}

	indegree := make(map[int]int, len(order))
	edges := make(map[int][]int, len(order))
	for _, i := range order {
		for _, dep := range c.steps[i].After() {
			j, ok := c.index[dep]
			if !ok || !selected[dep] {
				continue
			}
			edges[j] = append(edges[j], i)
			indegree[i]++
		}
	}

	// Kahn's algorithm; the ready step registered first goes next.
	plan := &Pipeline{steps: make([]Step, 0, len(order))}
	done := make(map[int]bool, len(order))
	for len(plan.steps) < len(order) {
		next := -1
		for _, i := range order {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var cycle []ID
			for _, i := range order {
				if !done[i] {
					cycle = append(cycle, c.steps[i].ID())
				}
			}
			return nil, &ConfigError{Reason: "dependency cycle", Steps: cycle}
		}
		done[next] = true
		plan.steps = append(plan.steps, c.steps[next])
		for _, k := range edges[next] {
			indegree[k]--
		}
	}
	return plan, nil
}

// Run executes the steps in order. The first failing step aborts the run.
// With ConfigKeyValidateEach set the scene is validated after every step
// and a step that leaves it invalid fails with a *scene.ValidationError.
func (p *Pipeline) Run(ctx *Context, sc *scene.Scene) error {
	if ctx == nil {
		ctx = NewContext(nil, nil)
	}
	validateEach := ctx.Config.BoolOr(ConfigKeyValidateEach, false)
	for _, s := range p.steps {
		start := time.Now()
		stepCtx := &Context{Config: ctx.Config, Logger: ctx.Logger.With(zap.String("step", string(s.ID())))}
		if err := apply(s, stepCtx, sc); err != nil {
			return &StepError{Step: s.ID(), Err: err}
		}
		if validateEach && s.ID() != IDValidate {
			if err := sc.Check(); err != nil {
				return &StepError{Step: s.ID(), Err: err}
			}
		}
		ctx.Logger.Debug("step finished",
			zap.String("step", string(s.ID())),
			zap.Duration("duration", time.Since(start)))
	}
	return nil
}

// apply turns a panicking step into an ErrStepPanic failure.
func apply(s Step, ctx *Context, sc *scene.Scene) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx.Logger.Error("step panicked", zap.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrStepPanic, r)
		}
	}()
	return s.Apply(ctx, sc)
}

// Run plans requested on c and runs it.
func (c *Catalog) Run(ctx *Context, sc *scene.Scene, requested []ID) error {
	p, err := c.Plan(requested)
	if err != nil {
		return err
	}
	return p.Run(ctx, sc)
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the sealed catalog of built-in steps.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c := NewCatalog()
		for _, s := range Builtins() {
			if err := c.Register(s); err != nil {
				panic(err)
			}
		}
		c.Seal()
		defaultCatalog = c
	})
	return defaultCatalog
}

// ParseIDs splits a comma-separated list of step ids.
func ParseIDs(s string) []ID {
	var ids []ID
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, ID(part))
		}
	}
	return ids
}
