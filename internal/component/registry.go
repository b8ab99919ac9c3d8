// internal/component/registry.go
//
// Component registry (cycle-free).
//
// Each concrete component lives under components/<name> and calls
// component.Register() in an init() function.  cmd/web invokes Init(env)
// on every registered component once the shared services exist, then
// mounts each component's Routes() at “/”.

package component

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/openaccount/internal/account"
	"github.com/yanizio/openaccount/internal/config"
	"github.com/yanizio/openaccount/internal/form"
	"github.com/yanizio/openaccount/internal/view"
)

// Env exposes the process-wide services to Components during Init.
type Env struct {
	Config    *config.Config
	Log       *zap.SugaredLogger
	Validator *account.Validator
	Guard     form.Guard
	Views     *view.Engine
}

// Closer is optional.  Components holding background work (evictors,
// broker connections) implement it; Shutdown calls it once on exit.
type Closer interface {
	Close() error
}

// Component contract.
//
// Routes() should mount BOTH page and API endpoints, e.g:
//
//	r := chi.NewRouter()
//	r.Get("/", getPage)
//	r.Route("/api/account", func(api chi.Router) { ... })
//	return r
//
// Routes is called only after a successful Init.
type Component interface {
	Name() string
	Init(Env) error
	Routes() chi.Router
}

var (
	mu       sync.RWMutex
	registry = map[string]Component{}
)

// Register is invoked from component init() functions.
func Register(c Component) {
	mu.Lock()
	registry[c.Name()] = c
	mu.Unlock()
}

// All returns every registered component sorted by name.
func All() []Component {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Component, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Mount initialises every registered component with env and mounts its
// routes on r.  Any Init failure aborts the mount; all failures are
// reported together.
func Mount(r chi.Router, env Env) error {
	comps := All()
	var errs []error
	for _, c := range comps {
		if err := c.Init(env); err != nil {
			errs = append(errs, fmt.Errorf("component %s: %w", c.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	for _, c := range comps {
		r.Mount("/", c.Routes())
		env.Log.Infow("component mounted", "component", c.Name())
	}
	return nil
}

// Shutdown closes every registered component that implements Closer and
// joins their errors.
func Shutdown() error {
	var errs []error
	for _, c := range All() {
		if cl, ok := c.(Closer); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, fmt.Errorf("component %s: %w", c.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
