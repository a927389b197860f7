package engine

import "go.uber.org/zap"

// Engine wires the state machine, dispatcher and reconciler over a pair of
// stores. Components stay independently usable; this is just the standard
// assembly.
type Engine struct {
	Store      ThreadStore
	Canvas     CanvasStore
	Registry   *Registry
	SM         *StateMachine
	Dispatcher *Dispatcher
	Reconciler *Reconciler
}

// New assembles an engine. A nil registry falls back to the default action
// catalog.
func New(store ThreadStore, canvas CanvasStore, registry *Registry, logger *zap.Logger) *Engine {
	if registry == nil {
		registry = DefaultRegistry()
	}
	sm := NewStateMachine(store, registry, logger)
	reconciler := NewReconciler(store, canvas, sm, logger)
	dispatcher := NewDispatcher(store, registry, sm, reconciler, logger)
	return &Engine{
		Store:      store,
		Canvas:     canvas,
		Registry:   registry,
		SM:         sm,
		Dispatcher: dispatcher,
		Reconciler: reconciler,
	}
}
