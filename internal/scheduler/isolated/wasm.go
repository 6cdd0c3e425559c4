package isolated

import (
	"context"
	"sync/atomic"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/horus-rt/horus/internal/herr"
)

// wasmRuntime runs a node body compiled to WASM, sandboxed in-process by
// wasmer-go rather than supervised as a separate OS process. A panic
// recovered out of the module's exported tick function is treated the same
// as a child-process crash: the node is marked not alive so the next Tick
// restarts (re-instantiates) it, per Supervisor's restart contract.
type wasmRuntime struct {
	cfg      Config
	engine   *wasmer.Engine
	store    *wasmer.Store
	module   *wasmer.Module
	instance *wasmer.Instance
	tickFn   wasmer.NativeFunction
	ok       atomic.Bool
}

func newWasmRuntime(cfg Config) *wasmRuntime {
	return &wasmRuntime{cfg: cfg}
}

func (w *wasmRuntime) start(ctx context.Context) error {
	if len(w.cfg.WasmBytes) == 0 {
		return herr.ValidationErr("isolated.wasmRuntime.start", "WasmBytes must not be empty")
	}
	w.engine = wasmer.NewEngine()
	w.store = wasmer.NewStore(w.engine)

	module, err := wasmer.NewModule(w.store, w.cfg.WasmBytes)
	if err != nil {
		return herr.Wrap(herr.Compile, "isolated.wasmRuntime.start", "failed to compile wasm module", err)
	}
	w.module = module

	instance, err := wasmer.NewInstance(module, wasmer.NewImportObject())
	if err != nil {
		return herr.Wrap(herr.Io, "isolated.wasmRuntime.start", "failed to instantiate wasm module", err)
	}
	w.instance = instance

	tickFn, err := instance.Exports.GetFunction("tick")
	if err != nil {
		return herr.Wrap(herr.NotAvailable, "isolated.wasmRuntime.start", "module does not export tick", err)
	}
	w.tickFn = tickFn
	w.ok.Store(true)
	return nil
}

func (w *wasmRuntime) tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.ok.Store(false)
			err = herr.New(herr.Fatal, "isolated.wasmRuntime.tick", "panic inside sandboxed wasm body")
		}
	}()
	if _, callErr := w.tickFn(); callErr != nil {
		w.ok.Store(false)
		return herr.Wrap(herr.Fatal, "isolated.wasmRuntime.tick", "wasm tick call failed", callErr)
	}
	return nil
}

func (w *wasmRuntime) alive() bool { return w.ok.Load() }

func (w *wasmRuntime) stop() error {
	w.ok.Store(false)
	return nil
}
