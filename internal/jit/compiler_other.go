//go:build !amd64

package jit

import "github.com/horus-rt/horus/internal/herr"

// compileNative is unsupported outside amd64: no code generator is wired for
// other instruction sets, so every dataflow on these platforms degrades to
// the uncompiled path (CompiledDataflow.IsCompiled() == false, Eval still
// available).
func compileNative(expr Expr, inputName string) (nativeCode, error) {
	return nil, herr.CompileErr("jit.compileNative", "native dataflow compilation is only implemented for amd64")
}
