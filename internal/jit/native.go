package jit

// nativeCode is a page of generated machine code retained alive for as long
// as the CompiledDataflow that owns it, plus whatever is needed to invoke it
// as a Go call.
type nativeCode interface {
	call(input int64) int64
}
