//go:build amd64 && unix

package jit

// callFn1 invokes the native code page at addr with input in the SysV
// integer argument register and returns its result, per
// trampoline_amd64.s. Implemented in assembly so the call obeys a fixed,
// stack-based argument layout regardless of the Go compiler's internal
// register ABI.
func callFn1(addr uintptr, input int64) int64
