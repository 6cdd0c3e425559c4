//go:build amd64 && unix

package jit

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/horus-rt/horus/internal/herr"
)

// execPage is a page of native machine code mapped executable, invoked
// through the callFn1 assembly trampoline.
type execPage struct {
	mem []byte
}

// newExecPage maps code into an executable page and copies it in. The page
// is unmapped by a finalizer when the execPage becomes unreachable, which is
// sufficient since CompiledDataflow retains it for the lifetime of any call.
func newExecPage(code []byte) (*execPage, error) {
	if len(code) == 0 {
		return nil, herr.CompileErr("jit.newExecPage", "empty code buffer")
	}
	size := pageAlign(len(code))
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, herr.Wrap(herr.Compile, "jit.newExecPage", "mmap failed", err)
	}
	copy(mem, code)

	p := &execPage{mem: mem}
	runtime.SetFinalizer(p, func(p *execPage) {
		_ = unix.Munmap(p.mem)
	})
	return p, nil
}

func pageAlign(n int) int {
	const pageSize = 4096
	return ((n + pageSize - 1) / pageSize) * pageSize
}

func (p *execPage) call(input int64) int64 {
	return callFn1(uintptr(unsafe.Pointer(&p.mem[0])), input)
}
