// Package jit implements the dataflow compiler (spec 4.9): a small
// integer-expression AST that compiles to native machine code for
// sub-microsecond node bodies, with a portable interpreter used wherever
// native codegen is unavailable or refuses the expression.
package jit

import (
	"time"

	"github.com/horus-rt/horus/internal/herr"
)

// BinaryOp is a two-operand integer operation.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
)

// UnaryOp is a single-operand integer operation.
type UnaryOp uint8

const (
	OpNeg UnaryOp = iota
	OpNot
	OpAbs
)

// Expr is a node in the dataflow expression tree (spec 3: "JIT dataflow
// expression"). The concrete variants are Const, Input, BinOp and UnaryOp.
type Expr interface {
	isExpr()
}

// Const is a literal integer value.
type Const int64

func (Const) isExpr() {}

// Input names a bound parameter. Every Input with the same name binds to the
// same compiled parameter.
type Input string

func (Input) isExpr() {}

// BinOp applies a BinaryOp to two subexpressions.
type BinOp struct {
	Op          BinaryOp
	Left, Right Expr
}

func (BinOp) isExpr() {}

// UnaryOpExpr applies a UnaryOp to one subexpression.
type UnaryOpExpr struct {
	Op   UnaryOp
	Expr Expr
}

func (UnaryOpExpr) isExpr() {}

// inputNames collects the distinct Input names referenced by expr, in
// first-occurrence order.
func inputNames(expr Expr) []string {
	seen := make(map[string]bool)
	var order []string
	var walk func(Expr)
	walk = func(e Expr) {
		switch v := e.(type) {
		case Input:
			if !seen[string(v)] {
				seen[string(v)] = true
				order = append(order, string(v))
			}
		case BinOp:
			walk(v.Left)
			walk(v.Right)
		case UnaryOpExpr:
			walk(v.Expr)
		}
	}
	walk(expr)
	return order
}

// Eval interprets expr directly against a set of named inputs. This is the
// portable fallback path: it runs on every platform and is always correct,
// just not compiled to machine code.
func Eval(expr Expr, inputs map[string]int64) (int64, error) {
	switch v := expr.(type) {
	case Const:
		return int64(v), nil
	case Input:
		val, ok := inputs[string(v)]
		if !ok {
			return 0, herr.ValidationErr("jit.Eval", "unbound input: "+string(v))
		}
		return val, nil
	case BinOp:
		left, err := Eval(v.Left, inputs)
		if err != nil {
			return 0, err
		}
		right, err := Eval(v.Right, inputs)
		if err != nil {
			return 0, err
		}
		switch v.Op {
		case OpAdd:
			return left + right, nil
		case OpSub:
			return left - right, nil
		case OpMul:
			return left * right, nil
		case OpDiv:
			if right == 0 {
				return 0, herr.New(herr.Validation, "jit.Eval", "division by zero")
			}
			return left / right, nil
		case OpMod:
			if right == 0 {
				return 0, herr.New(herr.Validation, "jit.Eval", "modulo by zero")
			}
			return left % right, nil
		case OpAnd:
			return left & right, nil
		case OpOr:
			return left | right, nil
		case OpXor:
			return left ^ right, nil
		default:
			return 0, herr.ValidationErr("jit.Eval", "unknown binary op")
		}
	case UnaryOpExpr:
		val, err := Eval(v.Expr, inputs)
		if err != nil {
			return 0, err
		}
		switch v.Op {
		case OpNeg:
			return -val, nil
		case OpNot:
			return ^val, nil
		case OpAbs:
			if val < 0 {
				return -val, nil
			}
			return val, nil
		default:
			return 0, herr.ValidationErr("jit.Eval", "unknown unary op")
		}
	default:
		return 0, herr.ValidationErr("jit.Eval", "unknown expression node")
	}
}

// eval1 interprets expr as a single-input expression, binding the sole
// distinct Input name (if any) to input.
func eval1(expr Expr, inputName string, input int64) (int64, error) {
	if inputName == "" {
		return Eval(expr, nil)
	}
	return Eval(expr, map[string]int64{inputName: input})
}

// CompiledDataflow is a dataflow expression reduced to a callable of
// signature i64 -> i64, either backed by native machine code or, when native
// codegen is unavailable or refuses the expression, left uncompiled with
// execution still available through the portable interpreter for the
// single-input case and exact stats tracking either way.
type CompiledDataflow struct {
	name      string
	expr      Expr
	inputName string // the sole distinct input name, or "" if none

	code      nativeCode // nil if not natively compiled
	execCount uint64
	totalNs   uint64
}

// New builds a CompiledDataflow from expr, attempting native compilation.
// If native compilation is unsupported on this platform or refuses expr
// (more than one distinct input, or a codegen error), New still succeeds but
// returns a dataflow with IsCompiled()==false — callers that require native
// speed should check IsCompiled and fall back to Eval or stats-only
// accounting themselves.
func New(name string, expr Expr) (*CompiledDataflow, error) {
	names := inputNames(expr)
	inputName := ""
	if len(names) == 1 {
		inputName = names[0]
	}

	cd := &CompiledDataflow{name: name, expr: expr, inputName: inputName}
	if len(names) > 1 {
		// The native code takes a single i64 parameter; leave it uncompiled.
		return cd, nil
	}
	code, err := compileNative(expr, inputName)
	if err == nil {
		cd.code = code
	}
	// A native compile failure is not fatal to New: the dataflow degrades to
	// uncompiled (IsCompiled() == false), matching the stats-only fallback
	// contract rather than returning an error from New itself.
	return cd, nil
}

// NewArithmetic builds a CompiledDataflow computing input*multiplier+addend,
// a common single-parameter scaling pipeline.
func NewArithmetic(name string, multiplier, addend int64) (*CompiledDataflow, error) {
	expr := BinOp{
		Op:   OpAdd,
		Left: BinOp{Op: OpMul, Left: Input("input"), Right: Const(multiplier)},
		Right: Const(addend),
	}
	return New(name, expr)
}

// NewStatsOnly creates a CompiledDataflow with no compiled function at all,
// for nodes whose computation cannot be expressed as a dataflow expression
// but whose execution time the caller still wants tracked uniformly via
// RecordExecution.
func NewStatsOnly(name string) *CompiledDataflow {
	return &CompiledDataflow{name: name}
}

// IsCompiled reports whether native machine code backs this dataflow.
func (c *CompiledDataflow) IsCompiled() bool {
	return c.code != nil
}

// Execute runs the compiled dataflow, natively or via the interpreter
// fallback. It panics on evaluation errors (e.g. division by zero); use
// TryExecute for error handling instead of panics.
func (c *CompiledDataflow) Execute(input int64) int64 {
	result, err := c.TryExecute(input)
	if err != nil {
		panic("jit: cannot execute '" + c.name + "': " + err.Error())
	}
	return result
}

// TryExecute runs the compiled dataflow. When native code is available it
// runs that; otherwise it falls back to the portable interpreter over expr,
// so callers never have to special-case an uncompiled dataflow themselves.
func (c *CompiledDataflow) TryExecute(input int64) (int64, error) {
	start := time.Now()
	if c.code == nil {
		result, err := eval1(c.expr, c.inputName, input)
		if err != nil {
			return 0, err
		}
		c.record(time.Since(start))
		return result, nil
	}
	result := c.code.call(input)
	c.record(time.Since(start))
	return result, nil
}

// RecordExecution adds one execution sample without running anything, for
// stats-only dataflows wrapping a caller-measured tick body.
func (c *CompiledDataflow) RecordExecution(elapsed time.Duration) {
	c.record(elapsed)
}

func (c *CompiledDataflow) record(elapsed time.Duration) {
	c.execCount++
	c.totalNs += uint64(elapsed.Nanoseconds())
}

// AvgExecNs returns the average execution time in nanoseconds across all
// recorded executions.
func (c *CompiledDataflow) AvgExecNs() float64 {
	if c.execCount == 0 {
		return 0
	}
	return float64(c.totalNs) / float64(c.execCount)
}

// IsFastEnough reports whether the average execution time is under 100ns,
// the rough threshold at which JIT compilation is worth its own overhead.
func (c *CompiledDataflow) IsFastEnough() bool {
	return c.AvgExecNs() < 100.0
}

// ExecCount returns the number of recorded executions.
func (c *CompiledDataflow) ExecCount() uint64 { return c.execCount }

// Name returns the dataflow's name.
func (c *CompiledDataflow) Name() string { return c.name }

// Expr returns the underlying expression tree, usable with Eval directly
// (e.g. from the Normal tier when IsCompiled() is false).
func (c *CompiledDataflow) Expr() Expr { return c.expr }
