package jit

import "github.com/horus-rt/horus/internal/herr"

// opKind distinguishes a builder-recorded operation.
type opKind uint8

const (
	kindAdd opKind = iota
	kindSub
	kindMul
	kindDiv
	kindMod
	kindAnd
	kindOr
	kindXor
	kindNeg
	kindAbs
)

type builderOp struct {
	kind        opKind
	left, right string
	output      string
}

// Builder provides a fluent API for constructing a dataflow expression from
// named intermediate values, then compiling it.
type Builder struct {
	name      string
	inputs    []string
	constants map[string]int64
	ops       []builderOp
	output    string
}

// NewBuilder starts a builder with the conventional default input "input".
func NewBuilder() *Builder {
	return &Builder{
		name:      "dataflow",
		inputs:    []string{"input"},
		constants: make(map[string]int64),
	}
}

// Name sets the dataflow's name.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// Input adds a named input if not already present.
func (b *Builder) Input(name string) *Builder {
	for _, existing := range b.inputs {
		if existing == name {
			return b
		}
	}
	b.inputs = append(b.inputs, name)
	return b
}

// NoDefaultInput clears the default "input" input, for builders that name
// their own inputs from scratch.
func (b *Builder) NoDefaultInput() *Builder {
	b.inputs = nil
	return b
}

// Constant binds a named constant value.
func (b *Builder) Constant(name string, value int64) *Builder {
	b.constants[name] = value
	return b
}

func (b *Builder) binary(kind opKind, left, right, output string) *Builder {
	b.ops = append(b.ops, builderOp{kind: kind, left: left, right: right, output: output})
	return b
}

func (b *Builder) unary(kind opKind, input, output string) *Builder {
	b.ops = append(b.ops, builderOp{kind: kind, left: input, output: output})
	return b
}

func (b *Builder) Add(left, right, output string) *Builder      { return b.binary(kindAdd, left, right, output) }
func (b *Builder) Subtract(left, right, output string) *Builder { return b.binary(kindSub, left, right, output) }
func (b *Builder) Multiply(left, right, output string) *Builder { return b.binary(kindMul, left, right, output) }
func (b *Builder) Divide(left, right, output string) *Builder   { return b.binary(kindDiv, left, right, output) }
func (b *Builder) Modulo(left, right, output string) *Builder   { return b.binary(kindMod, left, right, output) }
func (b *Builder) BitwiseAnd(left, right, output string) *Builder {
	return b.binary(kindAnd, left, right, output)
}
func (b *Builder) BitwiseOr(left, right, output string) *Builder {
	return b.binary(kindOr, left, right, output)
}
func (b *Builder) BitwiseXor(left, right, output string) *Builder {
	return b.binary(kindXor, left, right, output)
}
func (b *Builder) Negate(input, output string) *Builder { return b.unary(kindNeg, input, output) }
func (b *Builder) Abs(input, output string) *Builder     { return b.unary(kindAbs, input, output) }

// Output sets the expression's output variable. If not called, the output of
// the last operation is used.
func (b *Builder) Output(name string) *Builder {
	b.output = name
	return b
}

// BuildExpr resolves the builder's operations into an Expr tree, without
// compiling it.
func (b *Builder) BuildExpr() (Expr, error) {
	if len(b.ops) == 0 {
		if len(b.inputs) == 0 {
			return nil, herr.ValidationErr("jit.Builder.BuildExpr", "no inputs or operations defined")
		}
		return Input(b.inputs[0]), nil
	}

	values := make(map[string]Expr, len(b.inputs)+len(b.constants)+len(b.ops))
	for _, name := range b.inputs {
		values[name] = Input(name)
	}
	for name, value := range b.constants {
		values[name] = Const(value)
	}

	for _, op := range b.ops {
		left, ok := values[op.left]
		if !ok {
			return nil, herr.ValidationErr("jit.Builder.BuildExpr", "unknown variable: "+op.left)
		}

		var result Expr
		switch op.kind {
		case kindNeg:
			result = UnaryOpExpr{Op: OpNeg, Expr: left}
		case kindAbs:
			result = UnaryOpExpr{Op: OpAbs, Expr: left}
		default:
			right, ok := values[op.right]
			if !ok {
				return nil, herr.ValidationErr("jit.Builder.BuildExpr", "unknown variable: "+op.right)
			}
			binOp, err := toBinaryOp(op.kind)
			if err != nil {
				return nil, err
			}
			result = BinOp{Op: binOp, Left: left, Right: right}
		}
		values[op.output] = result
	}

	outputName := b.output
	if outputName == "" {
		outputName = b.ops[len(b.ops)-1].output
	}
	expr, ok := values[outputName]
	if !ok {
		return nil, herr.ValidationErr("jit.Builder.BuildExpr", "output variable not found: "+outputName)
	}
	return expr, nil
}

func toBinaryOp(kind opKind) (BinaryOp, error) {
	switch kind {
	case kindAdd:
		return OpAdd, nil
	case kindSub:
		return OpSub, nil
	case kindMul:
		return OpMul, nil
	case kindDiv:
		return OpDiv, nil
	case kindMod:
		return OpMod, nil
	case kindAnd:
		return OpAnd, nil
	case kindOr:
		return OpOr, nil
	case kindXor:
		return OpXor, nil
	default:
		return 0, herr.ValidationErr("jit.Builder", "not a binary op")
	}
}

// Build resolves and compiles the dataflow to native code where possible.
func (b *Builder) Build() (*CompiledDataflow, error) {
	expr, err := b.BuildExpr()
	if err != nil {
		return nil, err
	}
	return New(b.name, expr)
}
