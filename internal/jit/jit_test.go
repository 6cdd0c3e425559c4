package jit

import "testing"

// exprInputPlus5TimesInputMinus3 builds (input + 5) * (input - 3), the
// canonical worked example for this compiler.
func exprInputPlus5TimesInputMinus3() Expr {
	return BinOp{
		Op:   OpMul,
		Left: BinOp{Op: OpAdd, Left: Input("input"), Right: Const(5)},
		Right: BinOp{Op: OpSub, Left: Input("input"), Right: Const(3)},
	}
}

func TestEvalWorkedExample(t *testing.T) {
	expr := exprInputPlus5TimesInputMinus3()
	cases := []struct {
		input int64
		want  int64
	}{
		{10, 105},
		{-2, -15},
	}
	for _, c := range cases {
		got, err := Eval(expr, map[string]int64{"input": c.input})
		if err != nil {
			t.Fatalf("Eval(%d): %v", c.input, err)
		}
		if got != c.want {
			t.Fatalf("Eval(%d) = %d, want %d", c.input, got, c.want)
		}
	}
}

func TestEvalDivisionByZero(t *testing.T) {
	expr := BinOp{Op: OpDiv, Left: Input("input"), Right: Const(0)}
	if _, err := Eval(expr, map[string]int64{"input": 1}); err == nil {
		t.Fatal("expected an error dividing by zero")
	}
}

func TestEvalUnaryOps(t *testing.T) {
	neg, _ := Eval(UnaryOpExpr{Op: OpNeg, Expr: Const(5)}, nil)
	if neg != -5 {
		t.Fatalf("neg(5) = %d, want -5", neg)
	}
	not, _ := Eval(UnaryOpExpr{Op: OpNot, Expr: Const(0)}, nil)
	if not != -1 {
		t.Fatalf("not(0) = %d, want -1", not)
	}
	absPos, _ := Eval(UnaryOpExpr{Op: OpAbs, Expr: Const(5)}, nil)
	absNeg, _ := Eval(UnaryOpExpr{Op: OpAbs, Expr: Const(-5)}, nil)
	if absPos != 5 || absNeg != 5 {
		t.Fatalf("abs(5)=%d abs(-5)=%d, want 5 and 5", absPos, absNeg)
	}
}

func TestBuilderFluentArithmetic(t *testing.T) {
	expr, err := NewBuilder().
		Name("scaling").
		Constant("scale", 2).
		Constant("offset", 10).
		Multiply("input", "scale", "scaled").
		Add("scaled", "offset", "output").
		Output("output").
		BuildExpr()
	if err != nil {
		t.Fatalf("BuildExpr: %v", err)
	}
	got, err := Eval(expr, map[string]int64{"input": 5})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got != 20 { // 5*2+10
		t.Fatalf("got %d, want 20", got)
	}
}

func TestBuilderSensorFusion(t *testing.T) {
	expr, err := NewBuilder().
		NoDefaultInput().
		Name("sensor_fusion").
		Input("sensor1").
		Input("sensor2").
		Constant("divisor", 2).
		Add("sensor1", "sensor2", "sum").
		Divide("sum", "divisor", "output").
		Output("output").
		BuildExpr()
	if err != nil {
		t.Fatalf("BuildExpr: %v", err)
	}
	got, err := Eval(expr, map[string]int64{"sensor1": 10, "sensor2": 20})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got != 15 {
		t.Fatalf("got %d, want 15", got)
	}
}

func TestBuilderUnknownVariableRejected(t *testing.T) {
	_, err := NewBuilder().Add("input", "ghost", "output").BuildExpr()
	if err == nil {
		t.Fatal("expected an error referencing an unbound variable")
	}
}

func TestBuilderNoOperationsDefaultsToFirstInput(t *testing.T) {
	expr, err := NewBuilder().BuildExpr()
	if err != nil {
		t.Fatalf("BuildExpr: %v", err)
	}
	if expr != Input("input") {
		t.Fatalf("expected bare Input(\"input\"), got %#v", expr)
	}
}

func TestNewStatsOnlyPanicsOnExecuteButNotTryExecute(t *testing.T) {
	cd := NewStatsOnly("unsupported_node")
	if cd.IsCompiled() {
		t.Fatal("stats-only dataflow must never report compiled")
	}
	if _, err := cd.TryExecute(1); err == nil {
		t.Fatal("expected TryExecute to error on an uncompiled dataflow")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected Execute to panic on an uncompiled dataflow")
		}
	}()
	cd.Execute(1)
}

func TestMultiInputExpressionRefusesNativeCompile(t *testing.T) {
	expr := BinOp{Op: OpAdd, Left: Input("a"), Right: Input("b")}
	cd, err := New("two_input", expr)
	if err != nil {
		t.Fatalf("New should not itself error on multi-input compile refusal: %v", err)
	}
	if cd.IsCompiled() {
		t.Fatal("a two-input expression must not report native compilation")
	}
	// Still usable through the portable interpreter directly.
	got, err := Eval(expr, map[string]int64{"a": 3, "b": 4})
	if err != nil || got != 7 {
		t.Fatalf("Eval(a+b) = %d, %v, want 7", got, err)
	}
}

func TestRecordExecutionTracksStats(t *testing.T) {
	cd := NewStatsOnly("n")
	cd.RecordExecution(50)
	cd.RecordExecution(150)
	if cd.ExecCount() != 2 {
		t.Fatalf("ExecCount() = %d, want 2", cd.ExecCount())
	}
	if cd.AvgExecNs() != 100 {
		t.Fatalf("AvgExecNs() = %f, want 100", cd.AvgExecNs())
	}
}
