// Package expr evaluates the small arithmetic language used by REG effect
// formulas: numeric literals, the variable `intensity`, + - * /, unary sign,
// parentheses and the functions abs, min and max.
//
// Expressions are parsed with go/parser and then walked against a node
// whitelist. Anything outside the whitelist (other identifiers, selectors,
// indexing, literals of other kinds) is rejected, and so is any non-finite
// result. Callers treat every error as "skip this effect".
package expr

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"
)

// VarIntensity is the only identifier an expression may reference.
const VarIntensity = "intensity"

const maxSourceLen = 512

var (
	ErrEmpty        = errors.New("expr: empty expression")
	ErrTooLong      = errors.New("expr: expression too long")
	ErrDivideByZero = errors.New("expr: division by zero")
	ErrNonFinite    = errors.New("expr: non-finite result")
)

// UnsupportedError reports a syntax element outside the whitelist.
type UnsupportedError struct {
	What string
}

func (e *UnsupportedError) Error() string { return "expr: unsupported " + e.What }

// Program is a validated expression ready for repeated evaluation.
type Program struct {
	src  string
	root ast.Expr
}

// Compile parses src and checks it against the whitelist.
func Compile(src string) (*Program, error) {
	s := strings.TrimSpace(src)
	if s == "" {
		return nil, ErrEmpty
	}
	if len(s) > maxSourceLen {
		return nil, ErrTooLong
	}
	root, err := parser.ParseExpr(s)
	if err != nil {
		return nil, fmt.Errorf("expr: parse %q: %w", s, err)
	}
	if err := check(root); err != nil {
		return nil, err
	}
	return &Program{src: s, root: root}, nil
}

// Eval compiles and evaluates src in one step.
func Eval(src string, intensity float64) (float64, error) {
	p, err := Compile(src)
	if err != nil {
		return 0, err
	}
	return p.Eval(intensity)
}

func (p *Program) String() string { return p.src }

// Eval evaluates the program with the given intensity binding.
func (p *Program) Eval(intensity float64) (float64, error) {
	v, err := eval(p.root, intensity)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNonFinite
	}
	return v, nil
}

func check(n ast.Expr) error {
	switch n := n.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return &UnsupportedError{What: "literal " + n.Value}
		}
		if _, err := strconv.ParseFloat(n.Value, 64); err != nil {
			return &UnsupportedError{What: "number " + n.Value}
		}
		return nil
	case *ast.Ident:
		if n.Name != VarIntensity {
			return &UnsupportedError{What: "identifier " + n.Name}
		}
		return nil
	case *ast.ParenExpr:
		return check(n.X)
	case *ast.UnaryExpr:
		if n.Op != token.ADD && n.Op != token.SUB {
			return &UnsupportedError{What: "unary operator " + n.Op.String()}
		}
		return check(n.X)
	case *ast.BinaryExpr:
		switch n.Op {
		case token.ADD, token.SUB, token.MUL, token.QUO:
		default:
			return &UnsupportedError{What: "operator " + n.Op.String()}
		}
		if err := check(n.X); err != nil {
			return err
		}
		return check(n.Y)
	case *ast.CallExpr:
		fn, ok := n.Fun.(*ast.Ident)
		if !ok {
			return &UnsupportedError{What: "call target"}
		}
		if n.Ellipsis.IsValid() {
			return &UnsupportedError{What: "variadic call"}
		}
		switch fn.Name {
		case "abs":
			if len(n.Args) != 1 {
				return fmt.Errorf("expr: abs takes 1 argument, got %d", len(n.Args))
			}
		case "min", "max":
			if len(n.Args) < 2 {
				return fmt.Errorf("expr: %s takes at least 2 arguments, got %d", fn.Name, len(n.Args))
			}
		default:
			return &UnsupportedError{What: "function " + fn.Name}
		}
		for _, a := range n.Args {
			if err := check(a); err != nil {
				return err
			}
		}
		return nil
	default:
		return &UnsupportedError{What: fmt.Sprintf("syntax %T", n)}
	}
}

func eval(n ast.Expr, intensity float64) (float64, error) {
	switch n := n.(type) {
	case *ast.BasicLit:
		return strconv.ParseFloat(n.Value, 64)
	case *ast.Ident:
		return intensity, nil
	case *ast.ParenExpr:
		return eval(n.X, intensity)
	case *ast.UnaryExpr:
		v, err := eval(n.X, intensity)
		if err != nil {
			return 0, err
		}
		if n.Op == token.SUB {
			return -v, nil
		}
		return v, nil
	case *ast.BinaryExpr:
		x, err := eval(n.X, intensity)
		if err != nil {
			return 0, err
		}
		y, err := eval(n.Y, intensity)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		default:
			if y == 0 {
				return 0, ErrDivideByZero
			}
			return x / y, nil
		}
	case *ast.CallExpr:
		args := make([]float64, len(n.Args))
		for i, a := range n.Args {
			v, err := eval(a, intensity)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		switch n.Fun.(*ast.Ident).Name {
		case "abs":
			return math.Abs(args[0]), nil
		case "min":
			m := args[0]
			for _, v := range args[1:] {
				m = math.Min(m, v)
			}
			return m, nil
		default:
			m := args[0]
			for _, v := range args[1:] {
				m = math.Max(m, v)
			}
			return m, nil
		}
	}
	return 0, &UnsupportedError{What: fmt.Sprintf("syntax %T", n)}
}
