package tools

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

const ToolCalculator = "calculator"

// arithmetic only: digits, operators, parentheses and whitespace
var calculatorAllowed = regexp.MustCompile(`^[0-9+\-*/%^().\s]+$`)

func createCalculatorTool() Tool {
	return Tool{
		Name:        ToolCalculator,
		Description: "Evaluate an arithmetic expression such as \"(2 + 3) * 4\" or \"2 ^ 10\". Supports + - * / % ^ and parentheses. Use this for any calculation instead of doing math yourself.",
		Params: map[string]Param{
			"expression": {
				Kind:     KindString,
				Required: true,
				Desc:     "The arithmetic expression to evaluate, e.g. \"15 * 4 + 2\"",
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return Calculate(stringArg(args, "expression", "")), nil
		},
	}
}

// Calculate evaluates expression and returns the result or a readable error string.
func Calculate(expression string) string {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return "Error: expression is empty"
	}
	if !calculatorAllowed.MatchString(expression) {
		return fmt.Sprintf("Error: invalid characters in expression %q", expression)
	}

	out, err := expr.Eval(expression, nil)
	if err != nil {
		return fmt.Sprintf("Error: could not evaluate %q: %v", expression, err)
	}

	var f float64
	switch v := out.(type) {
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		f = v
	default:
		return fmt.Sprintf("Error: expression %q did not produce a number", expression)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprintf("Error: %q does not have a finite result", expression)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
