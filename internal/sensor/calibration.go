package sensor

import (
	"fmt"

	"github.com/Knetic/govaluate"
)

// Calibration maps a raw probe value through an expression in which x is the
// raw value. Other variables name channels whose latest readings are supplied
// at evaluation time, for example "x + 0.019*(25 - temp)".
type Calibration struct {
	source string
	expr   *govaluate.EvaluableExpression
}

// ParseCalibration compiles expr. An empty expression is the identity.
func ParseCalibration(expr string) (*Calibration, error) {
	if expr == "" {
		return &Calibration{}, nil
	}
	e, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, fmt.Errorf("calibration %q: %w", expr, err)
	}
	return &Calibration{source: expr, expr: e}, nil
}

// Vars returns the variables the expression needs besides x.
func (c *Calibration) Vars() []string {
	if c.expr == nil {
		return nil
	}
	var out []string
	seen := map[string]bool{"x": true}
	for _, v := range c.expr.Vars() {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Apply evaluates the expression for raw value x.
func (c *Calibration) Apply(x float64, vars map[string]float64) (float64, error) {
	if c.expr == nil {
		return x, nil
	}
	params := make(map[string]interface{}, len(vars)+1)
	for k, v := range vars {
		params[k] = v
	}
	params["x"] = x
	res, err := c.expr.Evaluate(params)
	if err != nil {
		return 0, fmt.Errorf("calibration %q: %w", c.source, err)
	}
	f, ok := res.(float64)
	if !ok {
		return 0, fmt.Errorf("calibration %q: result %v is not a number", c.source, res)
	}
	return f, nil
}

func (c *Calibration) String() string {
	return c.source
}
