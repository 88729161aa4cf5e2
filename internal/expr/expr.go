// Package expr provides the restricted expression sandbox used for
// user-supplied custom-field formulas. Expressions are compiled once and
// evaluated per row against a flat attribute map; there is no access to
// anything outside the supplied environment.
package expr

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/PaesslerAG/gval"

	"github.com/sokolovdp/finmars-core-sub005/internal/apperrors"
)

const dateLayout = "2006-01-02"

// Evaluable is one compiled expression.
type Evaluable struct {
	eval gval.Evaluable
}

var language = gval.Full(
	gval.Function("iff", func(cond bool, a, b any) any {
		if cond {
			return a
		}
		return b
	}),
	gval.Function("round_to", func(x float64, digits float64) float64 {
		pow := math.Pow(10, digits)
		return math.Round(x*pow) / pow
	}),
	gval.Function("add_days", func(date any, days float64) (string, error) {
		d, err := toDate(date)
		if err != nil {
			return "", err
		}
		return d.AddDate(0, 0, int(days)).Format(dateLayout), nil
	}),
	gval.Function("format_date", func(date any, layout string) (string, error) {
		d, err := toDate(date)
		if err != nil {
			return "", err
		}
		return d.Format(layout), nil
	}),
	gval.Function("generate_user_code", func(prefix, suffix string, code float64) string {
		userCode := fmt.Sprintf("%s%08d", strings.ToLower(prefix), int64(code))
		if suffix != "" {
			userCode += "_" + strings.ToLower(suffix)
		}
		return userCode
	}),
	gval.Function("upper", strings.ToUpper),
	gval.Function("lower", strings.ToLower),
	gval.Function("contains", strings.Contains),
	gval.Function("abs", math.Abs),
)

func toDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case string:
		parsed, err := time.Parse(dateLayout, d)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", d, err)
		}
		return parsed, nil
	}
	return time.Time{}, fmt.Errorf("cannot interpret %T as date", v)
}

// Compile parses an expression against the sandbox language.
func Compile(source string) (*Evaluable, error) {
	eval, err := language.NewEvaluable(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidExpression, err)
	}
	return &Evaluable{eval: eval}, nil
}

// Eval applies the expression to a row environment.
func (e *Evaluable) Eval(ctx context.Context, env map[string]any) (any, error) {
	value, err := e.eval(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrExpressionFailed, err)
	}
	return value, nil
}

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Dependencies scans the expression text for identifiers present in the
// known set. It over-approximates (identifiers inside string literals also
// match), which only costs evaluation order, never correctness.
func Dependencies(source string, known map[string]struct{}) []string {
	var deps []string
	seen := make(map[string]struct{})
	for _, ident := range identifierPattern.FindAllString(source, -1) {
		if _, ok := known[ident]; !ok {
			continue
		}
		if _, dup := seen[ident]; dup {
			continue
		}
		seen[ident] = struct{}{}
		deps = append(deps, ident)
	}
	return deps
}

// Order sorts field names so each field evaluates after the fields it
// references. The second return lists fields caught in reference cycles;
// those are appended last, in input order, and need iterative passes.
func Order(names []string, dependencies map[string][]string) (ordered []string, cyclic []string) {
	indegree := make(map[string]int, len(names))
	dependents := make(map[string][]string, len(names))
	for _, name := range names {
		indegree[name] = 0
	}
	for _, name := range names {
		for _, dep := range dependencies[name] {
			if dep == name {
				continue
			}
			if _, ok := indegree[dep]; !ok {
				continue
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for _, name := range names {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	done := make(map[string]struct{}, len(names))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		ordered = append(ordered, name)
		done[name] = struct{}{}
		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	for _, name := range names {
		if _, ok := done[name]; !ok {
			cyclic = append(cyclic, name)
		}
	}
	return ordered, cyclic
}
