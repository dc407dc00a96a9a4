package realtime

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/saferoute/hazardwatch/internal/hazard"
)

var (
	filterEnvOnce sync.Once
	filterEnv     *cel.Env
	filterEnvErr  error
)

func celEnv() (*cel.Env, error) {
	filterEnvOnce.Do(func() {
		filterEnv, filterEnvErr = cel.NewEnv(
			cel.Variable("hazard", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return filterEnv, filterEnvErr
}

// Filter is a compiled CEL predicate over the variable "hazard", a map with
// keys id, type, severity, priority, affectsTraffic, weatherRelated, status,
// description and event. A nil *Filter matches every event.
type Filter struct {
	expr string
	prg  cel.Program
}

// CompileFilter compiles expr. An empty expression yields a nil filter.
func CompileFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	env, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	switch ast.OutputType().Kind() {
	case types.BoolKind, types.DynKind:
	default:
		return nil, fmt.Errorf("filter must evaluate to bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program creation error: %w", err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match evaluates the filter. Evaluation errors and non-bool results count
// as no match.
func (f *Filter) Match(evt hazard.Event) bool {
	if f == nil {
		return true
	}
	out, _, err := f.prg.Eval(map[string]interface{}{"hazard": filterVars(evt)})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

func filterVars(evt hazard.Event) map[string]interface{} {
	return map[string]interface{}{
		"id":             evt.HazardID,
		"type":           evt.HazardType,
		"severity":       string(evt.Severity),
		"priority":       int64(evt.PriorityLevel),
		"affectsTraffic": evt.AffectsTraffic,
		"weatherRelated": evt.WeatherRelated,
		"status":         evt.Status,
		"description":    evt.Description,
		"event":          evt.RawType,
	}
}
