package celengine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"
)

var envCache = sync.Map{}

// GetOrBuildEnv returns a cached environment declaring one variable per key of
// attrs. Environments are keyed by the sorted variable names and their types.
func GetOrBuildEnv(attrs map[string]any) (*cel.Env, error) {
	key := envKey(attrs)
	if v, ok := envCache.Load(key); ok {
		return v.(*cel.Env), nil
	}

	env, err := BuildCelEnvFromAttributes(attrs)
	if err == nil {
		envCache.Store(key, env)
	}

	return env, err
}

func envKey(attrs map[string]any) string {
	parts := make([]string, 0, len(attrs))
	for k, v := range attrs {
		parts = append(parts, k+":"+reflect.TypeOf(v).String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func typeOf(val any) *cel.Type {
	switch v := val.(type) {
	case string:
		return cel.StringType
	case int, int32, int64:
		return cel.IntType
	case float32, float64:
		return cel.DoubleType
	case bool:
		return cel.BoolType
	case []any:
		if len(v) > 0 {
			if _, ok := v[0].(map[string]any); ok {
				return cel.ListType(cel.MapType(cel.StringType, cel.DynType))
			}
		}
		return cel.ListType(cel.DynType)
	case []map[string]any:
		return cel.ListType(cel.MapType(cel.StringType, cel.DynType))
	case map[string]any:
		return cel.MapType(cel.StringType, cel.DynType)
	default:
		zap.L().Debug("unhandled cel attribute type", zap.String("type", fmt.Sprintf("%T", val)))
		return cel.DynType
	}
}

func BuildCelEnvFromAttributes(attrs map[string]any) (*cel.Env, error) {
	variables := make([]cel.EnvOption, 0, len(attrs))
	for key, val := range attrs {
		variables = append(variables, cel.Variable(key, typeOf(val)))
	}
	return cel.NewEnv(variables...)
}

func StructToMap(s any) map[string]any {
	if s == nil {
		return map[string]any{}
	}

	b, err := json.Marshal(s)
	if err != nil {
		zap.L().Debug("failed StructToMap Marshal", zap.Error(err))
		return map[string]any{}
	}

	var result map[string]any
	if err := json.Unmarshal(b, &result); err != nil {
		zap.L().Debug("failed StructToMap Unmarshal", zap.Error(err))
		return map[string]any{}
	}

	return result
}

// Compile type-checks expr and requires it to yield a bool.
func Compile(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression %q must return bool, got %s", expr, ast.OutputType())
	}
	return env.Program(ast)
}

func ValidateExpression(env *cel.Env, expr string) error {
	_, err := Compile(env, expr)
	return err
}

func Run(prg cel.Program, attrs map[string]any) (bool, error) {
	out, _, err := prg.Eval(attrs)
	if err != nil {
		return false, err
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", out.Value(), out.Value())
	}
	return b, nil
}

func Evaluate(env *cel.Env, expr string, attrs map[string]any) (bool, error) {
	prg, err := Compile(env, expr)
	if err != nil {
		return false, err
	}
	return Run(prg, attrs)
}
