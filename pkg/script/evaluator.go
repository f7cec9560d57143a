// Package script is the evaluation sandbox for transform-to/from-target
// scripts, custom filter expressions, and correlation transforms. Scripts
// are starlark programs exposing a transform(...) function.
package script

import (
	"context"
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"
)

type Evaluator struct {
	logger *zap.Logger
}

func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger.Named("script")}
}

// Evaluate executes src and calls its transform function with vars passed as
// keyword arguments. A script without a transform function is an error; the
// engine never guesses at entry points.
func (e *Evaluator) Evaluate(ctx context.Context, src string, vars map[string]any) (any, error) {
	thread := &starlark.Thread{
		Name: "transform",
		Print: func(_ *starlark.Thread, msg string) {
			e.logger.Debug("script print", zap.String("msg", msg))
		},
	}

	opts := &syntax.FileOptions{
		Set:             true,
		GlobalReassign:  true,
		TopLevelControl: true,
		Recursion:       true,
	}

	globals, err := starlark.ExecFileOptions(opts, thread, "transform.star", src, MakeBuiltins(ctx))
	if err != nil {
		return nil, fmt.Errorf("execute script: %w", err)
	}

	fn, ok := globals["transform"]
	if !ok {
		return nil, fmt.Errorf("script defines no transform function")
	}
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("transform is not callable")
	}

	kwargs := make([]starlark.Tuple, 0, len(vars))
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kwargs = append(kwargs, starlark.Tuple{starlark.String(k), toStarlark(vars[k])})
	}

	result, err := starlark.Call(thread, callable, nil, kwargs)
	if err != nil {
		return nil, fmt.Errorf("transform failed: %w", err)
	}
	return fromStarlark(result), nil
}

func toStarlark(v any) starlark.Value {
	switch val := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(val)
	case int:
		return starlark.MakeInt(val)
	case int32:
		return starlark.MakeInt(int(val))
	case int64:
		return starlark.MakeInt64(val)
	case uint64:
		return starlark.MakeUint64(val)
	case float64:
		return starlark.Float(val)
	case string:
		return starlark.String(val)
	case []string:
		items := make([]starlark.Value, len(val))
		for i, item := range val {
			items[i] = starlark.String(item)
		}
		return starlark.NewList(items)
	case []any:
		items := make([]starlark.Value, len(val))
		for i, item := range val {
			items[i] = toStarlark(item)
		}
		return starlark.NewList(items)
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			_ = dict.SetKey(starlark.String(k), toStarlark(item))
		}
		return dict
	default:
		return starlark.String(fmt.Sprintf("%v", val))
	}
}

func fromStarlark(v starlark.Value) any {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(val)
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return i
		}
		return val.String()
	case starlark.Float:
		return float64(val)
	case starlark.String:
		return string(val)
	case *starlark.List:
		out := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			out[i] = fromStarlark(val.Index(i))
		}
		return out
	case starlark.Tuple:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromStarlark(item)
		}
		return out
	case *starlark.Dict:
		out := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			if key, ok := item[0].(starlark.String); ok {
				out[string(key)] = fromStarlark(item[1])
			}
		}
		return out
	default:
		return val.String()
	}
}
