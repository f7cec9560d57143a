package script

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// MakeBuiltins returns the predeclared environment available to transform
// scripts.
func MakeBuiltins(ctx context.Context) starlark.StringDict {
	return starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"json":   makeJSONModule(),
		"base64": makeBase64Module(),
		"time":   makeTimeModule(),
		"hash":   makeHashModule(),
		"sql":    makeSQLModule(ctx),
	}
}

func makeJSONModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "json",
		Members: starlark.StringDict{
			"encode": starlark.NewBuiltin("json.encode", jsonEncode),
			"decode": starlark.NewBuiltin("json.decode", jsonDecode),
		},
	}
}

func jsonEncode(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackArgs("json.encode", args, kwargs, "value", &v); err != nil {
		return nil, err
	}
	data, err := json.Marshal(fromStarlark(v))
	if err != nil {
		return nil, err
	}
	return starlark.String(data), nil
}

func jsonDecode(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackArgs("json.decode", args, kwargs, "value", &s); err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return toStarlark(out), nil
}

func makeBase64Module() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "base64",
		Members: starlark.StringDict{
			"encode": starlark.NewBuiltin("base64.encode", base64Encode),
			"decode": starlark.NewBuiltin("base64.decode", base64Decode),
		},
	}
}

func base64Encode(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackArgs("base64.encode", args, kwargs, "value", &s); err != nil {
		return nil, err
	}
	return starlark.String(base64.StdEncoding.EncodeToString([]byte(s))), nil
}

func base64Decode(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackArgs("base64.decode", args, kwargs, "value", &s); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return starlark.String(data), nil
}

func makeTimeModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "time",
		Members: starlark.StringDict{
			"now": starlark.NewBuiltin("time.now", func(_ *starlark.Thread, _ *starlark.Builtin, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
				return starlark.String(time.Now().UTC().Format(time.RFC3339)), nil
			}),
			"parse":  starlark.NewBuiltin("time.parse", timeParse),
			"format": starlark.NewBuiltin("time.format", timeFormat),
		},
	}
}

func timeParse(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value, layout string
	layout = time.RFC3339
	if err := starlark.UnpackArgs("time.parse", args, kwargs, "value", &value, "layout?", &layout); err != nil {
		return nil, err
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return nil, err
	}
	return starlark.MakeInt64(t.Unix()), nil
}

func timeFormat(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var unix int64
	layout := time.RFC3339
	if err := starlark.UnpackArgs("time.format", args, kwargs, "unix", &unix, "layout?", &layout); err != nil {
		return nil, err
	}
	return starlark.String(time.Unix(unix, 0).UTC().Format(layout)), nil
}

func makeHashModule() *starlarkstruct.Module {
	hashFn := func(name string, sum func([]byte) string) *starlark.Builtin {
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var s string
			if err := starlark.UnpackArgs(name, args, kwargs, "value", &s); err != nil {
				return nil, err
			}
			return starlark.String(sum([]byte(s))), nil
		})
	}
	return &starlarkstruct.Module{
		Name: "hash",
		Members: starlark.StringDict{
			"md5": hashFn("hash.md5", func(b []byte) string {
				sum := md5.Sum(b)
				return hex.EncodeToString(sum[:])
			}),
			"sha1": hashFn("hash.sha1", func(b []byte) string {
				sum := sha1.Sum(b)
				return hex.EncodeToString(sum[:])
			}),
			"sha256": hashFn("hash.sha256", func(b []byte) string {
				sum := sha256.Sum256(b)
				return hex.EncodeToString(sum[:])
			}),
		},
	}
}
