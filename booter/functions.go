package booter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"
)

// DefaultFunctions are available in every definition file.
var DefaultFunctions = map[string]function.Function{
	"env":         GetEnvFunc,
	"envOrError":  GetEnvOrErrorFunc,
	"flag":        GetFlagFunc,
	"flagOrError": GetFlagOrErrorFunc,
	"arg":         GetArgFunc,
	"execDir":     GetExecutableDirFunc,
	"tempDir":     GetTempDirFunc,
	"userDir":     GetUserHomeDirFunc,
	"upper":       stdlib.UpperFunc,
	"lower":       stdlib.LowerFunc,
	"min":         stdlib.MinFunc,
	"max":         stdlib.MaxFunc,
	"strlen":      stdlib.StrlenFunc,
	"substr":      stdlib.SubstrFunc,
}

var nameParam = function.Parameter{Name: "name", Type: cty.String}
var defaultParam = function.Parameter{Name: "default", Type: cty.String, AllowNull: true}

func stringOrEmpty(v cty.Value) string {
	if v.IsNull() {
		return ""
	}
	return v.AsString()
}

var GetEnvFunc = function.New(&function.Spec{
	Params: []function.Parameter{nameParam, defaultParam},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		if out, ok := os.LookupEnv(args[0].AsString()); ok {
			return cty.StringVal(out), nil
		}
		return cty.StringVal(stringOrEmpty(args[1])), nil
	},
})

var GetEnvOrErrorFunc = function.New(&function.Spec{
	Params: []function.Parameter{nameParam},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		name := args[0].AsString()
		if out, ok := os.LookupEnv(name); ok {
			return cty.StringVal(out), nil
		}
		return cty.NilVal, fmt.Errorf("required env variable %s missing", name)
	},
})

// lookupFlag finds "--name value" or "--name=value" in os.Args.
func lookupFlag(name string) (string, bool) {
	for i, arg := range os.Args {
		if arg == name {
			if i < len(os.Args)-1 {
				return os.Args[i+1], true
			}
			return "", true
		}
		if v, ok := strings.CutPrefix(arg, name+"="); ok {
			return v, true
		}
	}
	return "", false
}

var GetFlagFunc = function.New(&function.Spec{
	Params: []function.Parameter{nameParam, defaultParam},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		if v, ok := lookupFlag(args[0].AsString()); ok {
			return cty.StringVal(v), nil
		}
		return cty.StringVal(stringOrEmpty(args[1])), nil
	},
})

var GetFlagOrErrorFunc = function.New(&function.Spec{
	Params: []function.Parameter{nameParam},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		name := args[0].AsString()
		if v, ok := lookupFlag(name); ok {
			return cty.StringVal(v), nil
		}
		return cty.NilVal, fmt.Errorf("required flag %s missing", name)
	},
})

// GetArgFunc returns the n-th positional argument, skipping flags.
var GetArgFunc = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "index", Type: cty.Number}, defaultParam},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		var idx int
		if err := gocty.FromCtyValue(args[0], &idx); err != nil {
			return cty.NilVal, err
		}
		positional := make([]string, 0, len(os.Args))
		for i, v := range os.Args {
			if i != 0 && strings.HasPrefix(v, "-") {
				continue
			}
			positional = append(positional, v)
		}
		if idx < 0 || idx >= len(positional) {
			return cty.StringVal(stringOrEmpty(args[1])), nil
		}
		return cty.StringVal(positional[idx]), nil
	},
})

var GetExecutableDirFunc = function.New(&function.Spec{
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		exePath, err := os.Executable()
		if err != nil {
			return cty.NilVal, err
		}
		dirPath, err := filepath.Abs(filepath.Dir(exePath))
		if err != nil {
			return cty.NilVal, err
		}
		return cty.StringVal(dirPath), nil
	},
})

var GetTempDirFunc = function.New(&function.Spec{
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		dirPath, err := filepath.Abs(os.TempDir())
		if err != nil {
			return cty.NilVal, err
		}
		return cty.StringVal(dirPath), nil
	},
})

var GetUserHomeDirFunc = function.New(&function.Spec{
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		homePath, err := os.UserHomeDir()
		if err != nil {
			return cty.NilVal, err
		}
		return cty.StringVal(homePath), nil
	},
})
