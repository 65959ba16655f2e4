package booter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Builder loads module definitions into a Booter. Variables set on the
// builder are visible to every definition by their bare name, next to
// the DefaultFunctions and the <define>_<attr> variables.
type Builder interface {
	BuildWithContent(content []byte) (Booter, error)
	BuildWithFiles(files []string) (Booter, error)
	BuildWithDir(configDir string) (Booter, error)
	SetVariable(name string, value any) error
}

const configFileSuffix = ".hcl"

type builder struct {
	variables map[string]cty.Value
}

func NewBuilder() Builder {
	return &builder{variables: map[string]cty.Value{}}
}

func (bld *builder) BuildWithContent(content []byte) (Booter, error) {
	definitions, err := LoadDefinitions(content, bld.evalContext())
	if err != nil {
		return nil, err
	}
	return NewWithDefinitions(definitions)
}

func (bld *builder) BuildWithFiles(files []string) (Booter, error) {
	definitions, err := LoadDefinitionFiles(files, bld.evalContext())
	if err != nil {
		return nil, err
	}
	return NewWithDefinitions(definitions)
}

// BuildWithDir loads every *.hcl file of configDir in name order.
func (bld *builder) BuildWithDir(configDir string) (Booter, error) {
	entries, err := os.ReadDir(configDir)
	if err != nil {
		return nil, fmt.Errorf("invalid config directory, %s", err.Error())
	}
	files := make([]string, 0, len(entries))
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), configFileSuffix) {
			continue
		}
		files = append(files, filepath.Join(configDir, ent.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files in %s", configFileSuffix, configDir)
	}
	sort.Strings(files)
	return bld.BuildWithFiles(files)
}

// SetVariable accepts any value gocty can map: strings, bools, numbers
// and slices or maps of them.
func (bld *builder) SetVariable(name string, value any) error {
	if !hclsyntax.ValidIdentifier(name) {
		return fmt.Errorf("invalid variable name %q", name)
	}
	ty, err := gocty.ImpliedType(value)
	if err != nil {
		return fmt.Errorf("variable %s, %s", name, err.Error())
	}
	v, err := gocty.ToCtyValue(value, ty)
	if err != nil {
		return fmt.Errorf("variable %s, %s", name, err.Error())
	}
	bld.variables[name] = v
	return nil
}

// evalContext is fresh per build; define blocks add to its variables.
func (bld *builder) evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(bld.variables))
	for k, v := range bld.variables {
		vars[k] = v
	}
	return &hcl.EvalContext{Variables: vars}
}
