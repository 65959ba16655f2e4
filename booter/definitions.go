package booter

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Definition is one `module "<id>" { ... }` block.
type Definition struct {
	Id       string
	Name     string
	Priority int
	Disabled bool
	Config   cty.Value
	Injects  []InjectionDef
}

// InjectionDef assigns the defining module's instance to Target's FieldName,
// either a struct field or a setter method.
type InjectionDef struct {
	Target    string
	FieldName string
}

var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "module", LabelNames: []string{"id"}},
		{Type: "define", LabelNames: []string{"id"}},
	},
}

var moduleSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "priority"},
		{Name: "disabled"},
		{Name: "name"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "config"},
		{Type: "inject", LabelNames: []string{"target", "field"}},
	},
}

const defaultPriorityBase = 1000

func LoadDefinitionFiles(files []string, evalCtx *hcl.EvalContext) ([]*Definition, error) {
	body, err := LoadFile(files...)
	if err != nil {
		return nil, err
	}
	return ParseDefinitions(body, evalCtx)
}

func LoadDefinitions(content []byte, evalCtx *hcl.EvalContext) ([]*Definition, error) {
	body, err := Load(content)
	if err != nil {
		return nil, err
	}
	return ParseDefinitions(body, evalCtx)
}

// ParseDefinitions evaluates `define` blocks into variables named
// <define-id>_<attr>, then parses every module block. The result is
// sorted by priority; modules without one keep their file order.
func ParseDefinitions(body hcl.Body, evalCtx *hcl.EvalContext) ([]*Definition, error) {
	if evalCtx == nil {
		evalCtx = &hcl.EvalContext{}
	}
	if evalCtx.Functions == nil {
		evalCtx.Functions = make(map[string]function.Function, len(DefaultFunctions))
		for k, v := range DefaultFunctions {
			evalCtx.Functions[k] = v
		}
	}
	if evalCtx.Variables == nil {
		evalCtx.Variables = make(map[string]cty.Value)
	}

	content, diag := body.Content(rootSchema)
	if diag.HasErrors() {
		return nil, errors.New(diag.Error())
	}

	var modules []*hcl.Block
	for _, block := range content.Blocks {
		switch block.Type {
		case "define":
			if err := evalDefine(block, evalCtx); err != nil {
				return nil, err
			}
		case "module":
			modules = append(modules, block)
		}
	}

	result := make([]*Definition, 0, len(modules))
	for i, m := range modules {
		def, err := parseModule(i, m, evalCtx)
		if err != nil {
			return nil, err
		}
		result = append(result, def)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority < result[j].Priority
	})
	return result, nil
}

func evalDefine(block *hcl.Block, evalCtx *hcl.EvalContext) error {
	attrs, diag := block.Body.JustAttributes()
	if diag.HasErrors() {
		return errors.New(diag.Error())
	}
	for _, attr := range attrs {
		value, diag := attr.Expr.Value(evalCtx)
		if diag.HasErrors() {
			return errors.New(diag.Error())
		}
		evalCtx.Variables[fmt.Sprintf("%s_%s", block.Labels[0], attr.Name)] = value
	}
	return nil
}

func parseModule(seq int, block *hcl.Block, evalCtx *hcl.EvalContext) (*Definition, error) {
	def := &Definition{
		Id:       block.Labels[0],
		Name:     fmt.Sprintf("mod%02d", seq),
		Priority: defaultPriorityBase + seq,
		Config:   cty.EmptyObjectVal,
	}
	if offset := strings.LastIndex(def.Id, "/"); offset >= 0 && offset < len(def.Id)-1 {
		def.Name = fmt.Sprintf("%s%02d", def.Id[offset+1:], seq)
	}

	content, diag := block.Body.Content(moduleSchema)
	if diag.HasErrors() {
		return nil, errors.New(diag.Error())
	}
	for _, attr := range content.Attributes {
		value, diag := attr.Expr.Value(evalCtx)
		if diag.HasErrors() {
			return nil, errors.New(diag.Error())
		}
		switch attr.Name {
		case "priority":
			v, err := IntFromCty(value)
			if err != nil {
				return nil, fmt.Errorf("module %s priority, %s", def.Id, err.Error())
			}
			def.Priority = v
		case "disabled":
			v, err := BoolFromCty(value)
			if err != nil {
				return nil, fmt.Errorf("module %s disabled, %s", def.Id, err.Error())
			}
			def.Disabled = v
		case "name":
			def.Name = value.AsString()
		}
	}
	for _, c := range content.Blocks {
		switch c.Type {
		case "config":
			body, ok := c.Body.(*hclsyntax.Body)
			if !ok {
				return nil, fmt.Errorf("module %s config is not a native syntax block", def.Id)
			}
			obj, err := ObjectValFromBody(body, evalCtx)
			if err != nil {
				return nil, fmt.Errorf("module %s config, %s", def.Id, err.Error())
			}
			def.Config = obj
		case "inject":
			def.Injects = append(def.Injects, InjectionDef{Target: c.Labels[0], FieldName: c.Labels[1]})
		}
	}
	return def, nil
}

func LoadFile(files ...string) (hcl.Body, error) {
	hclFiles := make([]*hcl.File, 0, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		hclFile, diag := hclsyntax.ParseConfig(content, file, hcl.Pos{Line: 1, Column: 1})
		if diag.HasErrors() {
			return nil, errors.New(diag.Error())
		}
		hclFiles = append(hclFiles, hclFile)
	}
	return hcl.MergeFiles(hclFiles), nil
}

func Load(content []byte) (hcl.Body, error) {
	hclFile, diag := hclsyntax.ParseConfig(content, "content.hcl", hcl.Pos{Line: 1, Column: 1})
	if diag.HasErrors() {
		return nil, errors.New(diag.Error())
	}
	return hclFile.Body, nil
}

// ObjectValFromBody turns attributes into object fields. Nested blocks of the
// same type are collected into a tuple so that repeated blocks map to slices.
func ObjectValFromBody(body *hclsyntax.Body, evalCtx *hcl.EvalContext) (cty.Value, error) {
	rt := make(map[string]cty.Value)
	for _, attr := range body.Attributes {
		value, diag := attr.Expr.Value(evalCtx)
		if diag.HasErrors() {
			return cty.NilVal, errors.New(diag.Error())
		}
		rt[attr.Name] = value
	}
	repeated := map[string][]cty.Value{}
	order := []string{}
	for _, block := range body.Blocks {
		bval, err := ObjectValFromBody(block.Body, evalCtx)
		if err != nil {
			return cty.NilVal, err
		}
		if _, ok := repeated[block.Type]; !ok {
			order = append(order, block.Type)
		}
		repeated[block.Type] = append(repeated[block.Type], bval)
	}
	for _, name := range order {
		vals := repeated[name]
		if len(vals) == 1 {
			rt[name] = vals[0]
		} else {
			rt[name] = cty.TupleVal(vals)
		}
	}
	return cty.ObjectVal(rt), nil
}
