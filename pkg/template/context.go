// Copyright Contributors to the KubeTask project

package template

import (
	"encoding/json"

	"github.com/go-logr/logr"

	"github.com/kubetask/jobexpander/pkg/jexerr"
	"github.com/kubetask/jobexpander/pkg/jobmodel"
	"github.com/kubetask/jobexpander/pkg/paramvalidate"
)

// maxRenderDepth bounds the recursive re-render triggered by an
// object-valued parameters()/variables() lookup, so a self-referencing
// variable fails instead of recursing forever.
const maxRenderDepth = 32

// Context carries the declared parameters, caller-supplied parameter
// values, and declared variables of one template document through a single
// expansion. It also caches resolved parameter values so a parameter
// referenced multiple times is validated once, and bounds recursive
// re-render depth for object-valued parameters/variables.
type Context struct {
	Definitions map[string]paramvalidate.Definition
	Values      jobmodel.Doc
	Variables   jobmodel.Doc
	Logger      logr.Logger

	cache map[string]any
	depth int
}

// NewContext builds a Context from a template's raw "parameters" and
// "variables" sections plus the caller-supplied parameter values.
func NewContext(rawParameters, values, variables jobmodel.Doc, logger logr.Logger) (*Context, error) {
	defs := make(map[string]paramvalidate.Definition, len(rawParameters))
	for name, raw := range rawParameters {
		d, ok := raw.(map[string]any)
		if !ok {
			return nil, jexerr.New(jexerr.TypeMismatch, "parameter %q definition is not an object", name)
		}
		def, err := paramvalidate.DefinitionFromDoc(d)
		if err != nil {
			kind := jexerr.Unsupported
			if je, ok := err.(*jexerr.Error); ok {
				kind = je.Kind
			}
			return nil, jexerr.Wrap(kind, err, "parameter %q", name)
		}
		defs[name] = def
	}
	if values == nil {
		values = jobmodel.Doc{}
	}
	if variables == nil {
		variables = jobmodel.Doc{}
	}
	return &Context{
		Definitions: defs,
		Values:      values,
		Variables:   variables,
		Logger:      logger,
		cache:       make(map[string]any),
	}, nil
}

func lookupCallerValue(values jobmodel.Doc, name string) (any, bool) {
	v, ok := values[name]
	if !ok {
		return nil, false
	}
	if m, ok2 := v.(map[string]any); ok2 {
		if val, has := m["value"]; has {
			return val, true
		}
	}
	return v, true
}

// resolveParameter handles parameters('name').
func (c *Context) resolveParameter(name string) (any, error) {
	if v, ok := c.cache["param:"+name]; ok {
		return v, nil
	}
	def, ok := c.Definitions[name]
	if !ok {
		return nil, jexerr.New(jexerr.TypeMismatch, "unknown parameter %q", name)
	}
	var value any
	if raw, hasRaw := lookupCallerValue(c.Values, name); hasRaw {
		value = raw
	} else if def.HasDefault {
		value = def.DefaultValue
	} else {
		return nil, jexerr.New(jexerr.OutOfRange, "parameter %q has no supplied value and no default", name)
	}

	switch value.(type) {
	case map[string]any, []any:
		rendered, err := c.renderObject(value)
		if err != nil {
			return nil, err
		}
		c.cache["param:"+name] = rendered
		return rendered, nil
	}

	coerced, err := paramvalidate.Validate(name, def, value)
	if err != nil {
		return nil, err
	}
	c.cache["param:"+name] = coerced
	return coerced, nil
}

// resolveVariable handles variables('name').
func (c *Context) resolveVariable(name string) (any, error) {
	if v, ok := c.cache["var:"+name]; ok {
		return v, nil
	}
	raw, ok := c.Variables[name]
	if !ok {
		return nil, jexerr.New(jexerr.OutOfRange, "unknown variable %q", name)
	}
	var result any
	var err error
	switch v := raw.(type) {
	case string:
		if c.depth >= maxRenderDepth {
			return nil, jexerr.New(jexerr.Parse, "variable %q recursion exceeded depth %d", name, maxRenderDepth)
		}
		c.depth++
		result, err = Evaluate(v, c)
		c.depth--
	case map[string]any, []any:
		result, err = c.renderObject(v)
	default:
		result = v
	}
	if err != nil {
		return nil, err
	}
	c.cache["var:"+name] = result
	return result, nil
}

// renderObject re-renders an object-valued parameter/variable by
// serializing it and feeding it back through Render as an inline source.
func (c *Context) renderObject(value any) (any, error) {
	if c.depth >= maxRenderDepth {
		return nil, jexerr.New(jexerr.Parse, "recursive template re-render exceeded depth %d", maxRenderDepth)
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, jexerr.Wrap(jexerr.Parse, err, "failed to serialize object-valued parameter/variable for re-render")
	}
	c.depth++
	defer func() { c.depth-- }()
	return Render(string(b), c)
}
