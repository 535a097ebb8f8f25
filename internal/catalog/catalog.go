// Package catalog declares every operation the gateway exposes. Cacheability
// and parameter schemas are static properties of a declaration, never
// inferred at runtime: read-only operations are cacheable, anything that
// mutates backend state bypasses the result cache entirely.
package catalog

import (
	"fmt"
	"time"

	dErrors "vcgate/pkg/domain-errors"
)

// Category groups operations for registration and logging.
type Category string

const (
	CategoryVM       Category = "vm"
	CategoryHost     Category = "host"
	CategorySnapshot Category = "snapshot"
	CategoryResource Category = "resource"
	CategoryAI       Category = "ai"
)

// Param describes one named parameter of an operation.
type Param struct {
	Type        string // "string", "boolean", "integer", "object"
	Description string
	Required    bool
}

// Operation is one declared tool. Declarations are immutable after Load.
type Operation struct {
	Name        string
	Description string
	Category    Category
	Params      map[string]Param
	// Cacheable marks read-only, deterministic operations whose results may
	// be served from the result cache within the TTL window.
	Cacheable bool
	// Timeout overrides the system operation timeout when positive.
	Timeout time.Duration
}

// RequiredParams returns the names of required parameters, for schema export.
func (o Operation) RequiredParams() []string {
	var required []string
	for name, p := range o.Params {
		if p.Required {
			required = append(required, name)
		}
	}
	return required
}

// ValidateParams checks presence and JSON type of each supplied parameter.
// Unknown parameters are rejected so typos fail loudly instead of being
// silently ignored by the backend.
func (o Operation) ValidateParams(params map[string]any) error {
	for name, decl := range o.Params {
		value, present := params[name]
		if !present {
			if decl.Required {
				return dErrors.Newf(dErrors.CodeValidation, "missing required parameter %q", name)
			}
			continue
		}
		if !typeMatches(decl.Type, value) {
			return dErrors.Newf(dErrors.CodeValidation, "parameter %q must be a %s", name, decl.Type)
		}
	}
	for name := range params {
		if _, ok := o.Params[name]; !ok {
			return dErrors.Newf(dErrors.CodeValidation, "unknown parameter %q", name)
		}
	}
	return nil
}

func typeMatches(declared string, value any) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		// JSON numbers decode as float64; accept whole values only.
		f, ok := value.(float64)
		if ok {
			return f == float64(int64(f))
		}
		_, ok = value.(int)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return false
	}
}

// Catalog is the immutable set of declared operations.
type Catalog struct {
	ops   map[string]Operation
	order []string
}

// New builds a catalog from declarations; duplicate names are a programming
// error surfaced at startup.
func New(ops []Operation) (*Catalog, error) {
	c := &Catalog{ops: make(map[string]Operation, len(ops))}
	for _, op := range ops {
		if _, exists := c.ops[op.Name]; exists {
			return nil, fmt.Errorf("duplicate operation declaration %q", op.Name)
		}
		c.ops[op.Name] = op
		c.order = append(c.order, op.Name)
	}
	return c, nil
}

// Lookup resolves a declaration by name.
func (c *Catalog) Lookup(name string) (Operation, bool) {
	op, ok := c.ops[name]
	return op, ok
}

// All returns declarations in registration order.
func (c *Catalog) All() []Operation {
	ops := make([]Operation, 0, len(c.order))
	for _, name := range c.order {
		ops = append(ops, c.ops[name])
	}
	return ops
}

// Len reports the number of declared operations.
func (c *Catalog) Len() int {
	return len(c.ops)
}
