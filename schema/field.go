package schema

import "github.com/jacentio/vellum/internal/paths"

// Kind declares the stored shape of a field. Index, unique and partition
// key paths are checked against it at schema-build time.
type Kind int

const (
	// Scalar is a single string/number/bool leaf.
	Scalar Kind = iota

	// ScalarArray is an array of scalar leaves.
	ScalarArray

	// Object is a nested object.
	Object

	// ObjectArray is an array of nested objects.
	ObjectArray
)

func (k Kind) pathKind() paths.Kind {
	switch k {
	case ScalarArray:
		return paths.ScalarArray
	case Object:
		return paths.Object
	case ObjectArray:
		return paths.ObjectArray
	default:
		return paths.Scalar
	}
}

// Transform is a pure bidirectional mapping between a field's stored and
// runtime representations. Transforms never fail: a stored value that
// cannot be decoded is a data-corruption condition owned by the caller.
// Stateless and safe to share.
type Transform struct {
	// Deserialize maps the stored representation to the runtime one.
	Deserialize func(stored any) any

	// Serialize maps the runtime representation back to the stored one.
	Serialize func(runtime any) any
}

// Field describes one named property of a collection.
type Field struct {
	// Name is the wire-level property name.
	Name string

	// Kind is the declared shape, used for path checking.
	Kind Kind

	// Required marks the field as mandatory in the derived JSON Schema.
	Required bool

	// Validation is the field's JSON-Schema fragment.
	Validation map[string]any

	// Codec optionally converts between stored and runtime values.
	Codec *Transform
}
