package schema

import "github.com/jacentio/vellum/store"

// Serialize maps runtime properties to the wire document, applying each
// field's codec in declaration order. Properties without a codec pass
// through untouched.
func (s *Schema) Serialize(props map[string]any) store.Document {
	doc := make(store.Document, len(props))
	for k, v := range props {
		doc[k] = v
	}
	for _, f := range s.fields {
		if f.Codec == nil || f.Codec.Serialize == nil {
			continue
		}
		if v, ok := doc[f.Name]; ok {
			doc[f.Name] = f.Codec.Serialize(v)
		}
	}
	return doc
}

// Deserialize maps a raw wire document back to runtime properties,
// applying each field's codec in declaration order and dropping the
// store metadata fields.
func (s *Schema) Deserialize(doc store.Document) map[string]any {
	props := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == store.FieldETag || k == store.FieldTimestamp {
			continue
		}
		props[k] = v
	}
	for _, f := range s.fields {
		if f.Codec == nil || f.Codec.Deserialize == nil {
			continue
		}
		if v, ok := props[f.Name]; ok {
			props[f.Name] = f.Codec.Deserialize(v)
		}
	}
	return props
}
