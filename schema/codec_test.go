package schema_test

import (
	"reflect"
	"sort"
	"testing"

	"github.com/jacentio/vellum/schema"
	"github.com/jacentio/vellum/store"
)

// setCodec maps a stored []any of strings to a runtime map[string]bool set.
var setCodec = &schema.Transform{
	Deserialize: func(stored any) any {
		set := map[string]bool{}
		list, _ := stored.([]any)
		for _, v := range list {
			if s, ok := v.(string); ok {
				set[s] = true
			}
		}
		return set
	},
	Serialize: func(runtime any) any {
		set, _ := runtime.(map[string]bool)
		list := make([]any, 0, len(set))
		for s := range set {
			list = append(list, s)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].(string) < list[j].(string) })
		return list
	},
}

func taggedSchema() *schema.Schema {
	return schema.New("tagged").
		Field(schema.Field{Name: "tags", Kind: schema.ScalarArray, Codec: setCodec})
}

func TestCodec_RoundTripStored(t *testing.T) {
	s := taggedSchema()

	// serialize(deserialize(x)) == x for legal stored values.
	stored := store.Document{"id": "t1", "tags": []any{"a", "b", "c"}}
	back := s.Serialize(s.Deserialize(stored))
	if !reflect.DeepEqual(back, stored) {
		t.Errorf("expected %v, got %v", stored, back)
	}
}

func TestCodec_RoundTripRuntime(t *testing.T) {
	s := taggedSchema()

	// deserialize(serialize(y)) preserves runtime equality.
	props := map[string]any{"id": "t1", "tags": map[string]bool{"x": true, "y": true}}
	back := s.Deserialize(s.Serialize(props))
	if !reflect.DeepEqual(back, props) {
		t.Errorf("expected %v, got %v", props, back)
	}
}

func TestSerialize_PassThroughWithoutCodec(t *testing.T) {
	s := schema.New("plain").Field(schema.Field{Name: "name"})

	doc := s.Serialize(map[string]any{"id": "p1", "name": "n"})
	if doc["name"] != "n" || doc["id"] != "p1" {
		t.Errorf("expected pass-through, got %v", doc)
	}
}

func TestDeserialize_StripsMetadata(t *testing.T) {
	s := schema.New("plain").Field(schema.Field{Name: "name"})

	props := s.Deserialize(store.Document{
		"id":    "p1",
		"name":  "n",
		"_etag": "abc",
		"_ts":   float64(1700000000),
	})
	if _, ok := props["_etag"]; ok {
		t.Error("expected _etag to be stripped")
	}
	if _, ok := props["_ts"]; ok {
		t.Error("expected _ts to be stripped")
	}
	if props["name"] != "n" {
		t.Errorf("expected name preserved, got %v", props)
	}
}

func TestSerialize_DoesNotMutateInput(t *testing.T) {
	s := taggedSchema()
	props := map[string]any{"id": "t1", "tags": map[string]bool{"a": true}}
	_ = s.Serialize(props)

	if _, ok := props["tags"].(map[string]bool); !ok {
		t.Error("Serialize mutated the caller's properties")
	}
}
