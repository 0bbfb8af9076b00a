package resource

import (
	"strings"
	"testing"
)

type widget struct {
	id     int
	name   string
	size   int
	cost   int
	note   string
	active bool
	owner  int
}

func (w *widget) EntityID() int  { return w.id }
func (w *widget) IsActive() bool { return w.active }
func (w *widget) Deactivate()    { w.active = false }

type testRequester struct {
	id    int
	admin bool
}

func (r *testRequester) RequesterID() int      { return r.id }
func (r *testRequester) IsAdministrator() bool { return r.admin }

func widgetDefinition(t *testing.T) *Definition[*widget] {
	t.Helper()
	def, err := NewDefinition(&Definition[*widget]{
		Name: "widget",
		Fields: Fields{
			Mandatory:        []string{"name"},
			Writeable:        []string{"name", "size", "note"},
			StandardReadable: []string{"id", "name", "double_size"},
			AdminReadable:    []string{"id", "name", "double_size", "cost"},
		},
		Permissions: Permissions{AdminCanDelete: true},
		New:         func() *widget { return &widget{active: true} },
		Owner:       func(w *widget) int { return w.owner },
		Getters: map[string]func(*widget) any{
			"name": func(w *widget) any { return w.name },
			"size": func(w *widget) any { return w.size },
			"cost": func(w *widget) any { return w.cost },
			"note": func(w *widget) any { return w.note },
		},
		Setters: map[string]func(*widget, any) error{
			"name": func(w *widget, v any) error {
				s, ok := StringValue(v)
				if !ok {
					return &ValidationError{Message: "Field name must be a string."}
				}
				w.name = s
				return nil
			},
			"size": func(w *widget, v any) error {
				n, ok := IntValue(v)
				if !ok {
					return &ValidationError{Message: "Field size must be a number."}
				}
				w.size = n
				return nil
			},
		},
		Serializers: map[string]func(*widget, Requester) any{
			"double_size": func(w *widget, _ Requester) any { return w.size * 2 },
		},
		Deserializers: map[string]func(*widget, any) error{
			"note": func(w *widget, v any) error {
				s, _ := StringValue(v)
				w.note = strings.ToLower(s)
				return nil
			},
		},
	})
	if err != nil {
		t.Fatalf("widget definition: %v", err)
	}
	return def
}

func TestSerializeAnonymousIsNil(t *testing.T) {
	def := widgetDefinition(t)
	w := &widget{id: 1, name: "a", active: true}
	if got := def.Serialize(w, nil, nil); got != nil {
		t.Fatalf("expected nil for anonymous requester, got %v", got)
	}
}

func TestSerializeStandardTier(t *testing.T) {
	def := widgetDefinition(t)
	w := &widget{id: 7, name: "gear", size: 3, cost: 50, active: true}
	got := def.Serialize(w, &testRequester{id: 2}, nil)
	if got == nil {
		t.Fatal("expected serialization for standard requester")
	}
	if got["id"] != 7 || got["name"] != "gear" {
		t.Fatalf("unexpected fields: %v", got)
	}
	if got["double_size"] != 6 {
		t.Fatalf("custom serializer not applied: %v", got["double_size"])
	}
	if _, ok := got["cost"]; ok {
		t.Fatalf("standard tier must not see cost: %v", got)
	}
	if _, ok := got["size"]; ok {
		t.Fatalf("size is not a readable field: %v", got)
	}
}

func TestSerializeAdminTier(t *testing.T) {
	def := widgetDefinition(t)
	w := &widget{id: 7, name: "gear", size: 3, cost: 50, active: true}
	got := def.Serialize(w, &testRequester{id: 1, admin: true}, nil)
	if got["cost"] != 50 {
		t.Fatalf("admin tier must see cost: %v", got)
	}
}

func TestSerializeFieldsAllowList(t *testing.T) {
	def := widgetDefinition(t)
	w := &widget{id: 7, name: "gear", size: 3, active: true}
	got := def.Serialize(w, &testRequester{id: 2}, []string{"name"})
	if len(got) != 2 {
		t.Fatalf("expected exactly name and id, got %v", got)
	}
	if got["name"] != "gear" || got["id"] != 7 {
		t.Fatalf("unexpected allow-list result: %v", got)
	}
}

func TestSerializeAllowListAlwaysIncludesID(t *testing.T) {
	def := widgetDefinition(t)
	w := &widget{id: 9, name: "gear", active: true}
	got := def.Serialize(w, &testRequester{id: 2}, []string{"double_size"})
	if got["id"] != 9 {
		t.Fatalf("id must always be included, got %v", got)
	}
}

func TestDeserializeAddMissingMandatory(t *testing.T) {
	def := widgetDefinition(t)
	_, err := def.DeserializeAdd(map[string]any{"size": float64(4)})
	if err == nil {
		t.Fatal("expected error for missing mandatory field")
	}
	if err.Error() != "Mandatory field name is missing." {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestDeserializeAddIgnoresUnknownKeys(t *testing.T) {
	def := widgetDefinition(t)
	w, err := def.DeserializeAdd(map[string]any{
		"name": "gear",
		"size": float64(4),
		"cost": float64(999),
	})
	if err != nil {
		t.Fatalf("DeserializeAdd: %v", err)
	}
	if w.name != "gear" || w.size != 4 {
		t.Fatalf("fields not applied: %+v", w)
	}
	if w.cost != 0 {
		t.Fatalf("cost is not writeable, got %d", w.cost)
	}
}

func TestDeserializeUpdateIsPartial(t *testing.T) {
	def := widgetDefinition(t)
	w := &widget{id: 1, name: "gear", size: 4, active: true}
	unchanged, err := def.DeserializeUpdate(w, map[string]any{"size": float64(9)})
	if err != nil {
		t.Fatalf("DeserializeUpdate: %v", err)
	}
	if unchanged {
		t.Fatal("expected change to be detected")
	}
	if w.size != 9 || w.name != "gear" {
		t.Fatalf("unexpected state after update: %+v", w)
	}
}

func TestDeserializeUpdateDetectsNoop(t *testing.T) {
	def := widgetDefinition(t)
	w := &widget{id: 1, name: "gear", size: 4, active: true}
	unchanged, err := def.DeserializeUpdate(w, map[string]any{"name": "gear"})
	if err != nil {
		t.Fatalf("DeserializeUpdate: %v", err)
	}
	if !unchanged {
		t.Fatal("writing the same value must be reported as unchanged")
	}
}

func TestDeserializeUpdateCustomDeserializerAlwaysDirties(t *testing.T) {
	def := widgetDefinition(t)
	w := &widget{id: 1, name: "gear", note: "hi", active: true}
	unchanged, err := def.DeserializeUpdate(w, map[string]any{"note": "HI"})
	if err != nil {
		t.Fatalf("DeserializeUpdate: %v", err)
	}
	if unchanged {
		t.Fatal("custom deserializers are always treated as dirtying")
	}
	if w.note != "hi" {
		t.Fatalf("deserializer not applied: %q", w.note)
	}
}

func TestNewDefinitionRejectsUnhandledField(t *testing.T) {
	_, err := NewDefinition(&Definition[*widget]{
		Name: "broken",
		Fields: Fields{
			StandardReadable: []string{"id", "ghost"},
		},
		New: func() *widget { return &widget{} },
	})
	if err == nil {
		t.Fatal("expected error for readable field without getter")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("error should name the field: %v", err)
	}
}

func TestDefaultArgsToQuery(t *testing.T) {
	q, err := DefaultArgsToQuery(map[string][]string{
		"number": {"5"},
		"offset": {"10"},
	}, &testRequester{id: 1})
	if err != nil {
		t.Fatalf("DefaultArgsToQuery: %v", err)
	}
	if q.Limit != 5 || q.Offset != 10 {
		t.Fatalf("unexpected query: %+v", q)
	}
	if !q.ActiveOnly {
		t.Fatal("standard requesters are restricted to active rows")
	}

	q, err = DefaultArgsToQuery(nil, &testRequester{id: 1, admin: true})
	if err != nil {
		t.Fatalf("DefaultArgsToQuery: %v", err)
	}
	if q.ActiveOnly {
		t.Fatal("administrators may see inactive rows")
	}

	if _, err := DefaultArgsToQuery(map[string][]string{"number": {"x"}}, nil); err == nil {
		t.Fatal("expected error for non-integer number")
	}
}
