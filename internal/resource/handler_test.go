package resource

import (
	"context"
	"errors"
	"net/url"
	"testing"
)

// memStore is an in-memory Store used to exercise the orchestrator.
type memStore struct {
	items  map[int]*widget
	nextID int
}

func newMemStore(items ...*widget) *memStore {
	s := &memStore{items: make(map[int]*widget), nextID: 1}
	for _, w := range items {
		s.items[w.id] = w
		if w.id >= s.nextID {
			s.nextID = w.id + 1
		}
	}
	return s
}

func (s *memStore) Find(_ context.Context, id int) (*widget, error) {
	w, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return w, nil
}

func (s *memStore) FindActive(ctx context.Context, id int) (*widget, error) {
	w, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !w.active {
		return nil, ErrNotFound
	}
	return w, nil
}

func (s *memStore) Search(_ context.Context, q *Query) ([]*widget, error) {
	var out []*widget
	for _, w := range s.items {
		if q.ActiveOnly && !w.active {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *memStore) Insert(_ context.Context, w *widget) error {
	w.id = s.nextID
	s.nextID++
	s.items[w.id] = w
	return nil
}

func (s *memStore) Update(_ context.Context, w *widget) error {
	if _, ok := s.items[w.id]; !ok {
		return ErrNotFound
	}
	s.items[w.id] = w
	return nil
}

func openWidgetDefinition(t *testing.T) *Definition[*widget] {
	t.Helper()
	def := widgetDefinition(t)
	def.Permissions.StandardCanReadMany = true
	def.HasAddRights = func(_ context.Context, data map[string]any, r Requester) (bool, error) {
		if r == nil {
			return false, nil
		}
		data["size"] = float64(1)
		return true, nil
	}
	return def
}

func TestListAnonymousUnauthorized(t *testing.T) {
	h := NewHandler(widgetDefinition(t), newMemStore())
	if _, err := h.List(context.Background(), nil, url.Values{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestListStandardForbiddenWithoutFlag(t *testing.T) {
	h := NewHandler(widgetDefinition(t), newMemStore())
	if _, err := h.List(context.Background(), &testRequester{id: 2}, url.Values{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestListReturnsSerializedEntries(t *testing.T) {
	def := openWidgetDefinition(t)
	store := newMemStore(
		&widget{id: 1, name: "a", active: true},
		&widget{id: 2, name: "b", active: false},
	)
	h := NewHandler(def, store)
	items, err := h.List(context.Background(), &testRequester{id: 2}, url.Values{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("standard requesters only see active rows, got %d entries", len(items))
	}
	if items[0]["name"] != "a" {
		t.Fatalf("unexpected entry: %v", items[0])
	}
}

func TestListBadPaginationIsBadRequest(t *testing.T) {
	h := NewHandler(openWidgetDefinition(t), newMemStore())
	_, err := h.List(context.Background(), &testRequester{id: 2}, url.Values{"number": {"nope"}})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestListNilQueryForbidden(t *testing.T) {
	def := openWidgetDefinition(t)
	def.ArgsToQuery = func(url.Values, Requester) (*Query, error) { return nil, nil }
	h := NewHandler(def, newMemStore())
	if _, err := h.List(context.Background(), &testRequester{id: 2}, url.Values{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for nil query, got %v", err)
	}
}

func TestGetAnonymousUnauthorized(t *testing.T) {
	h := NewHandler(widgetDefinition(t), newMemStore(&widget{id: 1, name: "a", active: true}))
	if _, err := h.Get(context.Background(), nil, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestGetSoftDeletedNotFound(t *testing.T) {
	h := NewHandler(widgetDefinition(t), newMemStore(&widget{id: 1, name: "a", active: false}))
	if _, err := h.Get(context.Background(), &testRequester{id: 2}, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddWithoutRights(t *testing.T) {
	h := NewHandler(widgetDefinition(t), newMemStore())
	data := map[string]any{"name": "a"}
	if _, err := h.Add(context.Background(), nil, data); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("anonymous add: expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.Add(context.Background(), &testRequester{id: 2}, data); !errors.Is(err, ErrForbidden) {
		t.Fatalf("rightless add: expected ErrForbidden, got %v", err)
	}
}

func TestAddCreatesAndReserializes(t *testing.T) {
	def := openWidgetDefinition(t)
	onAddRan := false
	def.OnAdd = func(_ context.Context, w *widget, _ Requester) error {
		onAddRan = true
		w.name = w.name + "!"
		return nil
	}
	store := newMemStore()
	h := NewHandler(def, store)
	got, err := h.Add(context.Background(), &testRequester{id: 2}, map[string]any{"name": "a"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !onAddRan {
		t.Fatal("OnAdd hook did not run")
	}
	if got["name"] != "a!" {
		t.Fatalf("hook-induced change not committed and reserialized: %v", got)
	}
	// The add-rights hook amended the payload before deserialization.
	if got["double_size"] != 2 {
		t.Fatalf("amended payload not applied: %v", got)
	}
}

func TestAddMissingMandatoryIsBadRequest(t *testing.T) {
	h := NewHandler(openWidgetDefinition(t), newMemStore())
	_, err := h.Add(context.Background(), &testRequester{id: 2}, map[string]any{})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
	if MessageOf(err) != "Mandatory field name is missing." {
		t.Fatalf("validation message must travel verbatim, got %q", MessageOf(err))
	}
}

func TestEditIDMismatchIsBadRequest(t *testing.T) {
	h := NewHandler(widgetDefinition(t), newMemStore(&widget{id: 1, name: "a", active: true, owner: 2}))
	_, err := h.Edit(context.Background(), &testRequester{id: 2}, 1, map[string]any{"id": float64(9)})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestEditNullIDTreatedAsAbsent(t *testing.T) {
	h := NewHandler(widgetDefinition(t), newMemStore(&widget{id: 1, name: "a", active: true, owner: 2}))
	got, err := h.Edit(context.Background(), &testRequester{id: 2}, 1, map[string]any{"id": nil, "name": "b"})
	if err != nil {
		t.Fatalf("Edit with null id: %v", err)
	}
	if got["name"] != "b" {
		t.Fatalf("edit not applied: %v", got)
	}
}

func TestEditNonOwnerForbidden(t *testing.T) {
	h := NewHandler(widgetDefinition(t), newMemStore(&widget{id: 1, name: "a", active: true, owner: 2}))
	_, err := h.Edit(context.Background(), &testRequester{id: 3}, 1, map[string]any{"name": "b"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestEditOwnerUpdates(t *testing.T) {
	def := widgetDefinition(t)
	var sawUnchanged *bool
	def.OnEdit = func(_ context.Context, _ *widget, _ Requester, unchanged bool) error {
		sawUnchanged = &unchanged
		return nil
	}
	store := newMemStore(&widget{id: 1, name: "a", active: true, owner: 2})
	h := NewHandler(def, store)
	got, err := h.Edit(context.Background(), &testRequester{id: 2}, 1, map[string]any{"name": "b"})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got["name"] != "b" {
		t.Fatalf("edit not applied: %v", got)
	}
	if sawUnchanged == nil || *sawUnchanged {
		t.Fatal("OnEdit should have seen a real change")
	}
}

func TestDeleteNeedsDeleteRights(t *testing.T) {
	store := newMemStore(&widget{id: 1, name: "a", active: true, owner: 2})
	def := widgetDefinition(t)
	def.Permissions.AdminCanDelete = false
	h := NewHandler(def, store)
	_, err := h.Delete(context.Background(), &testRequester{id: 1, admin: true}, 1)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden without the delete flag, got %v", err)
	}
}

func TestDeleteSoftDeletes(t *testing.T) {
	store := newMemStore(&widget{id: 1, name: "a", active: true, owner: 2})
	h := NewHandler(widgetDefinition(t), store)
	got, err := h.Delete(context.Background(), &testRequester{id: 1, admin: true}, 1)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.items[1].active {
		t.Fatal("entity should be soft-deleted")
	}
	if got["id"] != 1 {
		t.Fatalf("expected the serialized inactive entity, got %v", got)
	}
}
