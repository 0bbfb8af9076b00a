package resource

import (
	"context"
	"errors"
	"net/url"
)

// Store is the narrow persistence surface the orchestrator needs per entity
// type. Implementations translate Query into whatever the storage engine
// speaks; they return ErrNotFound for missing rows and never hide storage
// failures.
type Store[E Entity] interface {
	// Find returns the row regardless of its active flag.
	Find(ctx context.Context, id int) (E, error)
	// FindActive returns the row only when it is not soft-deleted.
	FindActive(ctx context.Context, id int) (E, error)
	Search(ctx context.Context, q *Query) ([]E, error)
	// Insert persists a new entity and assigns its id.
	Insert(ctx context.Context, e E) error
	// Update persists the current state of an existing entity.
	Update(ctx context.Context, e E) error
}

// Handler is the generic CRUD orchestrator for one entity type. One handler
// is wired explicitly per entity at startup; it holds no per-request state.
type Handler[E Entity] struct {
	def   *Definition[E]
	store Store[E]
}

// NewHandler binds a definition to its storage accessor.
func NewHandler[E Entity](def *Definition[E], store Store[E]) *Handler[E] {
	return &Handler[E]{def: def, store: store}
}

// Name reports the wire name of the entity type.
func (h *Handler[E]) Name() string { return h.def.Name }

// List returns the serialized collection the requester may see. Entries that
// serialize to absent are dropped rather than failing the whole response.
func (h *Handler[E]) List(ctx context.Context, r Requester, args url.Values) ([]map[string]any, error) {
	if r == nil && !h.def.Permissions.AllCanReadMany {
		return nil, ErrUnauthorized
	}
	if r != nil && !r.IsAdministrator() {
		if !h.def.Permissions.StandardCanReadMany && !h.def.Permissions.AllCanReadMany {
			return nil, ErrForbidden
		}
	}
	q, err := h.argsToQuery(args, r)
	if err != nil {
		return nil, &Error{Kind: ErrBadRequest, Message: err.Error()}
	}
	if q == nil {
		return nil, ErrForbidden
	}
	items, err := h.store.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if s := h.def.Serialize(item, r, nil); s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

// Get returns one serialized entity. Unknown or soft-deleted ids are
// NotFound; an existing record the requester may not read is Forbidden,
// so this path does not hide existence.
func (h *Handler[E]) Get(ctx context.Context, r Requester, id int) (map[string]any, error) {
	if r == nil {
		return nil, ErrUnauthorized
	}
	e, err := h.store.FindActive(ctx, id)
	if err != nil {
		return nil, err
	}
	s := h.def.Serialize(e, r, nil)
	if s == nil {
		return nil, ErrForbidden
	}
	return s, nil
}

// Add creates an entity from a wire payload, runs the on-add hook inside the
// same request, commits hook-induced changes, and returns the re-fetched,
// re-serialized state.
func (h *Handler[E]) Add(ctx context.Context, r Requester, data map[string]any) (map[string]any, error) {
	ok, err := h.def.hasAddRights(ctx, data, r)
	if err != nil {
		return nil, err
	}
	if !ok {
		if r == nil {
			return nil, ErrUnauthorized
		}
		return nil, ErrForbidden
	}
	e, err := h.def.DeserializeAdd(data)
	if err != nil {
		return nil, asBadRequest(err)
	}
	if err := h.def.validate(ctx, e); err != nil {
		return nil, asBadRequest(err)
	}
	if err := h.store.Insert(ctx, e); err != nil {
		return nil, err
	}
	if h.def.OnAdd != nil {
		if err := h.def.OnAdd(ctx, e, r); err != nil {
			return nil, err
		}
		// Commit again to capture hook-induced changes.
		if err := h.store.Update(ctx, e); err != nil {
			return nil, err
		}
	}
	fresh, err := h.store.Find(ctx, e.EntityID())
	if err != nil {
		return nil, err
	}
	return h.def.Serialize(fresh, r, nil), nil
}

// Edit applies a partial update. A payload id that disagrees with the path id
// is a BadRequest; an explicit null id is treated as absent. Rights are the
// instance-level admin check.
func (h *Handler[E]) Edit(ctx context.Context, r Requester, id int, data map[string]any) (map[string]any, error) {
	if r == nil {
		return nil, ErrUnauthorized
	}
	if raw, ok := data["id"]; ok && raw != nil {
		dataID, ok := IntValue(raw)
		if !ok || dataID != id {
			return nil, ErrBadRequest
		}
	}
	e, err := h.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !h.def.hasAdminRights(e, r) {
		return nil, ErrForbidden
	}
	unchanged, err := h.def.DeserializeUpdate(e, data)
	if err != nil {
		return nil, asBadRequest(err)
	}
	if err := h.def.validate(ctx, e); err != nil {
		return nil, asBadRequest(err)
	}
	if h.def.OnEdit != nil {
		if err := h.def.OnEdit(ctx, e, r, unchanged); err != nil {
			return nil, err
		}
	}
	if err := h.store.Update(ctx, e); err != nil {
		return nil, err
	}
	return h.def.Serialize(e, r, nil), nil
}

// Delete soft-deletes via the entity's delete hook and returns the serialized
// now-inactive representation.
func (h *Handler[E]) Delete(ctx context.Context, r Requester, id int) (map[string]any, error) {
	if r == nil {
		return nil, ErrUnauthorized
	}
	e, err := h.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !h.def.hasDeleteRights(e, r) {
		return nil, ErrForbidden
	}
	if h.def.DeleteHook != nil {
		if err := h.def.DeleteHook(ctx, e, r); err != nil {
			return nil, err
		}
	} else {
		e.Deactivate()
	}
	if err := h.store.Update(ctx, e); err != nil {
		return nil, err
	}
	return h.def.Serialize(e, r, nil), nil
}

func (h *Handler[E]) argsToQuery(args url.Values, r Requester) (*Query, error) {
	if h.def.ArgsToQuery != nil {
		return h.def.ArgsToQuery(args, r)
	}
	return DefaultArgsToQuery(args, r)
}

func asBadRequest(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return &Error{Kind: ErrBadRequest, Message: ve.Message}
	}
	if errors.Is(err, ErrBadRequest) {
		return err
	}
	return &Error{Kind: ErrBadRequest, Message: err.Error()}
}
