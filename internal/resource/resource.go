// Package resource implements the generic access-control and serialization
// framework shared by every entity type: per-entity field capability
// descriptors, the requester-aware serializer/deserializer engine, and the
// CRUD orchestrator that dispatches list/get/add/edit/delete uniformly.
package resource

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
)

// Requester is the resolved caller identity for one operation. A nil
// Requester is the uniform anonymous signal; it is never an error by itself.
type Requester interface {
	RequesterID() int
	IsAdministrator() bool
}

// Entity is any resource type managed through the orchestrator: integer
// identity plus a soft-delete flag.
type Entity interface {
	EntityID() int
	IsActive() bool
	Deactivate()
}

// Permissions are the collection-level flags of an entity type.
type Permissions struct {
	AllCanReadMany      bool
	StandardCanReadMany bool
	AdminCanDelete      bool
}

// Fields declares the static field capability lists of an entity type.
// Mandatory fields must be present on add; only writeable fields are consumed
// by deserialization; the readable lists select what serialization may emit
// depending on the requester tier.
type Fields struct {
	Mandatory        []string
	Writeable        []string
	StandardReadable []string
	AdminReadable    []string
}

// Definition is the full per-entity contract the generic engine dispatches
// through. Field access goes via explicit handler tables, never runtime name
// introspection: Getters/Setters are the default copy-through handlers,
// Serializers/Deserializers override individual fields with derived or
// transforming behavior.
type Definition[E Entity] struct {
	Name        string
	Fields      Fields
	Permissions Permissions

	// New allocates an empty entity for deserialize-add.
	New func() E

	Getters map[string]func(E) any
	Setters map[string]func(E, any) error

	Serializers   map[string]func(E, Requester) any
	Deserializers map[string]func(E, any) error

	// Owner reports the entity's owning identity; 0 means unowned.
	Owner func(E) int

	// HasAddRights defaults to denying everyone. Entity types override it
	// with their own policy; data may be amended in place (e.g. stamping the
	// creator).
	HasAddRights func(ctx context.Context, data map[string]any, r Requester) (bool, error)

	// HasAdminRights defaults to administrator-or-owner.
	HasAdminRights func(e E, r Requester) bool

	// HasDeleteRights defaults to the admin_can_delete flag combined with
	// HasAdminRights.
	HasDeleteRights func(e E, r Requester) bool

	// ArgsToQuery builds the list query from request arguments. A nil query
	// signals Forbidden; an error signals BadRequest.
	ArgsToQuery func(args url.Values, r Requester) (*Query, error)

	// Lifecycle hooks. They run between the primary mutation and the final
	// commit and may perform further writes.
	OnAdd      func(ctx context.Context, e E, r Requester) error
	OnEdit     func(ctx context.Context, e E, r Requester, unchanged bool) error
	DeleteHook func(ctx context.Context, e E, r Requester) error

	// Validate runs entity-level validators at persistence time (e.g.
	// uniqueness checks) and reports failures as *ValidationError.
	Validate func(ctx context.Context, e E) error
}

// NewDefinition checks the handler tables against the declared field lists so
// misconfigured entities fail at startup instead of mid-request.
func NewDefinition[E Entity](d *Definition[E]) (*Definition[E], error) {
	if d.Name == "" {
		return nil, fmt.Errorf("resource: definition needs a name")
	}
	if d.New == nil {
		return nil, fmt.Errorf("resource %s: New is required", d.Name)
	}
	for _, f := range append(append([]string{}, d.Fields.StandardReadable...), d.Fields.AdminReadable...) {
		if f == "id" {
			continue
		}
		if _, ok := d.Getters[f]; ok {
			continue
		}
		if _, ok := d.Serializers[f]; ok {
			continue
		}
		return nil, fmt.Errorf("resource %s: readable field %q has no getter or serializer", d.Name, f)
	}
	for _, f := range append(append([]string{}, d.Fields.Mandatory...), d.Fields.Writeable...) {
		if _, ok := d.Setters[f]; ok {
			continue
		}
		if _, ok := d.Deserializers[f]; ok {
			continue
		}
		return nil, fmt.Errorf("resource %s: writeable field %q has no setter or deserializer", d.Name, f)
	}
	return d, nil
}

// Serialize converts an entity into the field map the requester may see.
// It returns nil when the requester is absent; that is the uniform "no read
// capability" signal. When a fields allow-list is given the result is the
// intersection with it, with id always included.
func (d *Definition[E]) Serialize(e E, r Requester, fields []string) map[string]any {
	if r == nil {
		return nil
	}
	base := d.Fields.StandardReadable
	if r.IsAdministrator() {
		base = d.Fields.AdminReadable
	}
	var allowed map[string]bool
	if fields != nil {
		allowed = make(map[string]bool, len(fields)+1)
		for _, f := range fields {
			allowed[f] = true
		}
		allowed["id"] = true
	}
	out := make(map[string]any, len(base)+1)
	for _, f := range base {
		if allowed != nil && !allowed[f] {
			continue
		}
		if f == "id" {
			continue
		}
		if ser, ok := d.Serializers[f]; ok {
			out[f] = ser(e, r)
			continue
		}
		if get, ok := d.Getters[f]; ok {
			out[f] = get(e)
		}
	}
	out["id"] = e.EntityID()
	return out
}

// DeserializeAdd builds a fresh entity from a wire payload. Only keys in
// Mandatory ∪ Writeable are consumed; a missing mandatory field is a
// validation failure naming the field.
func (d *Definition[E]) DeserializeAdd(data map[string]any) (E, error) {
	var zero E
	for _, f := range d.Fields.Mandatory {
		if _, ok := data[f]; !ok {
			return zero, &ValidationError{Message: fmt.Sprintf("Mandatory field %s is missing.", f)}
		}
	}
	e := d.New()
	seen := make(map[string]bool)
	for _, f := range append(append([]string{}, d.Fields.Mandatory...), d.Fields.Writeable...) {
		if seen[f] {
			continue
		}
		seen[f] = true
		v, ok := data[f]
		if !ok {
			continue
		}
		if err := d.applyField(e, f, v); err != nil {
			return zero, err
		}
	}
	return e, nil
}

// DeserializeUpdate applies the writeable keys present in data to an existing
// entity; absent keys are left untouched. It reports whether the update was a
// no-op, which callers use to suppress notification side effects.
func (d *Definition[E]) DeserializeUpdate(e E, data map[string]any) (unchanged bool, err error) {
	changed := false
	for _, f := range d.Fields.Writeable {
		v, ok := data[f]
		if !ok {
			continue
		}
		if des, ok := d.Deserializers[f]; ok {
			// Custom deserializers transform arbitrarily; treat them as
			// always dirtying.
			if err := des(e, v); err != nil {
				return false, err
			}
			changed = true
			continue
		}
		set := d.Setters[f]
		get := d.Getters[f]
		var before any
		if get != nil {
			before = get(e)
		}
		if err := set(e, v); err != nil {
			return false, err
		}
		if get == nil || !reflect.DeepEqual(before, get(e)) {
			changed = true
		}
	}
	return !changed, nil
}

func (d *Definition[E]) applyField(e E, field string, v any) error {
	if des, ok := d.Deserializers[field]; ok {
		return des(e, v)
	}
	return d.Setters[field](e, v)
}

func (d *Definition[E]) hasAddRights(ctx context.Context, data map[string]any, r Requester) (bool, error) {
	if d.HasAddRights == nil {
		return false, nil
	}
	return d.HasAddRights(ctx, data, r)
}

func (d *Definition[E]) hasAdminRights(e E, r Requester) bool {
	if d.HasAdminRights != nil {
		return d.HasAdminRights(e, r)
	}
	if r == nil {
		return false
	}
	if r.IsAdministrator() {
		return true
	}
	return d.Owner != nil && d.Owner(e) != 0 && d.Owner(e) == r.RequesterID()
}

func (d *Definition[E]) hasDeleteRights(e E, r Requester) bool {
	if d.HasDeleteRights != nil {
		return d.HasDeleteRights(e, r)
	}
	if !d.Permissions.AdminCanDelete {
		return false
	}
	return d.hasAdminRights(e, r)
}

func (d *Definition[E]) validate(ctx context.Context, e E) error {
	if d.Validate == nil {
		return nil
	}
	return d.Validate(ctx, e)
}

// Value coercion helpers for default setters. JSON payloads arrive with
// float64 numbers; entity setters normalize through these.

// StringValue coerces a decoded JSON value to a string.
func StringValue(v any) (string, bool) {
	if v == nil {
		return "", true
	}
	s, ok := v.(string)
	return s, ok
}

// IntValue coerces a decoded JSON value to an int.
func IntValue(v any) (int, bool) {
	switch t := v.(type) {
	case nil:
		return 0, true
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	default:
		return 0, false
	}
}

// BoolValue coerces a decoded JSON value to a bool.
func BoolValue(v any) (bool, bool) {
	if v == nil {
		return false, true
	}
	b, ok := v.(bool)
	return b, ok
}
