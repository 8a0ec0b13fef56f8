package metadata

import (
	"context"

	"github.com/modeld/modeld/pkg/model"
	"github.com/modeld/modeld/pkg/variant"
)

// Bridge adapts the catalog store to the orchestrator's notification
// sink. Each notification maps to one catalog write.
type Bridge struct {
	store *Store
}

// NewBridge wraps a store for use as the orchestrator's bridge.
func NewBridge(store *Store) *Bridge {
	return &Bridge{store: store}
}

// Created records a freshly created instance in the catalog. The
// descriptive fields come from the caller-supplied metadata map.
func (b *Bridge) Created(ctx context.Context, name, variantName string, caps variant.Capabilities, fields model.Params) error {
	rec := &Record{
		Name:        name,
		Model:       variantName,
		Title:       stringField(fields, "title"),
		Description: stringField(fields, "description"),
		Source:      stringField(fields, "source"),
		CreatedBy:   stringField(fields, "created_by"),
		Tags:        tagsField(fields),
		CanInput:    caps.Input,
		CanOutput:   caps.Output,
		CanUpdate:   caps.Update,
	}
	return b.store.CreateRecord(ctx, rec)
}

// Touched stamps the catalog row after a mutating job completed.
func (b *Bridge) Touched(ctx context.Context, name string) error {
	return b.store.Touch(ctx, name)
}

// Deleted drops the catalog row for a removed instance.
func (b *Bridge) Deleted(ctx context.Context, name string) error {
	return b.store.DeleteRecord(ctx, name)
}

func stringField(fields model.Params, key string) string {
	if fields == nil {
		return ""
	}
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func tagsField(fields model.Params) []string {
	if fields == nil {
		return nil
	}
	switch v := fields["tags"].(type) {
	case []string:
		return v
	case []any:
		tags := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	}
	return nil
}
