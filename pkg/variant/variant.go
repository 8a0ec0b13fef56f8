package variant

import (
	"github.com/modeld/modeld/pkg/model"
)

// Model is the capability contract a variant implementation satisfies.
//
// Input initializes or trains the in-memory state from data, Output
// produces results from it without mutating it, and Update folds new
// data into it. Save, Load, and Delete manage the variant's
// current-state file at the path the registry supplies; the registry
// never interprets the file's contents.
type Model interface {
	Input(data model.Rows, params model.Params) error
	Output(data model.Rows, params model.Params) (model.Rows, error)
	Update(data model.Rows, params model.Params) error

	Save(path string) error
	Load(path string) error
	Delete(path string) error
}

// Capabilities are the operation flags fixed when a variant is
// registered. An unset flag causes the corresponding lifecycle
// operation to be rejected before dispatch.
type Capabilities struct {
	Input  bool `json:"can_input"`
	Output bool `json:"can_output"`
	Update bool `json:"can_update"`
}

// Factory constructs a fresh, unfitted model from creation settings.
type Factory func(settings model.Params) Model

// Registration binds a variant name to its capabilities and factory.
type Registration struct {
	// Name is the unique key for the variant.
	Name string

	// Capabilities are fixed for every instance of the variant.
	Capabilities Capabilities

	// New constructs a model from instance settings.
	New Factory
}
