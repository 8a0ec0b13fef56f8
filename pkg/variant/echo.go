package variant

import (
	"encoding/json"
	"os"

	"github.com/modeld/modeld/pkg/model"
)

// EchoName is the registration name of the built-in Echo variant.
const EchoName = "Echo"

// Echo is a reference variant for wiring and testing. Input stores the
// given rows as the fitted state, Update appends to it, and Output
// returns the stored rows. State is persisted as a JSON document.
type Echo struct {
	settings model.Params
	rows     model.Rows
}

// NewEcho constructs an unfitted Echo model.
func NewEcho(settings model.Params) Model {
	return &Echo{settings: settings.Clone()}
}

// EchoRegistration returns the table registration for the Echo variant,
// with all capability flags enabled.
func EchoRegistration() Registration {
	return Registration{
		Name:         EchoName,
		Capabilities: Capabilities{Input: true, Output: true, Update: true},
		New:          NewEcho,
	}
}

// Input replaces the stored rows with data.
func (e *Echo) Input(data model.Rows, _ model.Params) error {
	e.rows = data.Clone()
	return nil
}

// Output returns the stored rows. The input data is ignored beyond its
// role as a probe; Echo has no inference to run against it.
func (e *Echo) Output(_ model.Rows, _ model.Params) (model.Rows, error) {
	return e.rows.Clone(), nil
}

// Update appends data to the stored rows.
func (e *Echo) Update(data model.Rows, _ model.Params) error {
	e.rows = append(e.rows, data.Clone()...)
	return nil
}

type echoState struct {
	Settings model.Params `json:"settings,omitempty"`
	Rows     model.Rows   `json:"rows"`
}

// Save writes the stored rows to path as JSON.
func (e *Echo) Save(path string) error {
	raw, err := json.Marshal(echoState{Settings: e.settings, Rows: e.rows})
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// Load reads the stored rows from path.
func (e *Echo) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var state echoState
	if err := json.Unmarshal(raw, &state); err != nil {
		return err
	}
	e.settings = state.Settings
	e.rows = state.Rows
	return nil
}

// Delete removes the state file at path if it exists.
func (e *Echo) Delete(path string) error {
	e.rows = nil
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
