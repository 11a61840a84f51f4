package revision

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"flowrunner/internal/flow"
	"flowrunner/internal/library"
)

// NoEncryptKey is the key value meaning the snapshot is stored in plain text.
const NoEncryptKey = "NO_ENCRYPT"

// Revision is a read-only configuration snapshot.
type Revision struct {
	Revision       int               `json:"Revision"`
	Flows          []flow.Flow       `json:"Flows"`
	Libraries      []library.Library `json:"Libraries"`
	Variables      map[string]string `json:"Variables,omitempty"`
	MaxNodes       int               `json:"MaxNodes"`
	PluginSettings map[string]string `json:"PluginSettings,omitempty"`
	AllowRemote    bool              `json:"AllowRemote"`
}

// Load reads and, unless key is NoEncryptKey, decrypts the snapshot at path.
func Load(path, key string) (*Revision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("configuration key not set")
	}
	if key != NoEncryptKey {
		plain, err := Decrypt(strings.Trim(string(data), "\r\n"), key)
		if err != nil {
			return nil, fmt.Errorf("decrypt configuration: %w", err)
		}
		data = []byte(plain)
	}
	return Parse(data)
}

// Parse decodes a plain-text snapshot.
func Parse(data []byte) (*Revision, error) {
	var rev Revision
	if err := json.Unmarshal(data, &rev); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	return &rev, nil
}

// FlowByID returns the flow with the given UID.
func (r *Revision) FlowByID(uid uuid.UUID) (*flow.Flow, bool) {
	for i := range r.Flows {
		if r.Flows[i].UID == uid {
			return &r.Flows[i], true
		}
	}
	return nil, false
}

// LibraryByID returns the library with the given UID.
func (r *Revision) LibraryByID(uid uuid.UUID) (*library.Library, bool) {
	for i := range r.Libraries {
		if r.Libraries[i].UID == uid {
			return &r.Libraries[i], true
		}
	}
	return nil, false
}

// DefaultFailureFlow returns the first enabled default failure flow.
func (r *Revision) DefaultFailureFlow() (*flow.Flow, bool) {
	for i := range r.Flows {
		f := &r.Flows[i]
		if f.Type == flow.TypeFailure && f.Default && f.Enabled {
			return f, true
		}
	}
	return nil, false
}

// PluginSetting returns the raw JSON settings stored for a plugin.
func (r *Revision) PluginSetting(pluginID string) (string, bool) {
	v, ok := r.PluginSettings[pluginID]
	return v, ok
}

// StepCeiling is the maximum number of steps a single job may execute.
func (r *Revision) StepCeiling() int {
	return StepCeiling(r.MaxNodes)
}

// MinStepCeiling is the floor applied to the configured step limit.
const MinStepCeiling = 25

// StepCeiling applies the MinStepCeiling floor to a configured limit.
func StepCeiling(configured int) int {
	return max(MinStepCeiling, configured)
}
