package spec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skein-project/skein/pkg/types"
)

// ParseFile reads and decodes an ApplicationSpec from a YAML file on disk.
// It does not validate the result; callers should follow with Validate.
func ParseFile(path string) (types.ApplicationSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ApplicationSpec{}, fmt.Errorf("spec: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes an ApplicationSpec from YAML bytes.
func Parse(data []byte) (types.ApplicationSpec, error) {
	var app types.ApplicationSpec
	if err := yaml.Unmarshal(data, &app); err != nil {
		return types.ApplicationSpec{}, fmt.Errorf("spec: decode: %w", err)
	}
	return app, nil
}
