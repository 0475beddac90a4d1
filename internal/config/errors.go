package config

import (
	"fmt"
	"strings"
)

// MissingError reports required settings that are empty. It is returned at
// construction time by the AI clients, never mid-pipeline.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing configuration: %s", strings.Join(e.Keys, ", "))
}

// Require returns a *MissingError naming every key whose value is blank, or nil.
func Require(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingError{Keys: missing}
}
