package listing

import (
	"encoding/json"
	"strings"
)

func joinColumns() string {
	return strings.Join(columns, ", ")
}

// jsonArray renders a single id as a jsonb array literal for @> containment
func jsonArray(id string) string {
	b, _ := json.Marshal([]string{id})
	return string(b)
}
