package criteria

import (
	"github.com/scriptgate/scriptgate/service/dao"
)

// Match evaluates named string parameters against a field lookup. Every
// supplied parameter must match; unknown parameter names match everything so
// stores stay forward compatible with new filters.
func Match(parameters []*dao.Parameter, lookup func(name string) string) bool {
	for _, parameter := range parameters {
		actual := lookup(parameter.Name)
		if actual == "" {
			continue
		}
		switch expected := parameter.Value.(type) {
		case string:
			if actual != expected {
				return false
			}
		case []string:
			matched := false
			for _, candidate := range expected {
				if actual == candidate {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
	}
	return true
}
