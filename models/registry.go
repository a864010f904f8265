package models

import (
	"sort"
	"strings"
	"sync"

	"github.com/nvr-ai/go-detect/common"
)

var (
	registryMu sync.RWMutex
	registry   = map[string][]string{
		ApparelSet: ApparelLabels,
		COCOSet:    COCOLabels,
		VOCSet:     VOCLabels,
	}
)

// Register adds a named label set so that configuration can select it with
// class_set. Registering an existing name replaces it.
//
// Arguments:
//   - set: The lower-case set name.
//   - labels: The class names in model output order.
//
// Returns:
//   - error: An ErrInvalidConfig error if the name is blank or the labels would
//     not form a valid ClassTable.
//
// @example
// err := models.Register("ppe", []string{"helmet", "vest", "gloves"})
// labels, ok := models.Builtin("ppe")
func Register(set string, labels []string) error {
	set = strings.ToLower(strings.TrimSpace(set))
	if set == "" {
		return common.Errorf(common.ErrInvalidConfig, "label set name is empty")
	}
	if _, err := NewClassTable(set, labels); err != nil {
		return err
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	registry[set] = append([]string(nil), labels...)
	return nil
}

// Builtin returns a copy of the labels of a registered set. Names are matched
// case-insensitively.
func Builtin(set string) ([]string, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	labels, ok := registry[strings.ToLower(strings.TrimSpace(set))]
	if !ok {
		return nil, false
	}
	return append([]string(nil), labels...), true
}

// Sets returns the registered set names in sorted order.
func Sets() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
