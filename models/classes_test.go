package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/common"
)

func TestNewClassTable(t *testing.T) {
	table, err := NewClassTable(ApparelSet, ApparelLabels)
	require.NoError(t, err)

	assert.Equal(t, 18, table.Len())
	assert.Equal(t, ApparelSet, table.Set)

	name, ok := table.Name(0)
	assert.True(t, ok)
	assert.Equal(t, "men-activewear", name)

	name, ok = table.Name(17)
	assert.True(t, ok)
	assert.Equal(t, "women-tops", name)

	_, ok = table.Name(18)
	assert.False(t, ok)
	_, ok = table.Name(-1)
	assert.False(t, ok)

	idx, ok := table.Index("women-dresses")
	assert.True(t, ok)
	assert.Equal(t, 10, idx)
	_, ok = table.Index("hat")
	assert.False(t, ok)
}

func TestNewClassTableRejects(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
	}{
		{"empty", nil},
		{"blank label", []string{"a", ""}},
		{"duplicate", []string{"a", "b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClassTable("x", tt.labels)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrInvalidConfig))
		})
	}
}

func TestClassesReturnsCopy(t *testing.T) {
	table, err := NewClassTable("pair", []string{"a", "b"})
	require.NoError(t, err)

	classes := table.Classes()
	require.Len(t, classes, 2)
	assert.Equal(t, OutputClass{Index: 1, Name: "b"}, classes[1])

	classes[0].Name = "changed"
	name, _ := table.Name(0)
	assert.Equal(t, "a", name)
}

func TestBuiltinSets(t *testing.T) {
	for set, size := range map[string]int{ApparelSet: 18, COCOSet: 80, VOCSet: 20} {
		labels, ok := Builtin(set)
		require.True(t, ok, set)
		assert.Len(t, labels, size, set)

		_, err := NewClassTable(set, labels)
		assert.NoError(t, err, set)
	}

	labels, ok := Builtin(" COCO ")
	require.True(t, ok)
	assert.Equal(t, "person", labels[0])

	labels[0] = "changed"
	again, _ := Builtin(COCOSet)
	assert.Equal(t, "person", again[0])

	_, ok = Builtin("missing")
	assert.False(t, ok)
}

func TestRegister(t *testing.T) {
	require.NoError(t, Register("PPE", []string{"helmet", "vest"}))

	labels, ok := Builtin("ppe")
	require.True(t, ok)
	assert.Equal(t, []string{"helmet", "vest"}, labels)
	assert.Contains(t, Sets(), "ppe")

	err := Register(" ", []string{"a"})
	assert.True(t, errors.Is(err, common.ErrInvalidConfig))

	err = Register("dupes", []string{"a", "a"})
	assert.True(t, errors.Is(err, common.ErrInvalidConfig))
	_, ok = Builtin("dupes")
	assert.False(t, ok)
}

func TestSetsSorted(t *testing.T) {
	sets := Sets()
	assert.IsIncreasing(t, sets)
	assert.Subset(t, sets, []string{ApparelSet, COCOSet, VOCSet})
}
