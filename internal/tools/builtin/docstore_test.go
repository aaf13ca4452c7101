package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocStorePutGet(t *testing.T) {
	s := NewDocStore()

	overwrote := s.Put("report", "Annual Report 2024")
	assert.False(t, overwrote)

	content, ok := s.Get("report")
	assert.True(t, ok)
	assert.Equal(t, "Annual Report 2024", content)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestDocStoreOverwrite(t *testing.T) {
	s := NewDocStore()
	s.Put("report", "old")

	overwrote := s.Put("report", "new")
	assert.True(t, overwrote)

	content, _ := s.Get("report")
	assert.Equal(t, "new", content)
	assert.Equal(t, 1, s.Len())
}

func TestDocStoreKeysSorted(t *testing.T) {
	s := NewDocStore()
	s.Put("zebra", "z")
	s.Put("alpha", "a")
	s.Put("mid", "m")

	assert.Equal(t, []string{"alpha", "mid", "zebra"}, s.Keys())
}
