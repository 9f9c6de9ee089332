package forge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSharedStorage_ViewSeesProducerWrites(t *testing.T) {
	storage := NewSharedStorage(0)
	view := storage.View()

	assert.Equal(t, 0, view.Get())
	storage.Set(42)
	assert.Equal(t, 42, view.Get())
}

func TestSharedStorage_MutableView(t *testing.T) {
	storage := NewSharedStorage("a")
	mutable := storage.MutableView()

	mutable.Set("b")
	assert.Equal(t, "b", storage.Get())
}
