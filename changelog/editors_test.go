package changelog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEditors(t *testing.T) {
	e := NewEditors()

	_, ok := e.Lookup("!foo")
	assert.False(t, ok)

	e.Record("!foo", "Alice")
	e.Record("!FOO", "Bob")
	e.Record("!bar", "Carol")

	editor, ok := e.Lookup("!Foo")
	assert.True(t, ok)
	assert.Equal(t, "Bob", editor)
	assert.Equal(t, 2, e.Len())

	e.Clear()
	assert.Equal(t, 0, e.Len())
	_, ok = e.Lookup("!bar")
	assert.False(t, ok)
}

func TestIgnoreSet(t *testing.T) {
	set := NewIgnoreSet("!Uptime", " !game ", "")

	assert.True(t, set.Contains("!uptime"))
	assert.True(t, set.Contains("!UPTIME"))
	assert.True(t, set.Contains("!game"))
	assert.False(t, set.Contains("!other"))
	assert.False(t, set.Contains(""))
	assert.Len(t, set, 2)
}
