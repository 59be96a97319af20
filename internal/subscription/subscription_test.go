package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinLeave(t *testing.T) {

	s := New()

	assert.True(t, s.Join("c0", "7"))
	assert.False(t, s.Join("c0", "7")) // idempotent
	assert.True(t, s.Join("c1", "7"))
	assert.True(t, s.Join("c0", "8"))

	assert.Equal(t, []string{"c0", "c1"}, s.Members("7"))
	assert.Equal(t, []string{"7", "8"}, s.Groups("c0"))
	assert.True(t, s.IsJoined("c1", "7"))
	assert.False(t, s.IsJoined("c1", "8"))

	assert.True(t, s.Leave("c1", "7"))
	assert.False(t, s.Leave("c1", "7"))
	assert.Equal(t, []string{"c0"}, s.Members("7"))

	// c1 has no groups left, so the reverse index is pruned
	_, ok := s.GroupsByConnection["c1"]
	assert.False(t, ok)

	// leaving a group never joined is harmless
	assert.False(t, s.Leave("c9", "7"))
}

func TestRemoveConnection(t *testing.T) {

	s := New()

	s.Join("c0", "7")
	s.Join("c0", "8")
	s.Join("c1", "8")

	left := s.RemoveConnection("c0")
	assert.Equal(t, []string{"7", "8"}, left)

	assert.Equal(t, []string{}, s.Members("7"))
	assert.Equal(t, []string{"c1"}, s.Members("8"))
	assert.Equal(t, []string{}, s.Groups("c0"))

	_, ok := s.ConnectionsByGroup["7"]
	assert.False(t, ok)

	// unknown connection
	assert.Equal(t, []string{}, s.RemoveConnection("c9"))
}

func TestEmptyArgumentsIgnored(t *testing.T) {
	s := New()
	assert.False(t, s.Join("", "7"))
	assert.False(t, s.Join("c0", ""))
	assert.Equal(t, 0, len(s.ConnectionsByGroup))
}
