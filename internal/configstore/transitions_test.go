package configstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedFromStates(t *testing.T) {
	assert.Equal(t, []TaskState{Created}, AllowedFromStates(Pending))
	assert.Equal(t, []TaskState{Pending}, AllowedFromStates(Running))
	assert.Equal(t, []TaskState{Created, Pending, Running}, AllowedFromStates(Cancelling))
	assert.Equal(t, []TaskState{Cancelling}, AllowedFromStates(Cancelled))
	assert.Equal(t, []TaskState{Running}, AllowedFromStates(Completed))
	assert.Equal(t, []TaskState{Running}, AllowedFromStates(Failed))
	assert.Nil(t, AllowedFromStates(Created))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(Cancelled))
	assert.True(t, IsTerminal(Completed))
	assert.True(t, IsTerminal(Failed))
	assert.False(t, IsTerminal(Running))
	assert.False(t, IsTerminal(Pending))
	assert.False(t, IsTerminal(Created))
}
