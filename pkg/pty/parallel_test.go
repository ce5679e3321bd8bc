package pty

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelAdvertisesAuxiliaryPtys(t *testing.T) {
	p := NewParallel(NewDummy(""))
	assert.True(t, p.AuxiliaryPtysAvailable())
	assert.False(t, p.Interactive())
}

func TestParallelPreservesCallbackOrder(t *testing.T) {
	base := NewDummy("")
	p := NewParallel(base)

	callbacks := make([]func(Pty) (interface{}, error), 5)
	for i := 0; i < 5; i++ {
		i := i
		callbacks[i] = func(aux Pty) (interface{}, error) {
			fmt.Fprintf(aux.Stdout(), "worker-%d\n", i)
			return i, nil
		}
	}

	fork := p.RunInAuxiliaryPtys(callbacks)
	fork.Join()
	assert.NoError(t, fork.Err())
	assert.Equal(t, []interface{}{0, 1, 2, 3, 4}, fork.Result)
}

func TestParallelPropagatesFirstError(t *testing.T) {
	p := NewParallel(NewDummy(""))
	boom := fmt.Errorf("boom")

	fork := p.RunInAuxiliaryPtys([]func(Pty) (interface{}, error){
		func(Pty) (interface{}, error) { return nil, nil },
		func(Pty) (interface{}, error) { return nil, boom },
	})
	assert.Error(t, fork.Err())
}

func TestAuxPtyNeverOffersItsOwnAuxiliaries(t *testing.T) {
	aux := &auxPty{base: NewDummy("")}
	assert.False(t, aux.AuxiliaryPtysAvailable())
}
