package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopConfirmReturnsDefault(t *testing.T) {
	ok, err := (Noop{}).Confirm("proceed?", true)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = (Noop{}).Confirm("proceed?", false)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestNoopInputReturnsDefaultValue(t *testing.T) {
	v, err := (Noop{}).Input("name?", false, "fallback")
	assert.NoError(t, err)
	assert.Equal(t, "fallback", v)
}

func TestNoopChoiceReturnsDefaultIndex(t *testing.T) {
	v, err := (Noop{}).Choice("pick", []string{"a", "b", "c"}, 1, false)
	assert.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestNoopChoiceErrorsWithoutValidDefault(t *testing.T) {
	_, err := (Noop{}).Choice("pick", []string{"a"}, 5, false)
	assert.Error(t, err)
}

func TestNoopProgressBarNeverBlocks(t *testing.T) {
	bar := (Noop{}).ProgressBarWithSteps("work", 3)
	assert.NotPanics(t, func() {
		bar.Step("one")
		bar.Step("two")
		bar.Done()
	})
}
