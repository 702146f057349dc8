package cpu

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCount(t *testing.T) {
	n := Count()
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, runtime.NumCPU())
}
