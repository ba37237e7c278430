package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"processmap/internal/registry"
)

func TestSweeperSchedule(t *testing.T) {
	reg, _ := setup(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, err := registry.NewSweeper(reg, "", nil)
	require.NoError(t, err)
	assert.Nil(t, s)
	s.Start()
	s.Stop()

	_, err = registry.NewSweeper(reg, "every tuesday", nil)
	assert.Error(t, err)

	s, err = registry.NewSweeper(reg, "@hourly", nil)
	require.NoError(t, err)
	s.Start()
	s.Stop()
}
