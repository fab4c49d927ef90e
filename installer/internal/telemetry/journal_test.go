package telemetry_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/trafficx/installer/internal/telemetry"
)

func TestJournal_RecordAndSubscribe(t *testing.T) {
	j := telemetry.NewJournal()
	_, err := uuid.Parse(j.RunID)
	require.NoError(t, err)

	var seen []string
	j.Subscribe(func(s telemetry.Step) { seen = append(seen, s.Name) })

	j.Record("stop service", telemetry.OutcomeDone, nil)
	j.Record("remove descriptor", telemetry.OutcomeNotFound, nil)

	assert.Equal(t, []string{"stop service", "remove descriptor"}, seen)

	steps := j.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, telemetry.OutcomeNotFound, steps[1].Outcome)
	assert.False(t, steps[0].At.IsZero())
	assert.NoError(t, j.Err())

	step, ok := j.Lookup("remove descriptor")
	require.True(t, ok)
	assert.Equal(t, "remove descriptor: not found", step.String())
}

func TestJournal_ErrAggregatesFailures(t *testing.T) {
	j := telemetry.NewJournal()
	j.Record("remove install dir", telemetry.OutcomeFailed, errors.New("permission denied"))
	j.Record("remove log file", telemetry.OutcomeDone, nil)
	j.Record("remove cert dir", telemetry.OutcomeFailed, errors.New("read-only file system"))

	err := j.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
	assert.Contains(t, err.Error(), "remove install dir: permission denied")
	assert.Contains(t, err.Error(), "remove cert dir: read-only file system")
}
