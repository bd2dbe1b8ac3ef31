package retime

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-sync/audio"
	"github.com/RyanBlaney/sonido-sync/retime/config"
)

func TestExtract_CancellationKeepsOwnStage(t *testing.T) {
	engine, err := NewEngine(config.DefaultConfig())
	require.NoError(t, err)

	samples := make([]float64, 16000)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/16000)
	}
	wf, err := audio.NewMono(samples, 16000)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runID := uuid.New()

	for _, stage := range []Stage{StageExtractOriginal, StageExtractReplacement} {
		seq, _, err := engine.extract(ctx, stage, runID, wf)
		assert.Nil(t, seq)

		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, stage, stageErr.Stage)
		assert.Equal(t, runID, stageErr.RunID)
		assert.ErrorIs(t, err, context.Canceled)
	}

	seq, elapsed, err := engine.extract(context.Background(), StageExtractReplacement, runID, wf)
	require.NoError(t, err)
	assert.NotNil(t, seq)
	assert.GreaterOrEqual(t, int64(elapsed), int64(0))
}
