package unet_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/rsunet/shape"
	"github.com/sugarme/rsunet/unet"
)

func stageByName(stages []unet.StageShape, name string) (unet.StageShape, bool) {
	for _, s := range stages {
		if s.Name == name {
			return s, true
		}
	}
	return unet.StageShape{}, false
}

func countPrefix(stages []unet.StageShape, prefix string) int {
	n := 0
	for _, s := range stages {
		if strings.HasPrefix(s.Name, prefix) {
			n++
		}
	}
	return n
}

func TestPlanSmall(t *testing.T) {
	stages, err := smallConfig().Plan([]int64{1, 1, 16, 64, 64})
	require.NoError(t, err)

	var names []string
	for _, s := range stages {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"embed_in",
		"convmod0", "maxpool0", "convmod1", "maxpool1",
		"bridge",
		"upsample1", "dconvmod1", "upsample0", "dconvmod0",
		"embed_out", "output",
	}, names)

	bridge, _ := stageByName(stages, "bridge")
	assert.Equal(t, []int64{4, 16, 16}, bridge.Spatial)
	assert.Equal(t, int64(16), bridge.InChannels)
	assert.Equal(t, int64(32), bridge.OutChannels)

	up1, _ := stageByName(stages, "upsample1")
	assert.Equal(t, int64(32), up1.InChannels)
	assert.Equal(t, int64(16), up1.OutChannels)

	out := stages[len(stages)-1]
	assert.Equal(t, int64(3), out.OutChannels)
	assert.Equal(t, []int64{16, 64, 64}, out.Spatial)
}

func TestPlanParams(t *testing.T) {
	stages, err := smallConfig().Plan([]int64{1, 1, 16, 64, 64})
	require.NoError(t, err)

	embed, _ := stageByName(stages, "embed_in")
	assert.Equal(t, int64(1*8*1*5*5), embed.Params)

	// three 3x3x3 convs without bias and three batch norms
	conv0, _ := stageByName(stages, "convmod0")
	assert.Equal(t, int64(8*8*27+2*8*8*27+3*2*8), conv0.Params)

	pool, _ := stageByName(stages, "maxpool0")
	assert.Zero(t, pool.Params)

	up0, _ := stageByName(stages, "upsample0")
	assert.Equal(t, int64(16*8+2*8), up0.Params)

	cfg := smallConfig()
	cfg.UseNorm = false
	cfg.Upsample = "transpose"
	stages, err = cfg.Plan([]int64{1, 1, 16, 64, 64})
	require.NoError(t, err)

	conv0, _ = stageByName(stages, "convmod0")
	assert.Equal(t, int64(8*8*27+2*8*8*27+3*8), conv0.Params)
	up0, _ = stageByName(stages, "upsample0")
	assert.Equal(t, int64(16*8*8), up0.Params)
	assert.Greater(t, unet.TotalParams(stages), int64(0))
}

func TestPlanSkipPairing(t *testing.T) {
	cfg := unet.DefaultConfig()
	cfg.InitStride = []int64{1, 1, 1}
	for depth := 0; depth < len(cfg.Features); depth++ {
		cfg.Depth = depth
		stages, err := cfg.Plan([]int64{2, 1, 16, 32, 32})
		require.NoError(t, err, "depth %d", depth)

		assert.Equal(t, depth, countPrefix(stages, "maxpool"), "depth %d", depth)
		assert.Equal(t, depth, countPrefix(stages, "upsample"), "depth %d", depth)
		assert.Equal(t, depth, countPrefix(stages, "dconvmod"), "depth %d", depth)

		for d := 0; d < depth; d++ {
			skip, ok := stageByName(stages, fmt.Sprintf("convmod%d", d))
			require.True(t, ok)
			up, ok := stageByName(stages, fmt.Sprintf("upsample%d", d))
			require.True(t, ok)
			assert.Equal(t, skip.Spatial, up.Spatial, "depth %d scale %d", depth, d)
			assert.Equal(t, skip.OutChannels, up.OutChannels, "depth %d scale %d", depth, d)
		}

		out := stages[len(stages)-1]
		assert.Equal(t, []int64{16, 32, 32}, out.Spatial, "depth %d", depth)
	}
}

func TestPlanStridedEmbedding(t *testing.T) {
	cfg := unet.DefaultConfig()
	stages, err := cfg.Plan([]int64{1, 1, 16, 128, 128})
	require.NoError(t, err)

	embed, _ := stageByName(stages, "embed_in")
	assert.Equal(t, []int64{16, 64, 64}, embed.Spatial)
	bridge, _ := stageByName(stages, "bridge")
	assert.Equal(t, []int64{1, 4, 4}, bridge.Spatial)
	out := stages[len(stages)-1]
	assert.Equal(t, []int64{16, 128, 128}, out.Spatial)
}

func TestPlanErrors(t *testing.T) {
	cfg := smallConfig()

	_, err := cfg.Plan([]int64{1, 1, 15, 64, 64})
	assert.True(t, errors.Is(err, shape.ErrInvalidShape), "%v", err)

	_, err = cfg.Plan([]int64{1, 2, 16, 64, 64})
	assert.True(t, errors.Is(err, shape.ErrInvalidShape))

	_, err = cfg.Plan([]int64{16, 64, 64})
	assert.True(t, errors.Is(err, shape.ErrInvalidShape))

	cfg.Depth = 3
	_, err = cfg.Plan([]int64{1, 1, 16, 64, 64})
	assert.True(t, errors.Is(err, unet.ErrInvalidConfig))
}
