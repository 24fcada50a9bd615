package ipc

import (
	"encoding/json"
	"testing"

	"github.com/Nuthatch-Inc/nuthatch-compositor/kms"
	"github.com/Nuthatch-Inc/nuthatch-compositor/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOutputs() []*output.Output {
	return []*output.Output{
		{
			Name: "eDP-1",
			Mode: kms.NewMode(1920, 1080, 60000, true),
			Modes: []kms.Mode{
				kms.NewMode(1920, 1080, 60000, true),
				kms.NewMode(1280, 720, 60000, false),
			},
		},
		{Name: "HDMI-A-1", Mode: kms.NewMode(2560, 1440, 59951, true)},
	}
}

func TestBuildOutputResponse(t *testing.T) {
	resp := BuildOutputResponse(sampleOutputs(), false)
	assert.Equal(t, 2, resp.OutputsFound)
	assert.Equal(t, []string{"eDP-1", "HDMI-A-1"}, resp.Outputs)
	assert.Nil(t, resp.OutputModes)
}

func TestBuildOutputResponseWithModes(t *testing.T) {
	resp := BuildOutputResponse(sampleOutputs(), true)
	require.Contains(t, resp.OutputModes, "eDP-1")
	modes := resp.OutputModes["eDP-1"]
	require.Len(t, modes, 2)
	assert.Equal(t, OutputMode{Width: 1920, Height: 1080, RefreshRate: 60000, Preferred: true}, modes[0])

	// outputs without probed modes simply have no entry
	assert.NotContains(t, resp.OutputModes, "HDMI-A-1")
}

func TestResponseWireShape(t *testing.T) {
	resp := BuildOutputResponse(sampleOutputs()[:1], false)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"outputs":["eDP-1"],"outputs_found":1}`, string(data))
}
