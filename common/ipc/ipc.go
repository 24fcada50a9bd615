package ipc

import "github.com/Nuthatch-Inc/nuthatch-compositor/output"

type (
	// A request to list the available Outputs
	OutputRequest struct {
		// Whether to include the modes an output supports
		IncludeModes bool `json:"include_modes"`
		// Target one specific output
		SpecifiesOutput bool `json:"specifies_output"`
		// Name of the output you want info on. Only matters if SpecifiesOutput is set
		TargetOutput string `json:"target_output"`
	}

	// A mode an output supports
	OutputMode struct {
		// Mode height in pixel
		Height int `json:"height"`
		// Mode width in pixel
		Width int `json:"width"`
		// Refresh rate of the mode in millihertz
		RefreshRate int `json:"refresh_rate"`
		// Whether the monitor prefers this mode
		Preferred bool `json:"preferred"`
	}

	// Response to a OutputRequest message
	OutputResponse struct {
		// List of all outputs. Only contains target output if specified
		Outputs []string `json:"outputs"`
		// A list of modes an output supports. Only set if IncludeModes is true
		OutputModes map[string][]OutputMode `json:"output_modes,omitempty"`
		// Nr of outputs found
		OutputsFound int `json:"outputs_found"`
	}
)

// BuildOutputResponse packs mapped outputs into the wire shape the tool mode
// prints.
func BuildOutputResponse(outputs []*output.Output, includeModes bool) OutputResponse {
	resp := OutputResponse{
		OutputsFound: len(outputs),
	}
	if includeModes {
		resp.OutputModes = make(map[string][]OutputMode)
	}
	for _, out := range outputs {
		resp.Outputs = append(resp.Outputs, out.Name)
		if !includeModes {
			continue
		}
		for _, mode := range out.Modes {
			resp.OutputModes[out.Name] = append(resp.OutputModes[out.Name], OutputMode{
				Height:      int(mode.Height),
				Width:       int(mode.Width),
				RefreshRate: int(mode.RefreshMHz),
				Preferred:   mode.Preferred,
			})
		}
	}
	return resp
}
