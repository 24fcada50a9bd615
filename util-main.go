package main

import (
	"encoding/json"
	"flag"
	"fmt"

	"github.com/Nuthatch-Inc/nuthatch-compositor/backend"
	"github.com/Nuthatch-Inc/nuthatch-compositor/common/ipc"
	"github.com/Nuthatch-Inc/nuthatch-compositor/config"
	"github.com/Nuthatch-Inc/nuthatch-compositor/output"
	"github.com/sirupsen/logrus"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

var (
	utilAction *string = flag.String(
		"action",
		"",
		"The action to perform. Can be one of:"+
			"\n\t- none: Do nothing"+
			"\n\t- outputs: List available outputs"+
			"\n\t- modes <output>: List available modes for an output"+
			"\n\t- devices: List usable GPU devices",
	)
	outputSelection *string = flag.String(
		"output",
		"",
		"Output to perform the action on. Required for some actions",
	)
	jsonOutput *bool = flag.Bool(
		"json",
		false,
		"Emit the result as JSON instead of plain text",
	)
)

func utilMain(conf *config.Config) {
	if *help {
		utilHelpMessage()
		return
	}

	// Init a server, used for stuff like probing GPUs and connectors
	server, err := backend.NewServer(conf)
	if err != nil {
		logrus.WithError(err).Fatal("initializing server")
	}
	server.SetProbeOnly()
	if err = server.Start(); err != nil {
		logrus.WithError(err).Fatal("starting server")
	}
	defer server.Close()

	switch *utilAction {
	case "outputs":
		utilListOutputs(server)
	case "modes":
		if *outputSelection == "" {
			fmt.Println("Output has to be specified")
			return
		} else {
			utilListOutputModes(server, *outputSelection)
		}
	case "devices":
		for i, dev := range server.Devices() {
			fmt.Printf("Device %v: %s\n", i, dev)
		}
	}
}

func utilHelpMessage() {
	fmt.Println("---- Help message for Nuthatch in tool mode ----")
	fmt.Println("\nIn tool mode, nuthatch will offer various tools for figuring out configurations and similar")
	fmt.Println("\nGeneral flags:")
	fmt.Println("\t-config: Path to the config file. Default is the XDG config location")
	fmt.Println("\t-tool: Start as a tool instead of a compositor")
	fmt.Println("\t-help: Show this help message (or the one for compositor mode if -tool is not set)")
	fmt.Println("\nTool flags:")
	fmt.Println("\t-action: The action to perform. Can be one of:")
	fmt.Println("\t\t- (default) outputs: List available outputs")
	fmt.Println("\t\t- modes: List available modes for an output. Use with -output")
	fmt.Println("\t\t- devices: List usable GPU devices")
	fmt.Println("\t-output: Output to perform the action on. Required for -action modes")
	fmt.Println("\t-json: Emit the result as JSON instead of plain text")
}

func utilListOutputs(server *backend.Server) {
	outputs := server.Outputs()
	if *jsonOutput {
		printJSON(ipc.BuildOutputResponse(outputs, false))
		return
	}
	for i, out := range outputs {
		fmt.Printf("Output %v: %s\n", i, out.Name)
	}
}

func utilListOutputModes(server *backend.Server, outputName string) {
	outputs := server.Outputs()
	filtered := sliceutils.Filter(outputs, func(out *output.Output) bool {
		return out.Name == outputName
	})
	if len(filtered) == 0 {
		fmt.Printf("Output %s not found\n", outputName)
		return
	}
	if *jsonOutput {
		printJSON(ipc.BuildOutputResponse(filtered, true))
		return
	}
	fmt.Printf("Modes for output %s:\n", outputName)
	for _, mode := range filtered[0].Modes {
		if mode.Preferred {
			fmt.Printf("\t- %dx%d@%d (preferred)\n", mode.Width, mode.Height, mode.RefreshMHz)
		} else {
			fmt.Printf("\t- %dx%d@%d\n", mode.Width, mode.Height, mode.RefreshMHz)
		}
	}
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logrus.WithError(err).Errorln("Failed to encode result")
		return
	}
	fmt.Println(string(data))
}
