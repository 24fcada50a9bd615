package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Nuthatch-Inc/nuthatch-compositor/backend"
	"github.com/Nuthatch-Inc/nuthatch-compositor/repl"
	"github.com/Nuthatch-Inc/nuthatch-compositor/util"
	"github.com/Nuthatch-Inc/nuthatch-compositor/util/wrappers"
	"github.com/sirupsen/logrus"
)

func replRunner(server *backend.Server) {
	// Give repl some wrappers around stdin and stdout so that it closes those instead of stdin & stdout themselves
	commandRepl := repl.NewRepl(wrappers.NewReaderWrapper(os.Stdin), wrappers.NewWriterWrapper(os.Stdout))

	events, err := server.Events().MakeReceiver("repl")
	if err != nil {
		logrus.WithError(err).Warnln("Repl running without event feed")
	}

	logrus.Debugln("Starting repl")
	_ = commandRepl.Run(func(input string, r *repl.Repl) (string, error) {
		if cmdString, ok := strings.CutPrefix(input, "run "); ok {
			parts := strings.Split(cmdString, " ")
			// This is safe b/c it'll unpack into a slice of length 0
			args := parts[1:]
			// And here a slice of length 0 means that no additional arguments will be given
			// It's also safe if the repl command is "run " since the first element will now be an empty string
			// Which is also safe to "execute" since cmd.Start will just fail with the No Command error
			cmd := exec.Command(parts[0], args...)
			cmd.Stdout = r.Output
			cmd.Stderr = r.Output
			go func(cmd *exec.Cmd, cmdString string) {
				err := cmd.Start()
				if err != nil {
					logrus.WithError(err).WithField("command", cmdString).Errorln("Command failed to start")
					return
				}
				err = cmd.Wait()
				if exiterr, ok := err.(*exec.ExitError); ok {
					logrus.WithError(err).WithFields(logrus.Fields{
						"exit-code": exiterr.ExitCode(),
						"comand":    cmdString,
					}).Warningln("Bad command completion")
				}
			}(cmd, cmdString)
			return "Running " + parts[0], nil
		} else if input == "quit" {
			server.Stop()
			time.Sleep(time.Second * 5)
			return "Quitting", errors.New("normal stop")
		} else if input == "events" {
			return drainEvents(events), nil
		} else if rawCmdString, ok := strings.CutPrefix(input, "inspect "); ok {
			// Can't unpack slices directly like in Python, so do it this roundabout way
			var target, mod string
			util.Unpack(strings.SplitN(rawCmdString, " ", 2), &target, &mod)
			switch target {
			case "outputs":
				return describeOutputs(server), nil
			case "devices":
				devices := server.Devices()
				if len(devices) == 0 {
					return "No devices registered", nil
				}
				return strings.Join(devices, "\n"), nil
			case "frames":
				return describeFrames(server), nil
			case "cursor":
				x, y := server.PointerLocation()
				return fmt.Sprintf("Cursor: Location (%f:%f)", x, y), nil
			case "output":
				return describeOutput(server, mod), nil
			default:
				return "Unknown inspect target", nil
			}
		}
		return "Unknown command", nil
	})
}

// drainEvents returns everything the backend announced since the last call.
func drainEvents(events chan string) string {
	if events == nil {
		return "Event feed unavailable"
	}
	var lines []string
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return "Event feed closed"
			}
			lines = append(lines, ev)
		default:
			if len(lines) == 0 {
				return "No new events"
			}
			return strings.Join(lines, "\n")
		}
	}
}

func describeOutputs(server *backend.Server) string {
	outputs := server.Outputs()
	if len(outputs) == 0 {
		return "No outputs mapped"
	}
	var lines []string
	for _, out := range outputs {
		lines = append(lines, fmt.Sprintf("%s: %s at (%d:%d)", out.Name, out.Mode.String(), out.X, out.Y))
	}
	return strings.Join(lines, "\n")
}

func describeOutput(server *backend.Server, name string) string {
	for _, out := range server.Outputs() {
		if out.Name != name {
			continue
		}
		return fmt.Sprintf(
			"%s: %s at (%d:%d), %dx%dmm, subpixel %s, %d modes",
			out.Name, out.Mode.String(), out.X, out.Y,
			out.PhysWidthMM, out.PhysHeightMM, out.Subpixel, len(out.Modes),
		)
	}
	return "Output not found: " + name
}

func describeFrames(server *backend.Server) string {
	counts := server.FrameCounts()
	if len(counts) == 0 {
		return "No outputs presenting"
	}
	var lines []string
	for name, frames := range counts {
		lines = append(lines, fmt.Sprintf("%s: %d frames", name, frames))
	}
	return strings.Join(lines, "\n")
}
