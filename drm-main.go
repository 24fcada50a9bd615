package main

import (
	"os/exec"
	"strings"

	"github.com/Nuthatch-Inc/nuthatch-compositor/backend"
	"github.com/Nuthatch-Inc/nuthatch-compositor/config"
	"github.com/sirupsen/logrus"
)

func drmMain(conf *config.Config) {
	server, err := backend.NewServer(conf)
	if err != nil {
		fatal("initializing server", err)
	}
	if err = server.Start(); err != nil {
		fatal("starting server", err)
	}

	switch conf.StartType {
	case config.START_REPL:
		go replRunner(server)
	case config.START_SINGLE_COMMAND:
		if conf.StartCommand == nil {
			logrus.Warnln("Start type is single command but no command given")
		} else {
			go runStartCommand(*conf.StartCommand)
		}
	}

	// drive the frame loop until shutdown
	if err = server.Run(); err != nil {
		fatal("running server", err)
	}
}

func runStartCommand(cmdString string) {
	parts := strings.Split(cmdString, " ")
	cmd := exec.Command(parts[0], parts[1:]...)
	if err := cmd.Start(); err != nil {
		logrus.WithError(err).WithField("command", cmdString).Errorln("Start command failed to launch")
		return
	}
	if err := cmd.Wait(); err != nil {
		logrus.WithError(err).WithField("command", cmdString).Warningln("Start command exited badly")
	}
}
