// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Nuthatch-Inc/nuthatch-compositor/config"
	"github.com/sirupsen/logrus"
)

var (
	confFile *string = flag.String(
		"config",
		"",
		"Path to the config file. Defaults to the XDG config location",
	)
	toolMode *bool = flag.Bool(
		"tool",
		false,
		"Start as a tool instead of a compositor",
	)
	help *bool = flag.Bool(
		"help",
		false,
		"Show the help message for the selected mode",
	)
)

func fatal(msg string, err error) {
	fmt.Printf("error %s: %s\n", msg, err)
	os.Exit(1)
}

func main() {
	flag.Parse()

	path := *confFile
	if path == "" {
		path = config.DefaultPath()
	}
	conf, err := config.Load(path)
	if err != nil {
		fatal("loading config", err)
	}

	level, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		logrus.WithField("level", conf.LogLevel).Warnln("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if *toolMode {
		utilMain(conf)
	} else {
		drmMain(conf)
	}
}
