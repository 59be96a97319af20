/*
   teamchat is a real-time presence and chat fan-out server
   Copyright (C) 2019 Timothy Drysdale <timothy.d.drysdale@gmail.com>

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as
   published by the Free Software Foundation, either version 3 of the
   License, or (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/client9/reopen"
	log "github.com/sirupsen/logrus"
)

// configureLogging sets the logrus level, format and output. When file is
// not stdout, it is reopened on SIGHUP so that logrotate can move it.
func configureLogging(ctx context.Context, level, format, file string) error {

	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("log level can be trace, debug, info, warn, error, fatal or panic but not %s", level)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("log format can be json or text but not %s", format)
	}

	if file == "" || strings.ToLower(file) == "stdout" {
		log.SetOutput(os.Stdout)
		return nil
	}

	f, err := reopen.NewFileWriter(file)
	if err != nil {
		log.Infof("Failed to log to %s, logging to default stderr", file)
		return nil
	}

	log.SetOutput(f)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := f.Reopen(); err != nil {
					fmt.Fprintf(os.Stderr, "reopening log file %s: %v\n", file, err)
				}
			}
		}
	}()

	return nil
}
