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
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/practable/teamchat/internal/message"
	"github.com/practable/teamchat/internal/reconws"
	"github.com/practable/teamchat/internal/scope"
	"github.com/spf13/cobra"
)

// clientOptions are read from TEAMCHAT_CLIENT_* environment variables
type clientOptions struct {
	URL       string        `envconfig:"URL" default:"ws://localhost:3000/ws"`
	Identity  string        `envconfig:"IDENTITY" required:"true"`
	Token     string        `envconfig:"TOKEN"`
	Groups    []string      `envconfig:"GROUPS"`
	RetryMax  time.Duration `envconfig:"RETRY_MAX" default:"10s"`
	LogLevel  string        `envconfig:"LOG_LEVEL" default:"warn"`
	LogFormat string        `envconfig:"LOG_FORMAT" default:"text"`
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "interactive chat client",
	Long: `Connect to a teamchat server, print events, and send one intent per
line read from stdin. Set parameters with environment variables, for example

export TEAMCHAT_CLIENT_URL=ws://localhost:3000/ws
export TEAMCHAT_CLIENT_IDENTITY=alice
export TEAMCHAT_CLIENT_TOKEN=$(teamchat token)
export TEAMCHAT_CLIENT_GROUPS=7,8
teamchat client

Lines:
hello everyone          send to the global scope
/dm bob hi bob          send a direct message
/group 7 hi seven       send to a group
/join 7, /leave 7       open or close a group
/typing on [group]      start typing, globally or in a group
/typing off [group]     stop typing
`,

	Run: func(cmd *cobra.Command, args []string) {

		var o clientOptions

		if err := envconfig.Process("teamchat_client", &o); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := configureLogging(ctx, o.LogLevel, o.LogFormat, "stdout"); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		r := reconws.New(o.Identity).WithToken(o.Token)
		r.Retry.Max = o.RetryMax

		go r.Reconnect(ctx, o.URL)

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case out := <-r.In:
					fmt.Println(describe(out))
				}
			}
		}()

		for _, g := range o.Groups {
			r.Out <- message.JoinGroup{Group: g}
		}

		lines := make(chan string)

		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
			cancel()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case line := <-lines:
				in, err := parseLine(line)
				if errors.Is(err, errEmptyLine) {
					continue
				}
				if err != nil {
					fmt.Println(err)
					continue
				}
				r.Out <- in
			}
		}
	},
}

var errEmptyLine = errors.New("empty line")

// parseLine turns one line of client input into an intent
func parseLine(line string) (message.Inbound, error) {

	line = strings.TrimSpace(line)

	if line == "" {
		return nil, errEmptyLine
	}

	if !strings.HasPrefix(line, "/") {
		return message.SendMessage{Scope: scope.Global(), Content: line}, nil
	}

	fields := strings.Fields(line)

	switch fields[0] {
	case "/join", "/leave":
		if len(fields) != 2 {
			return nil, fmt.Errorf("usage: %s <group>", fields[0])
		}
		if fields[0] == "/join" {
			return message.JoinGroup{Group: fields[1]}, nil
		}
		return message.LeaveGroup{Group: fields[1]}, nil

	case "/dm", "/group":
		if len(fields) < 3 {
			return nil, fmt.Errorf("usage: %s <id> <text>", fields[0])
		}
		s := scope.Direct(fields[1])
		if fields[0] == "/group" {
			s = scope.Group(fields[1])
		}
		content := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		content = strings.TrimSpace(strings.TrimPrefix(content, fields[1]))
		return message.SendMessage{Scope: s, Content: content}, nil

	case "/typing":
		if len(fields) < 2 || len(fields) > 3 || (fields[1] != "on" && fields[1] != "off") {
			return nil, errors.New("usage: /typing on|off [group]")
		}
		s := scope.Global()
		if len(fields) == 3 {
			s = scope.Group(fields[2])
		}
		return message.SetTyping{Scope: s, Typing: fields[1] == "on"}, nil
	}

	return nil, fmt.Errorf("unknown command %s", fields[0])
}

// describe renders an event for the terminal
func describe(out message.Outbound) string {
	switch m := out.(type) {
	case message.Registered:
		return fmt.Sprintf("* registered as %s", m.Identity)
	case message.Presence:
		return fmt.Sprintf("* online: %s", strings.Join(m.Identities, ", "))
	case message.Typing:
		return fmt.Sprintf("* typing in %s: %s", m.Scope.String(), strings.Join(m.Identities, ", "))
	case message.Chat:
		return fmt.Sprintf("[%s] %s %s: %s", m.Scope.String(), m.Timestamp.Local().Format("15:04:05"), m.Author, m.Content)
	case message.Error:
		return fmt.Sprintf("! %s %s", m.Code, m.Reason)
	}
	return fmt.Sprintf("? %v", out)
}

func init() {
	rootCmd.AddCommand(clientCmd)
}
