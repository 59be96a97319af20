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
	"time"

	"github.com/practable/teamchat/internal/chat"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the chat server",
	Long: `Run the presence and fan-out server. Set parameters with environment
variables, for example:

export TEAMCHAT_LISTEN=3000
export TEAMCHAT_STORE=badger
export TEAMCHAT_DATA_DIR=/var/lib/teamchat
export TEAMCHAT_FIXTURE=/etc/teamchat/fixture.yaml
export TEAMCHAT_AUDIENCE=https://chat.example.org
export TEAMCHAT_SECRET=somesecret
export TEAMCHAT_REQUIRE_KNOWN_USER=true
export TEAMCHAT_RATE_LIMIT=500ms
export TEAMCHAT_TYPING_TIMEOUT=6s
export TEAMCHAT_SWEEP_EVERY=1s
export TEAMCHAT_PRUNE_EVERY=5m
export TEAMCHAT_PERSIST_TIMEOUT=5s
export TEAMCHAT_SEND_BUFFER=256
export TEAMCHAT_ALLOWED_ORIGINS=https://chat.example.org,https://www.example.org
export TEAMCHAT_LOG_LEVEL=warn
export TEAMCHAT_LOG_FORMAT=json
export TEAMCHAT_LOG_FILE=/var/log/teamchat/teamchat.log
export TEAMCHAT_PROFILE=false
teamchat serve

Notes:
Leave TEAMCHAT_SECRET unset to trust identities as supplied on register
TEAMCHAT_SWEEP_EVERY must be shorter than TEAMCHAT_TYPING_TIMEOUT
TEAMCHAT_RATE_LIMIT=0 disables rate limiting
`,
	Run: func(cmd *cobra.Command, args []string) {

		d := chat.NewDefaultConfig()

		viper.SetDefault("listen", d.Listen)
		viper.SetDefault("store", d.Store)
		viper.SetDefault("data_dir", "")
		viper.SetDefault("fixture", "")
		viper.SetDefault("audience", "")
		viper.SetDefault("secret", "")
		viper.SetDefault("require_known_user", false)
		viper.SetDefault("rate_limit", d.RateLimit.String())
		viper.SetDefault("typing_timeout", d.TypingTimeout.String())
		viper.SetDefault("sweep_every", d.SweepEvery.String())
		viper.SetDefault("prune_every", d.PruneEvery.String())
		viper.SetDefault("persist_timeout", d.PersistTimeout.String())
		viper.SetDefault("send_buffer", d.SendBuffer)
		viper.SetDefault("allowed_origins", "")
		viper.SetDefault("log_file", "stdout")
		viper.SetDefault("log_format", "json")
		viper.SetDefault("log_level", "warn")
		viper.SetDefault("profile", false)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		logFile := viper.GetString("log_file")
		logFormat := viper.GetString("log_format")
		logLevel := viper.GetString("log_level")

		if err := configureLogging(ctx, logLevel, logFormat, logFile); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		config := chat.Config{
			Listen:           viper.GetInt("listen"),
			Store:            viper.GetString("store"),
			DataDir:          viper.GetString("data_dir"),
			Fixture:          viper.GetString("fixture"),
			Audience:         viper.GetString("audience"),
			Secret:           viper.GetString("secret"),
			RequireKnownUser: viper.GetBool("require_known_user"),
			SendBuffer:       viper.GetInt("send_buffer"),
			AllowedOrigins:   splitList(viper.GetString("allowed_origins")),
			Profile:          viper.GetBool("profile"),
			ShutdownWait:     d.ShutdownWait,
		}

		// parse durations
		durations := []struct {
			key string
			dst *time.Duration
		}{
			{"rate_limit", &config.RateLimit},
			{"typing_timeout", &config.TypingTimeout},
			{"sweep_every", &config.SweepEvery},
			{"prune_every", &config.PruneEvery},
			{"persist_timeout", &config.PersistTimeout},
		}

		for _, p := range durations {
			v := viper.GetString(p.key)
			parsed, err := time.ParseDuration(v)
			if err != nil {
				fmt.Printf("cannot parse duration in TEAMCHAT_%s=%s\n", strings.ToUpper(p.key), v)
				os.Exit(1)
			}
			*p.dst = parsed
		}

		if err := config.Validate(); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Report useful info
		log.Infof("teamchat version: %s", version)
		log.Infof("Listen: [%d]", config.Listen)
		log.Infof("Store: [%s] in [%s]", config.Store, config.DataDir)
		log.Infof("Fixture: [%s]", config.Fixture)
		log.Infof("Audience: [%s]", config.Audience)
		log.Infof("Tokens required: [%t]", config.Secret != "")
		log.Infof("Require known user: [%t]", config.RequireKnownUser)
		log.Infof("Rate limit: [%s]", config.RateLimit)
		log.Infof("Typing timeout: [%s] swept every [%s]", config.TypingTimeout, config.SweepEvery)
		log.Infof("Prune every: [%s]", config.PruneEvery)
		log.Infof("Persist timeout: [%s]", config.PersistTimeout)
		log.Infof("Send buffer: [%d]", config.SendBuffer)
		log.Infof("Allowed origins: %v", config.AllowedOrigins)
		log.Infof("Log file: [%s]", logFile)
		log.Infof("Log format: [%s]", logFormat)
		log.Infof("Log level: [%s]", logLevel)
		log.Infof("Profiling is on: [%t]", config.Profile)

		if err := chat.Run(ctx, config); err != nil {
			log.WithField("error", err.Error()).Error("teamchat serve")
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

// splitList parses a comma separated list, dropping empty items
func splitList(s string) []string {
	items := []string{}
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
