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

	"github.com/practable/teamchat/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "load users, friendships and groups into a badger store",
	Long: `Load a YAML fixture into the badger store used by teamchat serve, for example

export TEAMCHAT_DATA_DIR=/var/lib/teamchat
teamchat seed fixture.yaml

The server must not be running, since badger allows one process per directory.
`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {

		dir := viper.GetString("data_dir")

		if dir == "" {
			fmt.Println("TEAMCHAT_DATA_DIR not set")
			os.Exit(1)
		}

		b, err := store.OpenBadger(dir)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		err = store.LoadFixture(context.Background(), b, args[0])

		if cerr := b.Close(); cerr != nil {
			fmt.Println(cerr)
		}

		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		fmt.Printf("loaded %s into %s\n", args[0], dir)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
