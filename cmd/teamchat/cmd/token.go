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
	"fmt"
	"os"
	"time"

	"github.com/practable/teamchat/internal/permission"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "teamchat token generates a new token for registering an identity",
	Long: `Set the operating parameters with environment variables, for example

export TEAMCHAT_TOKEN_LIFETIME=3600
export TEAMCHAT_TOKEN_SECRET=somesecret
export TEAMCHAT_TOKEN_IDENTITY=alice
export TEAMCHAT_TOKEN_AUDIENCE=https://chat.example.org
bearer=$(teamchat token)
`,

	Run: func(cmd *cobra.Command, args []string) {

		v := viper.New()
		v.SetEnvPrefix("TEAMCHAT_TOKEN")
		v.AutomaticEnv()

		lifetime := v.GetInt64("lifetime")
		audience := v.GetString("audience")
		secret := v.GetString("secret")
		identity := v.GetString("identity")

		// check inputs

		if lifetime == 0 {
			fmt.Println("TEAMCHAT_TOKEN_LIFETIME not set")
			os.Exit(1)
		}
		if secret == "" {
			fmt.Println("TEAMCHAT_TOKEN_SECRET not set")
			os.Exit(1)
		}
		if identity == "" {
			fmt.Println("TEAMCHAT_TOKEN_IDENTITY not set")
			os.Exit(1)
		}
		if audience == "" {
			fmt.Println("TEAMCHAT_TOKEN_AUDIENCE not set")
			os.Exit(1)
		}

		iat := time.Now().Unix() - 1 //ensure immediately usable
		nbf := iat
		exp := iat + lifetime

		bearer, err := permission.Sign(permission.NewToken(audience, identity, iat, nbf, exp), secret)

		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		fmt.Println(bearer)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
