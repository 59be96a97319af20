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
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/practable/teamchat/internal/access"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show a running server's statistics",
	Long: `Query the REST API of a running server and print a summary, for example

export TEAMCHAT_STATUS_URL=http://localhost:3000
teamchat status
`,
	Run: func(cmd *cobra.Command, args []string) {

		v := viper.New()
		v.SetEnvPrefix("TEAMCHAT_STATUS")
		v.AutomaticEnv()
		v.SetDefault("url", "http://localhost:3000")

		base := v.GetString("url")

		client := &http.Client{Timeout: 10 * time.Second}

		var stats access.Stats
		if err := fetch(client, base+"/api/stats", &stats); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		var online access.Online
		if err := fetch(client, base+"/api/online", &online); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		table := newTable([]string{"Metric", "Value"})
		for _, row := range statusRows(stats, online) {
			table.Append(row)
		}
		table.Render()
	},
}

// statusRows flattens a stats snapshot into table rows
func statusRows(stats access.Stats, online access.Online) [][]string {

	h := stats.Hub

	rows := [][]string{
		{"connections", strconv.Itoa(h.Connections)},
		{"registered", strconv.Itoa(h.Registered)},
		{"online", strconv.Itoa(h.Online)},
		{"groups open", strconv.Itoa(h.Groups)},
		{"identities", fmt.Sprintf("%v", online.Identities)},
	}

	if h.Stats != nil {
		kinds := []string{}
		for k := range h.Stats.Relayed {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			rows = append(rows, []string{"relayed " + k, strconv.FormatUint(h.Stats.Relayed[k], 10)})
		}
		rows = append(rows,
			[]string{"pushes", strconv.FormatUint(h.Stats.Pushes, 10)},
			[]string{"unreachable", strconv.FormatUint(h.Stats.Unreachable, 10)},
			[]string{"rate limited", strconv.FormatUint(h.Stats.RateLimited, 10)},
			[]string{"rejected", strconv.FormatUint(h.Stats.Rejected, 10)},
			[]string{"evicted", strconv.FormatUint(h.Stats.Evicted, 10)},
			[]string{"mean fan-out", fmt.Sprintf("%.2f", h.Stats.Fanout.Mean)},
			[]string{"mean persist", (time.Duration(h.Stats.Persist.Mean * float64(time.Second))).String()},
			[]string{"last relay", h.Stats.Last},
			[]string{"started", h.Stats.Started},
		)
	}

	if p := stats.Process; p != nil {
		rows = append(rows,
			[]string{"pid", strconv.Itoa(int(p.PID))},
			[]string{"goroutines", strconv.Itoa(p.Goroutines)},
			[]string{"cpu", fmt.Sprintf("%.1f%%", p.CPUPercent)},
			[]string{"memory", fmt.Sprintf("%.1f%% (%d bytes rss)", p.MemoryPercent, p.RSS)},
		)
	}

	return rows
}

func fetch(client *http.Client, url string, v interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
