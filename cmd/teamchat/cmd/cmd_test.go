package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/practable/teamchat/internal/access"
	"github.com/practable/teamchat/internal/chanstats"
	"github.com/practable/teamchat/internal/hub"
	"github.com/practable/teamchat/internal/message"
	"github.com/practable/teamchat/internal/scope"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {

	tests := []struct {
		line string
		want message.Inbound
	}{
		{"hello everyone", message.SendMessage{Scope: scope.Global(), Content: "hello everyone"}},
		{"/dm bob hi  bob", message.SendMessage{Scope: scope.Direct("bob"), Content: "hi  bob"}},
		{"/group 7 hi seven", message.SendMessage{Scope: scope.Group("7"), Content: "hi seven"}},
		{"/join 7", message.JoinGroup{Group: "7"}},
		{"/leave 7", message.LeaveGroup{Group: "7"}},
		{"/typing on", message.SetTyping{Scope: scope.Global(), Typing: true}},
		{"/typing off 7", message.SetTyping{Scope: scope.Group("7"), Typing: false}},
	}

	for _, tc := range tests {
		got, err := parseLine(tc.line)
		assert.NoError(t, err, tc.line)
		assert.Equal(t, tc.want, got, tc.line)
	}

	_, err := parseLine("   ")
	assert.ErrorIs(t, err, errEmptyLine)

	for _, bad := range []string{"/join", "/dm bob", "/typing maybe", "/dance"} {
		_, err := parseLine(bad)
		assert.Error(t, err, bad)
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "* online: a, b", describe(message.Presence{Identities: []string{"a", "b"}}))
	assert.Equal(t, "* typing in group/7: a", describe(message.Typing{Scope: scope.Group("7"), Identities: []string{"a"}}))
	assert.Equal(t, "! not_friends c", describe(message.Error{Code: message.CodeNotFriends, Reason: "c"}))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{}, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
}

func TestStatusRows(t *testing.T) {

	stats := access.Stats{
		Hub: hub.Report{
			Connections: 3,
			Stats:       chanstats.NewReport(chanstats.New()),
		},
		Process: &access.Process{PID: 42, Goroutines: 7},
	}
	stats.Hub.Stats.Relayed["global"] = 2

	rows := statusRows(stats, access.Online{Identities: []string{"a"}})

	assert.Contains(t, rows, []string{"connections", "3"})
	assert.Contains(t, rows, []string{"relayed global", "2"})
	assert.Contains(t, rows, []string{"pid", "42"})
	assert.Contains(t, rows, []string{"last relay", "never"})
}

func TestConfigureLogging(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer log.SetOutput(os.Stderr)

	assert.Error(t, configureLogging(ctx, "loud", "json", "stdout"))
	assert.Error(t, configureLogging(ctx, "info", "xml", "stdout"))

	file := filepath.Join(t.TempDir(), "teamchat.log")
	require.NoError(t, configureLogging(ctx, "info", "json", file))

	log.Info("written")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written")
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}
