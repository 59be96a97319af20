package chat

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/practable/teamchat/internal/access"
	"github.com/practable/teamchat/internal/message"
	"github.com/practable/teamchat/internal/permission"
	"github.com/practable/teamchat/internal/reconws"
	"github.com/practable/teamchat/internal/scope"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Verbose() {
		log.SetLevel(log.TraceLevel)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, DisableColors: true})
	} else {
		log.SetOutput(io.Discard)
	}

	os.Exit(m.Run())
}

// serve starts a server and waits for its healthcheck
func serve(t *testing.T, config Config) (string, context.CancelFunc, chan error) {

	port, err := freeport.GetFreePort()
	require.NoError(t, err)

	config.Listen = port

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, config)
	}()

	base := fmt.Sprintf("http://localhost:%d", port)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthcheck")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return base, cancel, done
}

func client(t *testing.T, ctx context.Context, base, identity string) *reconws.ReconWs {
	r := reconws.New(identity).WithRetry(reconws.RetryConfig{Factor: 2, Min: 10 * time.Millisecond, Max: 100 * time.Millisecond, Timeout: time.Second})
	go r.Reconnect(ctx, "ws"+base[len("http"):]+"/ws")
	select {
	case <-r.Connected:
	case <-time.After(3 * time.Second):
		t.Fatalf("%s did not connect", identity)
	}
	return r
}

func await(t *testing.T, r *reconws.ReconWs, want message.Type) message.Outbound {
	timeout := time.After(3 * time.Second)
	for {
		select {
		case out := <-r.In:
			if out.OutboundType() == want {
				return out
			}
		case <-timeout:
			t.Fatalf("%s: no %s event", r.Identity, want)
			return nil
		}
	}
}

func getOnline(t *testing.T, base string) []string {
	resp, err := http.Get(base + "/api/online")
	require.NoError(t, err)
	defer resp.Body.Close()
	var online access.Online
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&online))
	return online.Identities
}

func TestValidate(t *testing.T) {

	assert.NoError(t, NewDefaultConfig().Validate())

	c := *NewDefaultConfig()
	c.Store = "postgres"
	assert.Error(t, c.Validate())

	c = *NewDefaultConfig()
	c.Store = StoreBadger
	assert.Error(t, c.Validate())

	c = *NewDefaultConfig()
	c.SweepEvery = c.TypingTimeout
	assert.Error(t, c.Validate())

	c = *NewDefaultConfig()
	c.Secret = "somesecret"
	assert.Error(t, c.Validate())

	c = *NewDefaultConfig()
	c.Listen = 0
	assert.Error(t, c.Validate())
}

func TestChatOverBadger(t *testing.T) {

	config := *NewDefaultConfig()
	config.Store = StoreBadger
	config.DataDir = t.TempDir()
	config.Fixture = "testdata/fixture.yaml"
	config.RateLimit = 0
	config.RequireKnownUser = true

	base, _, _ := serve(t, config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := client(t, ctx, base, "alice")
	await(t, alice, message.TypeRegistered)

	bob := client(t, ctx, base, "bob")
	await(t, bob, message.TypeRegistered)

	carol := client(t, ctx, base, "carol")
	await(t, carol, message.TypeRegistered)

	assert.Eventually(t, func() bool { return len(getOnline(t, base)) == 3 }, 2*time.Second, 20*time.Millisecond)

	// global
	alice.Out <- message.SendMessage{Scope: scope.Global(), Content: "hi"}
	for _, r := range []*reconws.ReconWs{alice, bob, carol} {
		m := await(t, r, message.TypeMessage).(message.Chat)
		assert.Equal(t, "alice", m.Author)
		assert.Equal(t, "hi", m.Content)
	}

	// direct between friends
	alice.Out <- message.SendMessage{Scope: scope.Direct("bob"), Content: "psst"}
	m := await(t, bob, message.TypeMessage).(message.Chat)
	assert.Equal(t, scope.Direct("alice"), m.Scope)

	// direct to a stranger
	carol.Out <- message.SendMessage{Scope: scope.Direct("alice"), Content: "hello?"}
	e := await(t, carol, message.TypeError).(message.Error)
	assert.Equal(t, message.CodeNotFriends, e.Code)

	// group, joined only
	alice.Out <- message.JoinGroup{Group: "7"}
	await(t, alice, message.TypeTyping)
	bob.Out <- message.JoinGroup{Group: "7"}
	await(t, bob, message.TypeTyping)

	carol.Out <- message.SendMessage{Scope: scope.Group("7"), Content: "anyone?"}
	m = await(t, alice, message.TypeMessage).(message.Chat)
	assert.Equal(t, "anyone?", m.Content)
	m = await(t, bob, message.TypeMessage).(message.Chat)
	assert.Equal(t, "7", m.Group)

	select {
	case out := <-carol.In:
		if c, ok := out.(message.Chat); ok {
			t.Fatalf("carol has not joined group 7 but got %v", c)
		}
	case <-time.After(100 * time.Millisecond):
	}

	resp, err := http.Get(base + "/api/messages/global?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	var history access.Messages
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "hi", history.Messages[0].Content)

	cancel()

	assert.Eventually(t, func() bool { return len(getOnline(t, base)) == 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestUnknownUserRejected(t *testing.T) {

	config := *NewDefaultConfig()
	config.Fixture = "testdata/fixture.yaml"
	config.RequireKnownUser = true

	base, _, _ := serve(t, config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mallory := client(t, ctx, base, "mallory")
	e := await(t, mallory, message.TypeError).(message.Error)
	assert.Equal(t, message.CodeUnknownUser, e.Code)
	assert.Equal(t, []string{}, getOnline(t, base))
}

func TestTokenRequired(t *testing.T) {

	config := *NewDefaultConfig()
	config.Audience = "https://chat.example.org"
	config.Secret = "somesecret"

	base, _, _ := serve(t, config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now().Unix()
	bearer, err := permission.Sign(permission.NewToken(config.Audience, "alice", now-1, now-1, now+60), config.Secret)
	require.NoError(t, err)

	anon := client(t, ctx, base, "alice")
	e := await(t, anon, message.TypeError).(message.Error)
	assert.Equal(t, message.CodeInvalidToken, e.Code)

	r := reconws.New("alice").WithToken(bearer)
	go r.Reconnect(ctx, "ws"+base[len("http"):]+"/ws")
	assert.Equal(t, message.Registered{Identity: "alice"}, await(t, r, message.TypeRegistered))
}

func TestListenFailure(t *testing.T) {

	base, _, _ := serve(t, *NewDefaultConfig())

	var port int
	_, err := fmt.Sscanf(base, "http://localhost:%d", &port)
	require.NoError(t, err)

	config := *NewDefaultConfig()
	config.Listen = port

	assert.Error(t, Run(context.Background(), config))
}
