package reconws

import (
	"context"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/practable/teamchat/internal/crossbar"
	"github.com/practable/teamchat/internal/hub"
	"github.com/practable/teamchat/internal/message"
	"github.com/practable/teamchat/internal/scope"
	"github.com/practable/teamchat/internal/store"
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

// server lets a test drop every live connection while still accepting new ones
type server struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	hub    *hub.Hub
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	crossbar.Handler(ctx, s.hub, *crossbar.NewDefaultConfig())(w, r)
}

func (s *server) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(context.Background())
}

func startServer(t *testing.T) (*server, string) {

	ctx := context.Background()

	st := store.NewMemory()
	require.NoError(t, st.CreateGroup(ctx, store.Group{ID: "7"}))
	require.NoError(t, st.AddMember(ctx, "7", "a"))

	s := &server{hub: hub.New(*hub.NewDefaultConfig().WithStore(st).WithRateLimit(0))}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	t.Cleanup(func() {
		s.mu.Lock()
		s.cancel()
		s.mu.Unlock()
	})

	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

// await reads events until one of type want arrives
func await(t *testing.T, r *ReconWs, want message.Type) message.Outbound {
	timeout := time.After(2 * time.Second)
	for {
		select {
		case out := <-r.In:
			if out.OutboundType() == want {
				return out
			}
		case <-timeout:
			t.Fatalf("no %s event", want)
			return nil
		}
	}
}

func TestDialRejectsBadURL(t *testing.T) {

	r := New("a")
	ctx := context.Background()

	assert.Error(t, r.Dial(ctx, ""))
	assert.Error(t, r.Dial(ctx, "http://example.org"))
	assert.Error(t, r.Dial(ctx, "ws://user:pass@example.org"))
}

func TestReconnectRegistersAndRejoins(t *testing.T) {

	s, url := startServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New("a").WithRetry(RetryConfig{Factor: 2, Min: 10 * time.Millisecond, Max: 50 * time.Millisecond, Timeout: time.Second})

	go r.Reconnect(ctx, url)

	select {
	case <-r.Connected:
	case <-time.After(2 * time.Second):
		t.Fatal("did not connect")
	}

	assert.Equal(t, message.Registered{Identity: "a"}, await(t, r, message.TypeRegistered))
	assert.False(t, r.ConnectedAt().IsZero())

	r.Out <- message.JoinGroup{Group: "7"}

	typing, ok := await(t, r, message.TypeTyping).(message.Typing)
	require.True(t, ok)
	// global snapshot arrives on register, so skip to the group one
	for typing.Scope != scope.Group("7") {
		typing = await(t, r, message.TypeTyping).(message.Typing)
	}

	assert.Eventually(t, func() bool { return len(s.hub.Subscribers("7")) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"7"}, r.Groups())

	before := s.hub.Subscribers("7")

	s.dropAll()

	select {
	case <-r.Connected:
	case <-time.After(2 * time.Second):
		t.Fatal("did not reconnect")
	}

	assert.Eventually(t, func() bool {
		after := s.hub.Subscribers("7")
		return len(after) == 1 && after[0] != before[0]
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"a"}, s.hub.Online())

	r.Out <- message.SendMessage{Scope: scope.Group("7"), Content: "back again"}

	m, ok := await(t, r, message.TypeMessage).(message.Chat)
	require.True(t, ok)
	assert.Equal(t, "back again", m.Content)

	r.Out <- message.LeaveGroup{Group: "7"}
	assert.Eventually(t, func() bool { return len(r.Groups()) == 0 }, time.Second, 10*time.Millisecond)
}
