package access

import (
	"github.com/practable/teamchat/internal/hub"
	"github.com/practable/teamchat/internal/scope"
	"github.com/practable/teamchat/internal/store"
)

// Online is the response to GET /api/online
type Online struct {
	Identities []string `json:"identities"`
}

// Typing is the response to the typing snapshot endpoints
type Typing struct {
	Scope      scope.Scope `json:"scope"`
	Identities []string    `json:"identities"`
}

// Process describes the server process
type Process struct {
	PID           int32   `json:"pid"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float32 `json:"memoryPercent"`
	RSS           uint64  `json:"rss"`
}

// Stats is the response to GET /api/stats
type Stats struct {
	Hub     hub.Report `json:"hub"`
	Process *Process   `json:"process,omitempty"`
}

// Messages is the response to the history endpoints
type Messages struct {
	Scope    scope.Scope     `json:"scope"`
	Messages []store.Message `json:"messages"`
}
