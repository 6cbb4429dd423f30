package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/campaign"
)

// campaignsEvent is the SSE payload for one poll result.
type campaignsEvent struct {
	Channel   campaign.Channel    `json:"channel"`
	Campaigns []campaign.Campaign `json:"campaigns"`
	Finished  []campaign.Campaign `json:"finished,omitempty"`
	Error     string              `json:"error,omitempty"`
	At        time.Time           `json:"at"`
}

// events streams campaign poll updates. Each connected client holds one
// feed subscription, released when the client goes away.
func (h *handlers) events(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
	c.Writer.Flush()

	if h.deps.Feed == nil {
		return
	}
	updates, unsubscribe := h.deps.Feed.Subscribe()
	defer unsubscribe()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(h.deps.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case u, ok := <-updates:
			if !ok {
				return
			}
			evt := campaignsEvent{
				Channel:   u.Channel,
				Campaigns: u.Campaigns,
				Finished:  u.Finished,
				At:        u.At,
			}
			if u.Err != nil {
				evt.Error = u.Err.Error()
			}
			writeSSE(c.Writer, "campaigns", evt)
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
