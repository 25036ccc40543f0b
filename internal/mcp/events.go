package mcp

import (
	"context"
	"sync"
)

// InitEventKind tags one lifecycle event emitted while the Manager brings
// its configured servers up.
type InitEventKind string

const (
	EventInitializationStarted InitEventKind = "initialization-started"
	EventServerInitialized     InitEventKind = "server-initialized"
	EventServerStatusUpdated   InitEventKind = "server-status-updated"
)

// InitEvent is one entry in the Manager's initialization progress stream.
type InitEvent struct {
	Kind      InitEventKind
	ServerID  string
	ToolCount int
	Status    string
	Err       error
}

// Initialize starts every configured server in parallel, regardless of its
// AutoStart flag, and returns a channel of progress events. A subset of
// servers failing to connect does not fail the call; InitEvent.Err carries
// the per-server error. The channel is closed once every server has
// reported either success or failure.
func (m *Manager) Initialize(ctx context.Context) <-chan InitEvent {
	events := make(chan InitEvent, len(m.serverConfigs())*2+1)
	events <- InitEvent{Kind: EventInitializationStarted}

	if m.config == nil || !m.config.Enabled {
		close(events)
		return events
	}

	var wg sync.WaitGroup
	for _, serverCfg := range m.config.Servers {
		wg.Add(1)
		go func(cfg *ServerConfig) {
			defer wg.Done()
			err := m.Connect(ctx, cfg.ID)
			if err != nil {
				events <- InitEvent{Kind: EventServerStatusUpdated, ServerID: cfg.ID, Status: "failed", Err: err}
				return
			}
			client, _ := m.Client(cfg.ID)
			toolCount := 0
			if client != nil {
				toolCount = len(client.Tools())
			}
			events <- InitEvent{Kind: EventServerInitialized, ServerID: cfg.ID, ToolCount: toolCount}
			events <- InitEvent{Kind: EventServerStatusUpdated, ServerID: cfg.ID, Status: "connected"}
		}(serverCfg)
	}

	go func() {
		wg.Wait()
		close(events)
	}()

	return events
}

func (m *Manager) serverConfigs() []*ServerConfig {
	if m.config == nil {
		return nil
	}
	return m.config.Servers
}
