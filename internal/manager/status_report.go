package manager

import (
	"sort"

	"llamactx/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, CurrentModel: m.cur, Err: m.err}
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	type counts struct{ sessions, queued, inflight int }
	per := map[string]*counts{}
	open := 0
	for _, item := range m.sessions.Items() {
		s := item.Value()
		if s.closed.Load() {
			continue
		}
		open++
		c := per[s.ModelID]
		if c == nil {
			c = &counts{}
			per[s.ModelID] = c
		}
		c.sessions++
		c.queued += max(len(s.queueCh)-len(s.genCh), 0)
		c.inflight += len(s.genCh)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	resp := types.StatusResponse{
		BudgetMB:       m.budgetMB,
		UsedMB:         m.usedEstMB,
		MarginMB:       m.marginMB,
		Error:          m.err,
		State:          string(m.state),
		UptimeSeconds:  int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
		EvictionsTotal: m.evictionsTotal,
		LoadsTotal:     m.loadsTotal,
		SessionsOpen:   open,
	}
	resp.Instances = make([]types.InstanceStatus, 0, len(m.instances))
	for _, inst := range m.instances {
		if inst.State == StateLoading {
			resp.WarmupsInProgress++
		}
		if inst.State == StateDraining {
			resp.DrainingCount++
		}
		c := per[inst.ID]
		if c == nil {
			c = &counts{}
		}
		resp.Instances = append(resp.Instances, types.InstanceStatus{
			ModelID:       inst.ID,
			Backend:       inst.Backend,
			State:         string(inst.State),
			LastUsed:      inst.LastUsed.Unix(),
			EstVRAMMB:     inst.EstVRAMMB,
			Sessions:      c.sessions,
			QueueLen:      c.queued,
			Inflight:      c.inflight,
			MaxQueueDepth: m.maxQueueDepth,
		})
	}
	sort.Slice(resp.Instances, func(i, j int) bool { return resp.Instances[i].ModelID < resp.Instances[j].ModelID })
	return resp
}
