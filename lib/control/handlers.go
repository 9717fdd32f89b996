package control

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-i2p/logger"

	"github.com/conngate/conngate/lib/group"
	"github.com/conngate/conngate/lib/registry"
)

// groupInfo is the list form of a group. Limits render as null (unset),
// 0 (unlimited) or a positive bound, mirroring the attribute tri-state.
type groupInfo struct {
	Identifier         string `json:"identifier"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	MaxSessions        *int   `json:"max_sessions"`
	MaxSessionsPerUser *int   `json:"max_sessions_per_user"`
	ActiveSessions     int    `json:"active_sessions"`
}

// groupDetail adds the hierarchy and per-user breakdown.
type groupDetail struct {
	groupInfo
	UserCounts       map[string]int `json:"user_counts"`
	ChildGroups      []string       `json:"child_groups"`
	ChildConnections []string       `json:"child_connections"`
}

type connectionInfo struct {
	Identifier         string `json:"identifier"`
	Name               string `json:"name"`
	MaxSessions        *int   `json:"max_sessions"`
	MaxSessionsPerUser *int   `json:"max_sessions_per_user"`
	ActiveSessions     int    `json:"active_sessions"`
}

type connectionDetail struct {
	connectionInfo
	UserCounts map[string]int `json:"user_counts"`
}

type sessionInfo struct {
	ID         string    `json:"id"`
	User       string    `json:"user"`
	Connection string    `json:"connection"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	Duration   string    `json:"duration"`
}

type statusResponse struct {
	Service       string           `json:"service"`
	StartedAt     time.Time        `json:"started_at"`
	Uptime        string           `json:"uptime"`
	Groups        int              `json:"groups"`
	Connections   int              `json:"connections"`
	LiveSessions  int              `json:"live_sessions"`
	TrackedScopes int              `json:"tracked_scopes"`
	TotalAcquired uint64           `json:"total_acquired"`
	TotalRejected uint64           `json:"total_rejected"`
	TotalReleased uint64           `json:"total_released"`
	Defaults      defaultsResponse `json:"defaults"`
}

// defaultsResponse echoes the effective fallback limits; zero means
// unlimited, same as the resolved form.
type defaultsResponse struct {
	GroupMaxSessions             int `json:"group_max_sessions"`
	GroupMaxSessionsPerUser      int `json:"group_max_sessions_per_user"`
	ConnectionMaxSessions        int `json:"connection_max_sessions"`
	ConnectionMaxSessionsPerUser int `json:"connection_max_sessions_per_user"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	stats := s.gateway.Stats()
	writeJSON(w, http.StatusOK, statusResponse{
		Service:       "conngate",
		StartedAt:     s.startTime.UTC(),
		Uptime:        time.Since(s.startTime).Round(time.Second).String(),
		Groups:        len(s.directory.GroupIdentifiers()),
		Connections:   len(s.directory.ConnectionIdentifiers()),
		LiveSessions:  stats.LiveSessions,
		TrackedScopes: stats.TrackedScopes,
		TotalAcquired: stats.TotalAcquired,
		TotalRejected: stats.TotalRejected,
		TotalReleased: stats.TotalReleased,
		Defaults: defaultsResponse{
			GroupMaxSessions:             s.opts.Defaults.GroupMaxSessions,
			GroupMaxSessionsPerUser:      s.opts.Defaults.GroupMaxSessionsPerUser,
			ConnectionMaxSessions:        s.opts.Defaults.ConnectionMaxSessions,
			ConnectionMaxSessionsPerUser: s.opts.Defaults.ConnectionMaxSessionsPerUser,
		},
	})
}

func (s *Server) handleGroups(w http.ResponseWriter, _ *http.Request) {
	ids := s.directory.GroupIdentifiers()
	out := make([]groupInfo, 0, len(ids))
	for _, id := range ids {
		g, ok := s.directory.Group(id)
		if !ok {
			continue
		}
		out = append(out, s.groupToInfo(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGroupDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identifier")
	g, ok := s.directory.Group(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no such group")
		return
	}
	writeJSON(w, http.StatusOK, groupDetail{
		groupInfo:        s.groupToInfo(g),
		UserCounts:       s.gateway.UserCounts(id),
		ChildGroups:      g.ChildGroups(),
		ChildConnections: g.ChildConnections(),
	})
}

func (s *Server) handleConnections(w http.ResponseWriter, _ *http.Request) {
	ids := s.directory.ConnectionIdentifiers()
	out := make([]connectionInfo, 0, len(ids))
	for _, id := range ids {
		c, ok := s.directory.Connection(id)
		if !ok {
			continue
		}
		out = append(out, s.connectionToInfo(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConnectionDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identifier")
	c, ok := s.directory.Connection(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no such connection")
		return
	}
	writeJSON(w, http.StatusOK, connectionDetail{
		connectionInfo: s.connectionToInfo(c),
		UserCounts:     s.gateway.UserCounts(id),
	})
}

// handleScopeSessions serves both the group and connection session
// listings; the registry indexes live sessions by scope identifier either
// way.
func (s *Server) handleScopeSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identifier")
	if _, ok := s.directory.Group(id); !ok {
		if _, ok := s.directory.Connection(id); !ok {
			writeError(w, http.StatusNotFound, "no such group or connection")
			return
		}
	}
	writeJSON(w, http.StatusOK, sessionsToInfo(s.gateway.SessionsFor(id)))
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sessionsToInfo(s.gateway.Sessions()))
}

func (s *Server) handleKillSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.gateway.Kill(id) {
		writeError(w, http.StatusNotFound, "no such session")
		return
	}
	log.WithFields(logger.Fields{
		"at":      "(Server).handleKillSession",
		"session": id,
		"remote":  r.RemoteAddr,
	}).Info("session killed via control API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "killed", "id": id})
}

func (s *Server) groupToInfo(g *group.Group) groupInfo {
	limits := g.ConcurrencyLimits()
	return groupInfo{
		Identifier:         g.Identifier(),
		Name:               g.Name(),
		Type:               g.Type().String(),
		MaxSessions:        limitPtr(limits.MaxSessions),
		MaxSessionsPerUser: limitPtr(limits.MaxSessionsPerUser),
		ActiveSessions:     s.gateway.ActiveSessionCount(g.Identifier()),
	}
}

func (s *Server) connectionToInfo(c *group.Connection) connectionInfo {
	limits := c.ConcurrencyLimits()
	return connectionInfo{
		Identifier:         c.Identifier(),
		Name:               c.Name(),
		MaxSessions:        limitPtr(limits.MaxSessions),
		MaxSessionsPerUser: limitPtr(limits.MaxSessionsPerUser),
		ActiveSessions:     s.gateway.ActiveSessionCount(c.Identifier()),
	}
}

func sessionsToInfo(sessions []registry.Session) []sessionInfo {
	out := make([]sessionInfo, len(sessions))
	for i, sess := range sessions {
		out[i] = sessionInfo{
			ID:         sess.ID,
			User:       sess.User,
			Connection: sess.ConnectionID,
			RemoteAddr: sess.RemoteAddr,
			StartedAt:  sess.StartedAt.UTC(),
			Duration:   time.Since(sess.StartedAt).Round(time.Second).String(),
		}
	}
	return out
}

// limitPtr renders a tri-state limit for JSON: nil unset, 0 unlimited,
// otherwise the bound.
func limitPtr(l group.Limit) *int {
	if !l.Defined() {
		return nil
	}
	v := l.Resolve(0)
	return &v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("failed to encode control response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
