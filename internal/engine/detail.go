package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/funnelworks/inbox-engine/internal/model"
)

const (
	// dedupWindow is the maximum timestamp distance for correlating an
	// optimistic entry with its server-confirmed twin. The server does
	// not echo the client temp id back, so correlation is heuristic:
	// same type, same trimmed text, timestamps within this window.
	dedupWindow = 60 * time.Second

	// failureThreshold is how long an unconfirmed optimistic entry may
	// age before it is flagged as failed. Evaluated lazily on the next
	// detail merge rather than by a dedicated timer.
	failureThreshold = 15 * time.Second
)

// mergeStats reports what a message merge did, for metrics and events.
type mergeStats struct {
	deduped   int
	failedNow []model.Message
	appended  int
}

func matchesOptimistic(opt, server *model.Message) bool {
	if opt.Type != server.Type {
		return false
	}
	if strings.TrimSpace(opt.Text) != strings.TrimSpace(server.Text) {
		return false
	}
	d := opt.Timestamp.Sub(server.Timestamp)
	if d < 0 {
		d = -d
	}
	return d <= dedupWindow
}

// mergeMessages reconciles a conversation's local message history with the
// server's authoritative list.
//
// Optimistic entries matched by a server message are dropped in favor of
// the authoritative record; unmatched ones older than failureThreshold are
// flagged failed but kept visible. For messages known on both sides only
// the read receipt is copied from the server. Server messages not yet
// known locally are appended, and the result is sorted by timestamp.
func mergeMessages(local, server []model.Message, now time.Time) ([]model.Message, mergeStats) {
	var stats mergeStats

	serverByID := make(map[string]*model.Message, len(server))
	for i := range server {
		serverByID[server[i].ID] = &server[i]
	}
	localIDs := make(map[string]bool, len(local))
	for i := range local {
		localIDs[local[i].ID] = true
	}

	newFromServer := make([]model.Message, 0, len(server))
	for i := range server {
		if !localIDs[server[i].ID] {
			newFromServer = append(newFromServer, server[i])
		}
	}

	merged := make([]model.Message, 0, len(local)+len(newFromServer))
	for i := range local {
		msg := local[i]
		if msg.Metadata.IsOptimistic {
			if serverMatch(&msg, server) {
				stats.deduped++
				continue
			}
			if !msg.Metadata.FailedToSend && now.Sub(msg.Metadata.OptimisticAddedAt) > failureThreshold {
				msg.Metadata.FailedToSend = true
				stats.failedNow = append(stats.failedNow, msg)
			}
		}
		if sm, ok := serverByID[msg.ID]; ok {
			msg.IsRead = sm.IsRead
		}
		merged = append(merged, msg)
	}

	merged = append(merged, newFromServer...)
	stats.appended = len(newFromServer)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged, stats
}

func serverMatch(opt *model.Message, server []model.Message) bool {
	for i := range server {
		if matchesOptimistic(opt, &server[i]) {
			return true
		}
	}
	return false
}

// mergeDetail folds a detail-poll snapshot into the selected conversation.
//
// The detail poll is the authority for the selected conversation's message
// history and summary fields, with one exception: unread counters keep
// their pre-merge values, since only the list poll and explicit read
// actions may change those.
func mergeDetail(st *state, server *model.Conversation, now time.Time) mergeStats {
	prev, ok := st.conversations[server.ID]
	if !ok {
		// The conversation fell out of the list set (filter churn)
		// while still selected; reinstate it from the detail snapshot.
		c := server.Clone()
		c.Messages, _ = mergeMessages(nil, server.Messages, now)
		st.replace(c)
		st.order = append(st.order, c.ID)
		return mergeStats{appended: len(c.Messages)}
	}

	next := prev.Clone()
	merged, stats := mergeMessages(prev.Messages, server.Messages, now)
	next.Messages = merged

	next.LastMessage = nil
	if server.LastMessage != nil {
		lm := *server.LastMessage
		next.LastMessage = &lm
	}
	next.LastMessageAt = server.LastMessageAt
	next.MessageCount = server.MessageCount
	next.AdminAvatar = server.AdminAvatar
	next.ControlledBy = server.ControlledBy
	next.Status = server.Status
	if !server.UpdatedAt.IsZero() {
		next.UpdatedAt = server.UpdatedAt
	}
	if len(server.Meta) > 0 {
		next.Meta = make(map[string]string, len(server.Meta))
		for k, v := range server.Meta {
			next.Meta[k] = v
		}
	}

	next.UnreadCountAdmin = prev.UnreadCountAdmin
	next.UnreadCountUser = prev.UnreadCountUser

	st.replace(next)
	return stats
}
