package engine

import (
	"sort"

	"github.com/funnelworks/inbox-engine/internal/model"
)

// groupConversations folds the ordered conversation records into display
// cards, one per end-user identity. Cards appear in the order their first
// member appears in the order key; the grouping itself never re-sorts.
func groupConversations(convs []*model.Conversation) []model.GroupedConversation {
	idx := make(map[string]int)
	groups := make([]model.GroupedConversation, 0, len(convs))

	for _, c := range convs {
		key := c.GroupKey()
		i, ok := idx[key]
		if !ok {
			i = len(groups)
			idx[key] = i
			groups = append(groups, model.GroupedConversation{GroupKey: key})
		}
		g := &groups[i]

		g.ConversationIDs = append(g.ConversationIDs, c.ID)
		g.ConversationCount++
		g.MessageCount += c.MessageCount
		g.UnreadCountAdmin += c.UnreadCountAdmin
		if g.LastMessageAt.IsZero() || c.LastMessageAt.After(g.LastMessageAt) {
			g.LastMessageAt = c.LastMessageAt
			g.LastMessage = c.LastMessage
		}
		g.Typing.User = g.Typing.User || c.Typing.User
		g.Typing.Admin = g.Typing.Admin || c.Typing.Admin

		if g.Primary == nil || betterPrimary(g.Primary, c) {
			g.Primary = c
		}
	}
	return groups
}

// betterPrimary reports whether cand should replace cur as a group's
// representative record: an open conversation beats a non-open one, ties
// go to the most recently updated.
func betterPrimary(cur, cand *model.Conversation) bool {
	curOpen := cur.Status == model.StatusOpen
	candOpen := cand.Status == model.StatusOpen
	if curOpen != candOpen {
		return candOpen
	}
	return cand.UpdatedAt.After(cur.UpdatedAt)
}

// sortedOrderKey recomputes the order key from scratch: grouped cards
// ordered by aggregate last activity, each group's primary record first.
// Called only on explicit sort change or initial load, never per poll.
func sortedOrderKey(convs []*model.Conversation, dir model.SortDirection) []string {
	groups := groupConversations(convs)

	sort.SliceStable(groups, func(i, j int) bool {
		if dir == model.SortOldestFirst {
			return groups[i].LastMessageAt.Before(groups[j].LastMessageAt)
		}
		return groups[i].LastMessageAt.After(groups[j].LastMessageAt)
	})

	order := make([]string, 0, len(convs))
	for _, g := range groups {
		order = append(order, g.Primary.ID)
		for _, id := range g.ConversationIDs {
			if id != g.Primary.ID {
				order = append(order, id)
			}
		}
	}
	return order
}
