package rfc822

import (
	"sort"

	"github.com/dhcgn/mail-merge/model"
)

// ThreadKey identifies the conversation env belongs to: the first
// References entry, else In-Reply-To, else its own Message-Id.
func ThreadKey(env Envelope) string {
	switch {
	case len(env.References) > 0:
		return env.References[0]
	case len(env.InReplyTo) > 0:
		return env.InReplyTo[0]
	}
	return env.MessageID
}

// Threads collapses envelopes into conversations, each represented by its
// newest message, newest first. limit <= 0 means no limit.
func Threads(envs []Envelope, limit int) []model.Thread {
	newest := make(map[string]Envelope)
	for _, env := range envs {
		key := ThreadKey(env)
		if key == "" {
			continue
		}
		if cur, ok := newest[key]; ok && !env.Date.After(cur.Date) {
			continue
		}
		newest[key] = env
	}

	out := make([]model.Thread, 0, len(newest))
	for key, env := range newest {
		out = append(out, model.Thread{
			ID:            key,
			Subject:       env.Subject,
			LastMessageAt: env.Date,
			LastMessageID: env.MessageID,
			References:    env.References,
			CC:            env.Cc,
			BCC:           env.Bcc,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
