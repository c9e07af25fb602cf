package store

import "log/slog"

// mergeParticipants reconciles the stored participant list with an incoming
// one: entries missing from next are dropped, entries in next are upserted by
// id, and fields of an existing entry that next does not carry survive.
// Existing order is kept and new entries are appended.
func mergeParticipants(log *slog.Logger, recordID string, current, next []any) []any {
	incoming := make(map[string]map[string]any, len(next))
	order := make([]string, 0, len(next))
	for _, raw := range next {
		p, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, _ := p[fieldID].(string)
		if id == "" {
			continue
		}
		if _, dup := incoming[id]; !dup {
			order = append(order, id)
		}
		incoming[id] = p
	}

	out := make([]any, 0, len(order))
	seen := make(map[string]bool, len(order))
	var removed []string
	for _, raw := range current {
		p, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, _ := p[fieldID].(string)
		patch, keep := incoming[id]
		if !keep {
			removed = append(removed, id)
			continue
		}
		merged := make(map[string]any, len(p)+len(patch))
		for k, v := range p {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		out = append(out, merged)
		seen[id] = true
	}

	var added []string
	for _, id := range order {
		if seen[id] {
			continue
		}
		out = append(out, incoming[id])
		added = append(added, id)
	}

	if len(added) > 0 || len(removed) > 0 {
		log.Info("participants changed",
			"record", recordID,
			"added", added,
			"removed", removed,
			"count", len(out))
	}
	return out
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}
