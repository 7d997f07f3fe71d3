package fieldsync

import (
	"maps"
	"slices"
	"strings"

	"fieldsync/internal/model"
)

// RemoteFieldName maps a photo field type to its column in the remote
// document: documents ("doc_*") keep their name, photo slots get a
// "fotos_" prefix.
func RemoteFieldName(fieldType string) string {
	if strings.HasPrefix(fieldType, "doc_") || strings.HasPrefix(fieldType, "fotos_") {
		return fieldType
	}
	return "fotos_" + fieldType
}

// BuildPayload converts work order fields into the remote document,
// replacing photo ids by their uploaded representation. Slot order is kept.
// Ids that did not resolve to an uploaded record are returned as missing,
// each once, in slot order.
func BuildPayload(fields model.Fields, resolved []Resolution) (model.Payload, []string) {
	byID := make(map[string]*model.PhotoRecord, len(resolved))
	for _, r := range resolved {
		if r.Record != nil {
			byID[r.ID] = r.Record
		}
	}

	b := payloadBuilder{byID: byID, flagged: make(map[string]bool)}
	payload := model.Payload{
		Values:      maps.Clone(fields.Values),
		Photos:      b.slots(fields.Photos),
		Collections: make(map[string][]model.RemoteSubRecord, len(fields.Collections)),
	}
	if payload.Values == nil {
		payload.Values = map[string]any{}
	}

	for _, name := range slices.Sorted(maps.Keys(fields.Collections)) {
		subs := fields.Collections[name]
		out := make([]model.RemoteSubRecord, 0, len(subs))
		for _, sub := range subs {
			out = append(out, model.RemoteSubRecord{
				ID:     sub.ID,
				Values: maps.Clone(sub.Values),
				Photos: b.slots(sub.Photos),
			})
		}
		payload.Collections[name] = out
	}
	return payload, b.missing
}

type payloadBuilder struct {
	byID    map[string]*model.PhotoRecord
	missing []string
	flagged map[string]bool
}

func (b *payloadBuilder) slots(photos map[string][]string) map[string][]model.RemotePhoto {
	out := make(map[string][]model.RemotePhoto, len(photos))
	for _, slot := range slices.Sorted(maps.Keys(photos)) {
		ids := photos[slot]
		list := make([]model.RemotePhoto, 0, len(ids))
		for _, id := range ids {
			rec := b.byID[id]
			if rec == nil || rec.NeedsUpload() {
				if !b.flagged[id] {
					b.flagged[id] = true
					b.missing = append(b.missing, id)
				}
				continue
			}
			list = append(list, model.RemotePhoto{
				URL:       rec.RemoteURL,
				Latitude:  rec.Latitude,
				Longitude: rec.Longitude,
				UTMX:      rec.UTMX,
				UTMY:      rec.UTMY,
				UTMZone:   rec.UTMZone,
			})
		}
		out[RemoteFieldName(slot)] = list
	}
	return out
}
