package fieldsync

import (
	"fmt"
	"maps"

	"fieldsync/internal/model"
)

// MergePayload merges a local delta into the payload held remotely.
// Remote arrays are append-only: remote entries keep their order and delta
// entries are appended unless their URL is already present. Values in the
// delta override remote values unless they are nil. Collections are matched
// by sub-record id (by position when the id is empty); unknown sub-records
// are appended in delta order. Merging the same delta twice is a no-op.
func MergePayload(remote, delta model.Payload) model.Payload {
	return model.Payload{
		Values:      mergeValues(remote.Values, delta.Values),
		Photos:      mergeSlots(remote.Photos, delta.Photos),
		Collections: mergeCollections(remote.Collections, delta.Collections),
	}
}

func mergeValues(remote, delta map[string]any) map[string]any {
	out := make(map[string]any, len(remote)+len(delta))
	maps.Copy(out, remote)
	for k, v := range delta {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func mergeSlots(remote, delta map[string][]model.RemotePhoto) map[string][]model.RemotePhoto {
	out := make(map[string][]model.RemotePhoto, len(remote)+len(delta))
	for slot, photos := range remote {
		out[slot] = appendPhotos(nil, photos)
	}
	for slot, photos := range delta {
		out[slot] = appendPhotos(out[slot], photos)
	}
	return out
}

// appendPhotos appends the photos of add whose URL is not in dst yet.
// Entries without a URL are never appended.
func appendPhotos(dst, add []model.RemotePhoto) []model.RemotePhoto {
	seen := make(map[string]bool, len(dst))
	for _, p := range dst {
		seen[p.URL] = true
	}
	if dst == nil {
		dst = make([]model.RemotePhoto, 0, len(add))
	}
	for _, p := range add {
		if p.URL == "" || seen[p.URL] {
			continue
		}
		seen[p.URL] = true
		dst = append(dst, p)
	}
	return dst
}

func mergeCollections(remote, delta map[string][]model.RemoteSubRecord) map[string][]model.RemoteSubRecord {
	out := make(map[string][]model.RemoteSubRecord, len(remote)+len(delta))
	for name, subs := range remote {
		out[name] = mergeSubRecords(subs, nil)
	}
	for name, subs := range delta {
		out[name] = mergeSubRecords(out[name], subs)
	}
	return out
}

func mergeSubRecords(remote, delta []model.RemoteSubRecord) []model.RemoteSubRecord {
	out := make([]model.RemoteSubRecord, 0, len(remote)+len(delta))
	pos := make(map[string]int, len(remote))
	for i, sub := range remote {
		pos[subRecordKey(sub, i)] = len(out)
		out = append(out, model.RemoteSubRecord{
			ID:     sub.ID,
			Values: mergeValues(sub.Values, nil),
			Photos: mergeSlots(sub.Photos, nil),
		})
	}
	for i, sub := range delta {
		key := subRecordKey(sub, i)
		if at, ok := pos[key]; ok {
			out[at].Values = mergeValues(out[at].Values, sub.Values)
			out[at].Photos = mergeSlots(out[at].Photos, sub.Photos)
			continue
		}
		pos[key] = len(out)
		out = append(out, model.RemoteSubRecord{
			ID:     sub.ID,
			Values: mergeValues(nil, sub.Values),
			Photos: mergeSlots(nil, sub.Photos),
		})
	}
	return out
}

func subRecordKey(sub model.RemoteSubRecord, i int) string {
	if sub.ID != "" {
		return "id:" + sub.ID
	}
	return fmt.Sprintf("pos:%d", i)
}
