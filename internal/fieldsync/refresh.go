package fieldsync

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"fieldsync/internal/model"
)

// RefreshReport summarizes a RefreshFromRemote call.
type RefreshReport struct {
	ServerID string `json:"server_id"`
	Linked   int    `json:"linked"`  // remote photos matched to local records
	Adopted  int    `json:"adopted"` // remote photos recorded without local content
}

// RefreshFromRemote reloads a work order from its remote row, found by
// server id or else by the local id an earlier insert stored with it.
// The server id is recorded locally and the remote photo slots are restored
// into the local fields: photos uploaded from this device are matched back
// to their records by URL, the others are adopted as remote-only records.
// Remote values win over local ones. Local photos the remote row lacks stay
// referenced and the status does not change.
func (s *WorkOrderStore) RefreshFromRemote(ctx context.Context, id string) (RefreshReport, error) {
	var report RefreshReport
	if s.remote == nil {
		return report, errors.New("no remote database configured")
	}
	if s.objects == nil {
		return report, errors.New("no object store configured")
	}

	order, err := s.Get(ctx, id)
	if err != nil {
		return report, err
	}
	row, err := s.findRemoteRow(ctx, order)
	if err != nil {
		return report, err
	}
	report.ServerID = fmt.Sprint(row["id"])

	payload, err := PayloadFromRow(row)
	if err != nil {
		return report, fmt.Errorf("reading remote work order %s: %w", report.ServerID, err)
	}

	byURL, err := s.uploadedByURL(ctx, order, report.ServerID)
	if err != nil {
		return report, err
	}
	r := &refresher{objects: s.objects, owner: report.ServerID, byURL: byURL, report: &report}

	fields := model.Fields{Values: mergeValues(order.Fields.Values, payload.Values)}
	if fields.Photos, err = r.slots(ctx, order.Fields.Photos, payload.Photos); err != nil {
		return report, err
	}
	if fields.Collections, err = r.collections(ctx, order.Fields.Collections, payload.Collections); err != nil {
		return report, err
	}

	if err := s.database.UpdateWorkOrderFields(ctx, id, fields, s.clock.Now()); err != nil {
		return report, fmt.Errorf("refreshing work order %s: %w", id, err)
	}
	if _, err := s.transition(ctx, "refresh from remote", id, Transition{
		To:       order.Status,
		ServerID: report.ServerID,
		Sticky:   true,
	}, allStatuses...); err != nil {
		return report, err
	}

	s.logger.Info("work order refreshed from remote", "id", id, "server_id", report.ServerID,
		"linked", report.Linked, "adopted", report.Adopted)
	return report, nil
}

func (s *WorkOrderStore) findRemoteRow(ctx context.Context, order *model.PendingWorkOrder) (Row, error) {
	var lookups []Row
	if order.ServerID != "" {
		lookups = append(lookups, Row{"id": order.ServerID})
	}
	lookups = append(lookups, Row{"local_id": order.ID})

	for _, filter := range lookups {
		rows, err := s.remote.Select(ctx, s.table, filter)
		if err != nil {
			return nil, NewError(KindOf(err), "refresh from remote", fmt.Errorf("selecting %s: %w", order.ID, err))
		}
		if len(rows) > 0 && rows[0]["id"] != nil {
			return rows[0], nil
		}
	}
	return nil, NewError(KindNotFound, "refresh from remote", fmt.Errorf("remote work order for %s: %w", order.ID, ErrNotFound))
}

// uploadedByURL indexes the uploaded records a work order may own or
// reference by their remote URL.
func (s *WorkOrderStore) uploadedByURL(ctx context.Context, order *model.PendingWorkOrder, serverID string) (map[string]*model.PhotoRecord, error) {
	byURL := make(map[string]*model.PhotoRecord)
	add := func(rec *model.PhotoRecord) {
		if rec != nil && rec.RemoteURL != "" {
			if _, ok := byURL[rec.RemoteURL]; !ok {
				byURL[rec.RemoteURL] = rec
			}
		}
	}

	resolved, err := s.objects.ResolveIDs(ctx, order.ID, order.Fields.PhotoIDs(), serverID)
	if err != nil {
		return nil, err
	}
	for _, r := range resolved {
		add(r.Record)
	}
	for _, owner := range []string{order.ID, order.ServerID, serverID} {
		if owner == "" {
			continue
		}
		recs, err := s.objects.GetByOwner(ctx, owner)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			add(rec)
		}
	}
	return byURL, nil
}

type refresher struct {
	objects *ObjectStore
	owner   string
	byURL   map[string]*model.PhotoRecord
	report  *RefreshReport
}

// slots returns local with every remote column folded into the matching
// field type: remote photos first in remote order, then the local-only ids.
func (r *refresher) slots(ctx context.Context, local map[string][]string, remote map[string][]model.RemotePhoto) (map[string][]string, error) {
	out := make(map[string][]string, len(local)+len(remote))
	fieldTypes := make(map[string]string, len(local))
	for slot, ids := range local {
		out[slot] = slices.Clone(ids)
		fieldTypes[RemoteFieldName(slot)] = slot
	}

	for _, column := range slices.Sorted(maps.Keys(remote)) {
		slot, ok := fieldTypes[column]
		if !ok {
			slot = strings.TrimPrefix(column, "fotos_")
		}

		var ids []string
		for i, photo := range remote[column] {
			id, err := r.localID(ctx, slot, i, photo)
			if err != nil {
				return nil, err
			}
			if id != "" && !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
		for _, id := range out[slot] {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
		out[slot] = ids
	}
	return out, nil
}

func (r *refresher) localID(ctx context.Context, fieldType string, index int, photo model.RemotePhoto) (string, error) {
	if photo.URL == "" {
		return "", nil
	}
	if rec, ok := r.byURL[photo.URL]; ok {
		r.report.Linked++
		return rec.ID, nil
	}
	rec, err := r.objects.AdoptRemote(ctx, r.owner, fieldType, index, photo)
	if err != nil {
		return "", err
	}
	r.byURL[photo.URL] = rec
	r.report.Adopted++
	return rec.ID, nil
}

// collections restores remote sub-records into local ones matched by id,
// or by position when the remote entry has none. Unmatched remote entries
// are appended.
func (r *refresher) collections(ctx context.Context, local map[string][]model.SubRecord, remote map[string][]model.RemoteSubRecord) (map[string][]model.SubRecord, error) {
	out := make(map[string][]model.SubRecord, len(local)+len(remote))
	for name, subs := range local {
		out[name] = slices.Clone(subs)
	}

	for _, name := range slices.Sorted(maps.Keys(remote)) {
		subs := out[name]
		for i, rsub := range remote[name] {
			pos := -1
			switch {
			case rsub.ID != "":
				pos = slices.IndexFunc(subs, func(s model.SubRecord) bool { return s.ID == rsub.ID })
			case i < len(subs) && subs[i].ID == "":
				pos = i
			}
			if pos < 0 {
				subs = append(subs, model.SubRecord{ID: rsub.ID})
				pos = len(subs) - 1
			}

			sub := subs[pos]
			sub.Values = mergeValues(sub.Values, rsub.Values)
			photos, err := r.slots(ctx, sub.Photos, rsub.Photos)
			if err != nil {
				return nil, err
			}
			sub.Photos = photos
			subs[pos] = sub
		}
		out[name] = subs
	}
	return out, nil
}
