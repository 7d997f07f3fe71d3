package fieldsync_test

import (
	"reflect"
	"slices"
	"testing"

	"fieldsync/internal/fieldsync"
	"fieldsync/internal/model"
)

func TestMergePayload_Photos(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		remote []string
		delta  []string
		want   []string
	}{
		{name: "append new", remote: []string{"u1", "u2", "u3"}, delta: []string{"u4"}, want: []string{"u1", "u2", "u3", "u4"}},
		{name: "delta repeats remote", remote: []string{"u1", "u2", "u3"}, delta: []string{"u1", "u2", "u3", "u4"}, want: []string{"u1", "u2", "u3", "u4"}},
		{name: "delta reordered", remote: []string{"u1", "u2"}, delta: []string{"u3", "u2", "u1"}, want: []string{"u1", "u2", "u3"}},
		{name: "empty remote", delta: []string{"u1", "u1"}, want: []string{"u1"}},
		{name: "empty delta keeps remote", remote: []string{"u1"}, want: []string{"u1"}},
		{name: "entries without url skipped", remote: []string{"u1"}, delta: []string{"", "u2"}, want: []string{"u1", "u2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			remote := model.Payload{Photos: map[string][]model.RemotePhoto{"fotos_antes": remotePhotos(tt.remote...)}}
			delta := model.Payload{Photos: map[string][]model.RemotePhoto{"fotos_antes": remotePhotos(tt.delta...)}}

			got := fieldsync.MergePayload(remote, delta)
			if g := urls(got.Photos["fotos_antes"]); !slices.Equal(g, tt.want) {
				t.Errorf("fotos_antes = %v, want %v", g, tt.want)
			}

			again := fieldsync.MergePayload(got, delta)
			if !reflect.DeepEqual(again, got) {
				t.Errorf("second merge changed the payload: %v -> %v", got, again)
			}
		})
	}
}

func TestMergePayload_NewSlotAndValues(t *testing.T) {
	t.Parallel()

	remote := model.Payload{
		Values: map[string]any{"address": "Rua A", "crew": "north"},
		Photos: map[string][]model.RemotePhoto{"fotos_antes": remotePhotos("u1")},
	}
	delta := model.Payload{
		Values: map[string]any{"address": "Rua B", "crew": nil, "notes": "ok"},
		Photos: map[string][]model.RemotePhoto{"doc_apr": remotePhotos("d1")},
	}

	got := fieldsync.MergePayload(remote, delta)
	want := map[string]any{"address": "Rua B", "crew": "north", "notes": "ok"}
	if !reflect.DeepEqual(got.Values, want) {
		t.Errorf("Values = %v, want %v", got.Values, want)
	}
	if g := urls(got.Photos["fotos_antes"]); !slices.Equal(g, []string{"u1"}) {
		t.Errorf("fotos_antes = %v", g)
	}
	if g := urls(got.Photos["doc_apr"]); !slices.Equal(g, []string{"d1"}) {
		t.Errorf("doc_apr = %v", g)
	}

	// The inputs are not modified.
	if len(remote.Photos) != 1 || remote.Values["address"] != "Rua A" {
		t.Errorf("remote payload modified: %+v", remote)
	}
}

func TestMergePayload_Collections(t *testing.T) {
	t.Parallel()

	remote := model.Payload{Collections: map[string][]model.RemoteSubRecord{
		"postes": {
			{ID: "p1", Values: map[string]any{"height": "9m"}, Photos: map[string][]model.RemotePhoto{"fotos_poste": remotePhotos("a")}},
			{ID: "p2", Photos: map[string][]model.RemotePhoto{"fotos_poste": remotePhotos("b")}},
		},
	}}
	delta := model.Payload{Collections: map[string][]model.RemoteSubRecord{
		"postes": {
			{ID: "p2", Photos: map[string][]model.RemotePhoto{"fotos_poste": remotePhotos("b", "c")}},
			{ID: "p3", Values: map[string]any{"height": "12m"}},
			{ID: "p1", Values: map[string]any{"height": "10m"}},
		},
	}}

	got := fieldsync.MergePayload(remote, delta)
	postes := got.Collections["postes"]
	var ids []string
	for _, p := range postes {
		ids = append(ids, p.ID)
	}
	if !slices.Equal(ids, []string{"p1", "p2", "p3"}) {
		t.Fatalf("postes order = %v, want [p1 p2 p3]", ids)
	}
	if postes[0].Values["height"] != "10m" {
		t.Errorf("p1 height = %v, want 10m", postes[0].Values["height"])
	}
	if g := urls(postes[0].Photos["fotos_poste"]); !slices.Equal(g, []string{"a"}) {
		t.Errorf("p1 photos = %v", g)
	}
	if g := urls(postes[1].Photos["fotos_poste"]); !slices.Equal(g, []string{"b", "c"}) {
		t.Errorf("p2 photos = %v, want [b c]", g)
	}

	if again := fieldsync.MergePayload(got, delta); !reflect.DeepEqual(again, got) {
		t.Error("second merge changed collections")
	}
}

func TestMergePayload_CollectionsByPosition(t *testing.T) {
	t.Parallel()

	remote := model.Payload{Collections: map[string][]model.RemoteSubRecord{
		"postes": {{Photos: map[string][]model.RemotePhoto{"fotos_poste": remotePhotos("a")}}},
	}}
	delta := model.Payload{Collections: map[string][]model.RemoteSubRecord{
		"postes": {
			{Photos: map[string][]model.RemotePhoto{"fotos_poste": remotePhotos("a", "b")}},
			{Photos: map[string][]model.RemotePhoto{"fotos_poste": remotePhotos("c")}},
		},
	}}

	got := fieldsync.MergePayload(remote, delta).Collections["postes"]
	if len(got) != 2 {
		t.Fatalf("postes has %d entries, want 2", len(got))
	}
	if g := urls(got[0].Photos["fotos_poste"]); !slices.Equal(g, []string{"a", "b"}) {
		t.Errorf("first poste photos = %v, want [a b]", g)
	}
	if g := urls(got[1].Photos["fotos_poste"]); !slices.Equal(g, []string{"c"}) {
		t.Errorf("second poste photos = %v, want [c]", g)
	}
}
