package fieldsync

import (
	"slices"
	"testing"
	"time"
)

type fixedIDs string

func (f fixedIDs) New() string { return string(f) }

func TestPhotoID(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	if got, want := PhotoID("local_1_ab", "doc_apr", 2, at), "local_1_ab_doc_apr_2_1705314600000"; got != want {
		t.Errorf("PhotoID() = %q, want %q", got, want)
	}
}

func TestParsePhotoID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id         string
		ok         bool
		prefix     string
		index      int
		millis     int64
		candidates []slotCandidate
	}{
		{
			id: "srv_5_antes_3_1705314600000", ok: true, prefix: "srv_5_antes", index: 3, millis: 1705314600000,
			candidates: []slotCandidate{{"srv_5", "antes"}, {"srv", "5_antes"}},
		},
		{
			id: "wo_doc_apr_0_17", ok: true, prefix: "wo_doc_apr", index: 0, millis: 17,
			candidates: []slotCandidate{{"wo_doc", "apr"}, {"wo", "doc_apr"}},
		},
		{id: "plain", ok: false},
		{id: "a_b_x_1", ok: false},
		{id: "a_b_1_x", ok: false},
		{id: "_1_2", ok: false},
		{id: "a_-1_2", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()
			parts, ok := parsePhotoID(tt.id)
			if ok != tt.ok {
				t.Fatalf("parsePhotoID(%q) ok = %v, want %v", tt.id, ok, tt.ok)
			}
			if !ok {
				return
			}
			if parts.prefix != tt.prefix || parts.index != tt.index || parts.millis != tt.millis {
				t.Errorf("parsePhotoID(%q) = %+v", tt.id, parts)
			}
			if got := parts.candidates(); !slices.Equal(got, tt.candidates) {
				t.Errorf("candidates() = %v, want %v", got, tt.candidates)
			}
		})
	}
}

func TestLocalID(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "3F2504E0-4F89-11D3-9A0C-0305E82C3301", want: "local_1705314600000_3f2504e04"},
		{raw: "id-1", want: "local_1705314600000_id1"},
	}
	for _, tt := range tests {
		got := LocalID(at, fixedIDs(tt.raw))
		if got != tt.want {
			t.Errorf("LocalID(%q) = %q, want %q", tt.raw, got, tt.want)
		}
		if !IsLocalID(got) {
			t.Errorf("IsLocalID(%q) = false", got)
		}
	}

	if IsLocalID("srv_123") {
		t.Error("IsLocalID(srv_123) = true")
	}
}
