package fieldsync

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// PhotoID formats the id of a captured photo as
// {ownerID}_{fieldType}_{index}_{unixMillis}.
func PhotoID(ownerID, fieldType string, index int, at time.Time) string {
	return fmt.Sprintf("%s_%s_%d_%d", ownerID, fieldType, index, at.UnixMilli())
}

// photoIDParts holds what can be recovered from a photo id without knowing
// where the owner id ends and the field type begins.
type photoIDParts struct {
	prefix string // {ownerID}_{fieldType}
	index  int
	millis int64
}

// slotCandidate is one way of splitting a prefix into owner and field type.
type slotCandidate struct {
	ownerID   string
	fieldType string
}

func parsePhotoID(id string) (photoIDParts, bool) {
	last := strings.LastIndexByte(id, '_')
	if last <= 0 {
		return photoIDParts{}, false
	}
	millis, err := strconv.ParseInt(id[last+1:], 10, 64)
	if err != nil {
		return photoIDParts{}, false
	}

	rest := id[:last]
	sep := strings.LastIndexByte(rest, '_')
	if sep <= 0 {
		return photoIDParts{}, false
	}
	index, err := strconv.Atoi(rest[sep+1:])
	if err != nil || index < 0 {
		return photoIDParts{}, false
	}

	return photoIDParts{prefix: rest[:sep], index: index, millis: millis}, true
}

// candidates lists every owner/field-type split of the prefix, shortest
// field type first. Both halves are non-empty.
func (p photoIDParts) candidates() []slotCandidate {
	var out []slotCandidate
	for i := len(p.prefix) - 1; i > 0; i-- {
		if p.prefix[i] != '_' || i == len(p.prefix)-1 {
			continue
		}
		out = append(out, slotCandidate{ownerID: p.prefix[:i], fieldType: p.prefix[i+1:]})
	}
	return out
}

// LocalID formats the id of a work order that has not been saved remotely:
// local_{unixMillis}_{token}, where token is the first nine alphanumeric
// characters of the generated id.
func LocalID(at time.Time, idgen IDGenerator) string {
	return fmt.Sprintf("local_%d_%s", at.UnixMilli(), shortToken(idgen.New(), 9))
}

// IsLocalID reports whether id was produced by LocalID.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, "local_")
}

func shortToken(raw string, n int) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		b.WriteRune(r)
		if b.Len() == n {
			break
		}
	}
	return b.String()
}
