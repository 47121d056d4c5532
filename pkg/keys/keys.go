// Package keys derives stable identity strings for diagnostics records.
//
// Keys are namespaced by their parent target where the same leaf name can
// recur under different targets. Records with no server-assigned identity are
// keyed by a hash of an immutable field tuple, so a label edit never changes
// the key. Two distinct items that collide on a key overwrite each other; that
// is a known limitation, not an error.
package keys

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/grovetools/cryoview/pkg/models"
	"github.com/zeebo/blake3"
)

const hashPrefix = "h:"

// Scoped namespaces name under parent.
func Scoped(parent, name string) string {
	return parent + "/" + name
}

// Hash returns a deterministic digest of an ordered field tuple. Fields are
// length-prefixed so ("ab","c") and ("a","bc") hash differently.
func Hash(fields ...string) string {
	h := blake3.New()
	var lenBuf [binary.MaxVarintLen64]byte
	for _, f := range fields {
		n := binary.PutUvarint(lenBuf[:], uint64(len(f)))
		h.Write(lenBuf[:n])
		h.Write([]byte(f))
	}
	sum := h.Sum(nil)
	return hashPrefix + hex.EncodeToString(sum[:16])
}

// Target keys a target by its JVM id, falling back to the connect URL for
// targets the service has not identified yet. Collections rekey the row when
// a discovery update supplies the id.
func Target(t models.Target) string {
	if t.JvmID != "" {
		return t.JvmID
	}
	return t.ConnectURL
}

func ActiveRecording(r models.ActiveRecording) string {
	return Scoped(r.JvmID, r.Name)
}

// Uploads scopes archives that carry no JVM id. The service stores uploads
// in one directory, so the file name alone identifies them.
const Uploads = "uploads"

// ArchivedRecording keys an archive by owning JVM and file name. Metadata
// notifications omit the size, so it never takes part in the key.
func ArchivedRecording(r models.ArchivedRecording) string {
	if r.JvmID == "" {
		return Scoped(Uploads, r.Name)
	}
	return Scoped(r.JvmID, r.Name)
}

func ThreadDump(d models.ThreadDump) string {
	return Scoped(d.JvmID, d.ThreadDumpID)
}

func HeapDump(d models.HeapDump) string {
	return Scoped(d.JvmID, d.HeapDumpID)
}

// EventTemplate keys a template by type and name; a TARGET template and a
// CUSTOM template may share a name.
func EventTemplate(t models.EventTemplate) string {
	return Scoped(string(t.Type), t.Name)
}

func Rule(r models.Rule) string {
	return r.Name
}

// ArchiveSummary keys an all-targets archive row by its target.
func ArchiveSummary(s models.ArchiveSummary) string {
	return Target(s.Target)
}

// Selection keys a client-only row (one with no server identity) by an
// immutable field tuple.
func Selection(fields ...string) string {
	return Hash(fields...)
}
