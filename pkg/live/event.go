package live

import "fmt"

// Kind is the closed set of mutations a notification can describe.
type Kind int

const (
	Created Kind = iota + 1
	Updated
	Deleted
	ParentAdded
	ParentRemoved
	// ParentCountDelta adjusts an untracked parent's child counter without
	// carrying the child itself.
	ParentCountDelta
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	case ParentAdded:
		return "parent_added"
	case ParentRemoved:
		return "parent_removed"
	case ParentCountDelta:
		return "parent_count_delta"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one typed mutation produced by the notification demultiplexer.
type Event[R any] struct {
	Kind Kind
	// Key identifies the record. Derived from Record when empty.
	Key    string
	Record R
	// Fields is the patch mask for Created/Updated, as JSON field names.
	// Nil means Record is complete.
	Fields []string
	// ParentKey identifies the parent row. Derived from Record when empty.
	ParentKey string
	// Count is the initial count for ParentAdded and the delta for ParentCountDelta.
	Count int
	// Category is the notification category the event came from, for logs.
	Category string
}

// Aggregate holds values derived from the full item set.
type Aggregate struct {
	Count     int
	TotalSize int64
}

// ParentRow is a per-parent row in a parent/child collection.
type ParentRow struct {
	Key   string
	Count int
	// Tracked means every child of this parent is cached in items, so Count
	// is recomputed from them. Untracked rows apply deltas.
	Tracked bool
}

// Snapshot is an authoritative fetch result. It replaces items wholesale.
type Snapshot[R any] struct {
	Records []R
	Parents []ParentRow
	// TrackAll marks every parent, including ones added later, as tracked:
	// the query returned the complete child set.
	TrackAll bool
}

// Adapter supplies the record capabilities the reconciler needs.
type Adapter[R any] struct {
	// Key derives the identity of a record. Required.
	Key func(R) string
	// Merge applies patch onto current for the given field mask. Nil Merge
	// replaces the record whole.
	Merge func(current, patch R, fields []string) R
	// Parent returns the parent key of a child record. Nil for flat collections.
	Parent func(R) string
	// Size feeds Aggregate.TotalSize. Optional.
	Size func(R) int64
	// CascadeParentRemoval drops cached children when their parent row is removed.
	CascadeParentRemoval bool
}
