package redistruct

import (
	"context"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// RelatedField is the surface every collection kind implements. Concrete
// kinds (ListField, SetField, ...) expose their natural command set on top.
type RelatedField interface {
	// Kind returns the registered kind name ("list", "set", ...).
	Kind() string
	// Name returns the collection's declared name.
	Name() string
	// Key returns the collection's derived storage key.
	Key() (string, error)
	// Clear removes the collection's backing key.
	Clear(ctx context.Context) error
}

// Binding carries everything a kind factory needs to produce a bound
// collection: the owning descriptor, the owning record (nil for class-level
// attachments, where the descriptor itself is the parent reference), and the
// attachment declaration.
type Binding struct {
	Descriptor *Descriptor
	Record     *Record
	Def        RelatedDef
}

// KindFactory produces a bound collection for one attachment declaration.
type KindFactory func(Binding) RelatedField

// Process-wide kind registry. Collection kinds self-register at load time;
// the definition layer is purely generic over whatever is registered, so a
// new kind needs no core change.
var kinds = xsync.NewMapOf[string, KindFactory]()

// RegisterKind registers (or replaces) the factory implementing a collection
// kind.
func RegisterKind(kind string, factory KindFactory) {
	kinds.Store(kind, factory)
}

// LookupKind returns the factory for a kind, if registered.
func LookupKind(kind string) (KindFactory, bool) {
	return kinds.Load(kind)
}

// EachKind invokes fn for every registered kind until fn returns false.
func EachKind(fn func(kind string, factory KindFactory) bool) {
	kinds.Range(fn)
}

// Kinds returns the registered kind names, sorted.
func Kinds() []string {
	out := make([]string, 0, kinds.Size())
	kinds.Range(func(k string, _ KindFactory) bool {
		out = append(out, k)
		return true
	})
	sort.Strings(out)
	return out
}
