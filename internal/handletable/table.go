package handletable

// Table is a sparse registry from a 64-bit handle to an owner value,
// guarded by rwlock rather than sync.RWMutex: lookups happen on every
// delivered ioengine.Event, far more often than registrations/removals, so
// the writer-preferring busy-wait trades a little CPU under write
// contention for read calls that never block on the Go runtime's mutex
// fairness machinery.
type Table struct {
	lock  rwlock
	slots map[uint64]any
	next  uint64
}

// New returns an empty table. next starts at 1 so the zero handle can be
// reserved by callers as "no owner".
func New() *Table {
	return &Table{slots: make(map[uint64]any), next: 1}
}

// Register assigns a fresh handle to owner and returns it.
func (t *Table) Register(owner any) uint64 {
	t.lock.wlock()
	defer t.lock.wunlock()
	h := t.next
	t.next++
	t.slots[h] = owner
	return h
}

// Bind associates an explicit, caller-chosen handle with owner, overwriting
// any previous binding. Used when the handle space is owned by something
// other than this table (e.g. mirroring an ioengine socket id).
func (t *Table) Bind(handle uint64, owner any) {
	t.lock.wlock()
	defer t.lock.wunlock()
	t.slots[handle] = owner
}

// Lookup returns the owner registered for handle, if any.
func (t *Table) Lookup(handle uint64) (any, bool) {
	t.lock.rlock()
	defer t.lock.runlock()
	owner, ok := t.slots[handle]
	return owner, ok
}

// Remove drops a handle's binding.
func (t *Table) Remove(handle uint64) {
	t.lock.wlock()
	defer t.lock.wunlock()
	delete(t.slots, handle)
}

// Len returns the number of currently bound handles.
func (t *Table) Len() int {
	t.lock.rlock()
	defer t.lock.runlock()
	return len(t.slots)
}
