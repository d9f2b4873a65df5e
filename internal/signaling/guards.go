package signaling

import "sync"

// guardSet holds short-lived "currently processing" markers keyed by
// operation and call id. A duplicate delivery of the same event while the
// marker is held is dropped instead of processed twice.
type guardSet struct {
	m sync.Map
}

func (g *guardSet) TryAcquire(op, callID string) bool {
	_, loaded := g.m.LoadOrStore(op+":"+callID, struct{}{})
	return !loaded
}

func (g *guardSet) Release(op, callID string) {
	g.m.Delete(op + ":" + callID)
}
