package area

import (
	"context"
	"sort"
	"time"
)

func (a *Area) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(a.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingEdits []EditRequest

	for {
		select {
		case <-ctx.Done():
			a.failPending(pendingEdits)
			return ctx.Err()
		case <-a.stop:
			a.failPending(pendingEdits)
			return nil
		case req := <-a.observerJoin:
			a.handleObserverJoin(req)
		case req := <-a.observerSub:
			a.handleObserverSubscribe(req)
		case id := <-a.observerLeave:
			a.handleObserverLeave(id)
		case req := <-a.admin:
			a.handleAdmin(req)
		case req := <-a.edits:
			pendingEdits = append(pendingEdits, req)
		case <-ticker.C:
			a.step(pendingEdits)
			pendingEdits = pendingEdits[:0]
		}
	}
}

func (a *Area) Stop() {
	if a.stopOnce.CompareAndSwap(false, true) {
		close(a.stop)
	}
}

func (a *Area) failPending(reqs []EditRequest) {
	for {
		select {
		case req := <-a.edits:
			reqs = append(reqs, req)
			continue
		default:
		}
		break
	}
	for _, req := range reqs {
		if req.Resp != nil {
			req.Resp <- EditResult{Tick: a.tick.Load(), Err: ErrStopped}
		}
	}
}

// StepOnce advances the area by a single tick using the same ordering semantics as Run.
// It is primarily intended for deterministic replays/tests.
func (a *Area) StepOnce(edits []Edit) (tick uint64, digest string) {
	reqs := make([]EditRequest, 0, len(edits))
	for _, e := range edits {
		reqs = append(reqs, EditRequest{Edit: e})
	}
	a.step(reqs)
	tick = a.tick.Load()
	return tick, a.stateDigest(tick)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
