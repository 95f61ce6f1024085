package area

import (
	"context"
	"errors"
)

type adminKind int

const (
	adminSnapshot adminKind = iota
	adminTemperature
)

type adminReq struct {
	Kind        adminKind
	Temperature int
	Resp        chan adminResp
}

type adminResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the area loop goroutine to enqueue a snapshot of the state after
// the last completed tick.
func (a *Area) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	return a.requestAdmin(ctx, adminReq{Kind: adminSnapshot})
}

// RequestTemperature changes the ambient temperature from outside the loop goroutine.
// The next climate pass uses the new value.
func (a *Area) RequestTemperature(ctx context.Context, t int) (tick uint64, err error) {
	return a.requestAdmin(ctx, adminReq{Kind: adminTemperature, Temperature: t})
}

func (a *Area) requestAdmin(ctx context.Context, req adminReq) (uint64, error) {
	if a.stopOnce.Load() {
		return 0, ErrStopped
	}
	resp := make(chan adminResp, 1)
	req.Resp = resp

	select {
	case a.admin <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (a *Area) handleAdmin(req adminReq) {
	cur := a.tick.Load()
	var errStr string
	switch req.Kind {
	case adminSnapshot:
		if a.snapshotSink == nil {
			errStr = "snapshot sink not configured"
			break
		}
		select {
		case a.snapshotSink <- a.ExportSnapshot():
		default:
			errStr = "snapshot sink busy"
		}
	case adminTemperature:
		a.SetTemperature(req.Temperature)
		a.logf("tick=%d temperature set to %d", cur, req.Temperature)
	}
	select {
	case req.Resp <- adminResp{Tick: cur, Err: errStr}:
	default:
		// Client timed out; don't block the sim loop.
	}
}
