package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxelfluid/internal/observerproto"
	"voxelfluid/internal/protocol"
	"voxelfluid/internal/sim/area"
	"voxelfluid/internal/sim/voxel"
)

// editTimeout bounds how long a connection waits for the area loop to apply an edit.
const editTimeout = 5 * time.Second

type Server struct {
	area *area.Area
	log  *log.Logger

	// fluids maps palette names to ids. The palette is fixed for the life of the area.
	fluids map[string]voxel.FluidTypeID

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(a *area.Area, logger *log.Logger) *Server {
	fluids := map[string]voxel.FluidTypeID{}
	for i, name := range a.FluidPalette() {
		fluids[name] = voxel.FluidTypeID(i)
	}
	return &Server{
		area:   a,
		log:    logger,
		fluids: fluids,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.area.Config()
		size := s.area.Size()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			AreaID:          cfg.ID,
			Tick:            s.area.CurrentTick(),
			AreaParams: observerproto.AreaParams{
				TickRateHz:  cfg.TickRateHz,
				Size:        [3]int{size.X, size.Y, size.Z},
				Capacity:    uint32(s.area.Capacity()),
				Temperature: cfg.Temperature,
			},
			FluidPalette: s.area.FluidPalette(),
			FluidsDigest: cfg.FluidsDigest,
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) MetricsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.area.Metrics())
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		normalizeSubscribe(&sub, s.area.Size().Y)

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		tickOut := make(chan []byte, 8)
		dataOut := make(chan []byte, 256)

		joinReq := area.ObserverJoinRequest{
			SessionID:  sid,
			TickOut:    tickOut,
			DataOut:    dataOut,
			Groups:     sub.Groups,
			SliceY:     sub.SliceY,
			SliceEvery: sub.SliceEvery,
		}
		select {
		case s.area.ObserverJoin() <- joinReq:
		default:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			return
		}
		defer func() {
			select {
			case s.area.ObserverLeave() <- sid:
			default:
				// Area loop is stopping; nothing else to do.
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Edit results are written by the same goroutine as ticks and slices.
		results := make(chan []byte, 64)

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b = <-results:
				case b = <-dataOut:
				case b = <-tickOut:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
		}()

		// Reader loop: SUBSCRIBE updates and EDIT requests.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case observerproto.TypeSubscribe:
				s.handleSubscribe(sid, msg)
			case protocol.TypeEdit:
				var em protocol.EditMsg
				if err := json.Unmarshal(msg, &em); err != nil {
					sendResult(results, protocol.EditResultMsg{Code: protocol.ErrProtoBadRequest, Message: "bad EDIT"})
					continue
				}
				go func() {
					sendResult(results, s.handleEdit(ctx, em))
				}()
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) handleSubscribe(sid string, msg []byte) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil || sub.ProtocolVersion != observerproto.Version {
		return
	}
	normalizeSubscribe(&sub, s.area.Size().Y)
	req := area.ObserverSubscribeRequest{
		SessionID:  sid,
		Groups:     sub.Groups,
		SliceY:     sub.SliceY,
		SliceEvery: sub.SliceEvery,
	}
	select {
	case s.area.ObserverSubscribe() <- req:
	default:
		// Drop updates under load; the client may resend.
	}
}

// handleEdit validates em, queues it on the area and waits for the tick that applies it.
func (s *Server) handleEdit(ctx context.Context, em protocol.EditMsg) protocol.EditResultMsg {
	res := protocol.EditResultMsg{ID: em.ID}
	e, code, err := s.toEdit(em)
	if err != nil {
		res.Code, res.Message = code, err.Error()
		return res
	}
	ch, err := s.area.Submit(e)
	if err != nil {
		res.Code, res.Message = errorCode(err), err.Error()
		return res
	}
	timer := time.NewTimer(editTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		res.Tick = r.Tick
		res.Moved = uint32(r.Moved)
		if r.Err != nil {
			res.Code, res.Message = errorCode(r.Err), r.Err.Error()
			return res
		}
		res.OK = true
		return res
	case <-timer.C:
		res.Code, res.Message = protocol.ErrTimeout, "edit not applied in time"
		return res
	case <-ctx.Done():
		res.Code, res.Message = protocol.ErrAreaStopped, "connection closed"
		return res
	}
}

func (s *Server) toEdit(em protocol.EditMsg) (area.Edit, string, error) {
	if em.ProtocolVersion != protocol.Version {
		return area.Edit{}, protocol.ErrProtoBadRequest, fmt.Errorf("protocol version %q", em.ProtocolVersion)
	}
	if !protocol.IsKnownOp(em.Op) {
		return area.Edit{}, protocol.ErrBadRequest, fmt.Errorf("unknown op %q", em.Op)
	}
	e := area.Edit{
		Op:     area.EditOp(em.Op),
		Pos:    voxel.Vec3i{X: em.Pos[0], Y: em.Pos[1], Z: em.Pos[2]},
		Volume: voxel.Volume(em.Volume),
	}
	if protocol.NeedsFluid(em.Op) {
		t, ok := s.fluids[em.Fluid]
		if !ok {
			return area.Edit{}, protocol.ErrUnknownFluid, fmt.Errorf("unknown fluid %q", em.Fluid)
		}
		e.Fluid = t
	}
	return e, "", nil
}

func sendResult(ch chan []byte, msg protocol.EditResultMsg) {
	msg.Type = protocol.TypeEditResult
	msg.ProtocolVersion = protocol.Version
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case ch <- b:
	default:
		// Client is not reading; it will see the edit in a later TICK.
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, area.ErrBusy):
		return protocol.ErrAreaBusy
	case errors.Is(err, area.ErrStopped):
		return protocol.ErrAreaStopped
	case errors.Is(err, area.ErrOutOfBounds):
		return protocol.ErrInvalidTarget
	case errors.Is(err, area.ErrUnknownFluid):
		return protocol.ErrUnknownFluid
	case errors.Is(err, area.ErrBlocked), errors.Is(err, area.ErrFrozen):
		return protocol.ErrBlocked
	case errors.Is(err, area.ErrBadVolume), errors.Is(err, area.ErrUnknownOp):
		return protocol.ErrBadRequest
	default:
		return protocol.ErrInternal
	}
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg, height int) {
	if sub.SliceY < -1 || sub.SliceY >= height {
		sub.SliceY = -1
	}
	if sub.SliceEvery <= 0 {
		sub.SliceEvery = 1
	}
	if sub.SliceEvery > 1000 {
		sub.SliceEvery = 1000
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
