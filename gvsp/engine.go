// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gvsp

import (
	"context"
	"log"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/xerrors"

	"github.com/go-gev/gevcam/camera"
	"github.com/go-gev/gevcam/gvcp"
	"github.com/go-gev/gevcam/regs"
)

// Transmission parameters and their bounds.
const (
	DefaultPacketSize  = 1400
	MinPacketSize      = 512
	MaxPacketSize      = 1400
	DefaultPacketDelay = 1000 // microseconds between data packets
	MinPacketDelay     = 100
	MaxPacketDelay     = 100000
	DefaultFrameRate   = 10.0
	MinFrameRate       = 1.0
	MaxFrameRate       = 30.0
)

const (
	healthInterval   = 5 * time.Second
	clientTimeout    = 30 * time.Second
	failureThreshold = 3
	recoveryTimeout  = 60 * time.Second
	sendErrThreshold = 5
	rebindCooldown   = 10 * time.Second
	idlePoll         = 100 * time.Millisecond

	leaderRetries  = 3
	trailerRetries = 3
	dataRetries    = 2
)

var (
	// ErrNoClient reports that streaming was requested before any
	// client announced itself on the control channel.
	ErrNoClient = xerrors.New("gvsp: no client address set")

	// ErrNotStreaming reports that a frame was offered while the
	// stream channel is closed.
	ErrNotStreaming = xerrors.New("gvsp: not streaming")

	// ErrRecovering reports that streaming is gated until the
	// recovery window elapses or a client shows up again.
	ErrRecovering = xerrors.New("gvsp: in connection recovery")

	// ErrBlockNotFound reports a resend request for a frame that has
	// already left the ring.
	ErrBlockNotFound = xerrors.New("gvsp: block not in ring")
)

// Engine paces frames from a camera source onto the stream channel.
// It satisfies the control channel's streamer surface: resends come
// from its frame ring, and client hand-over and liveness marks feed
// its health checks.
type Engine struct {
	src    camera.FrameSource
	clock  Clock
	msg    *log.Logger
	stats  *gvcp.Stats
	listen string

	mu         sync.Mutex
	conn       net.PacketConn
	client     *net.UDPAddr
	hostPort   uint32
	lastSeen   time.Time
	streaming  bool
	recovery   bool
	recoveryAt time.Time
	lastHealth time.Time
	failures   uint32
	sendErrs   int
	lastRebind time.Time

	packetSize  uint32
	packetDelay uint32 // microseconds
	frameRate   float64
	multipart   bool

	// txMu serializes packet emission so resends never interleave
	// with a frame in flight. It is never taken with mu held.
	txMu     sync.Mutex
	packetID uint16
	blockID  uint32

	ring *ring
	seq  seqTracker

	packetsSent  uint32
	packetErrors uint32
	framesSent   uint32
	frameErrors  uint32
}

// Option configures an Engine.
type Option func(*Engine)

// WithListen sets the local address the stream socket binds to.
func WithListen(addr string) Option {
	return func(eng *Engine) { eng.listen = addr }
}

// WithClock sets the engine clock.
func WithClock(clk Clock) Option {
	return func(eng *Engine) { eng.clock = clk }
}

// WithLogger sets the engine log output.
func WithLogger(msg *log.Logger) Option {
	return func(eng *Engine) { eng.msg = msg }
}

// WithStats attaches the shared connection status and counters.
func WithStats(stats *gvcp.Stats) Option {
	return func(eng *Engine) { eng.stats = stats }
}

// WithMultipart enables multipart transmission: each frame goes out
// as an image component plus a chunk-metadata component.
func WithMultipart(on bool) Option {
	return func(eng *Engine) { eng.multipart = on }
}

// New returns a streaming engine bound to its UDP socket.
func New(src camera.FrameSource, opts ...Option) (*Engine, error) {
	eng := &Engine{
		src:         src,
		clock:       sysClock{},
		msg:         log.New(os.Stdout, "gvsp: ", 0),
		listen:      ":" + strconv.Itoa(Port),
		packetSize:  DefaultPacketSize,
		packetDelay: DefaultPacketDelay,
		frameRate:   DefaultFrameRate,
		blockID:     1,
		ring:        newRing(),
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.stats == nil {
		eng.stats = &gvcp.Stats{}
	}

	conn, err := net.ListenPacket("udp", eng.listen)
	if err != nil {
		return nil, xerrors.Errorf("gvsp: could not bind stream socket on %q: %w",
			eng.listen, err,
		)
	}
	eng.conn = conn
	eng.lastHealth = eng.clock.Now()
	eng.stats.SetConnBit(gvcp.ConnGVSPSocket, true)
	return eng, nil
}

// Addr returns the local address of the stream socket.
func (eng *Engine) Addr() net.Addr {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.conn == nil {
		return nil
	}
	return eng.conn.LocalAddr()
}

// SetClient hands over the client seen on the control channel. Client
// activity ends a recovery window.
func (eng *Engine) SetClient(addr *net.UDPAddr) {
	if addr == nil {
		return
	}
	eng.mu.Lock()
	eng.client = &net.UDPAddr{IP: addr.IP, Port: addr.Port}
	eng.lastSeen = eng.clock.Now()
	eng.recovery = false
	eng.failures = 0
	eng.mu.Unlock()
	eng.msg.Printf("client set to %v", addr)
}

// ClearClient drops the client address and stops streaming.
func (eng *Engine) ClearClient() {
	eng.Stop()
	eng.mu.Lock()
	eng.client = nil
	eng.failures = 0
	eng.mu.Unlock()
	eng.stats.SetConnBit(gvcp.ConnClient, false)
}

// MarkActivity records that the client spoke on the control channel.
// Renewed activity ends a recovery window early.
func (eng *Engine) MarkActivity() {
	eng.mu.Lock()
	eng.lastSeen = eng.clock.Now()
	eng.recovery = false
	eng.failures = 0
	eng.mu.Unlock()
}

// Streaming reports whether frames are being emitted.
func (eng *Engine) Streaming() bool {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	return eng.streaming
}

// Start opens the stream channel. It fails when no client is known or
// while connection recovery is in progress.
func (eng *Engine) Start() error {
	eng.mu.Lock()
	switch {
	case eng.client == nil:
		eng.mu.Unlock()
		return ErrNoClient
	case eng.recovery:
		eng.mu.Unlock()
		return ErrRecovering
	case eng.streaming:
		eng.mu.Unlock()
		return nil
	}
	eng.streaming = true
	eng.lastSeen = eng.clock.Now()
	eng.mu.Unlock()

	eng.txMu.Lock()
	eng.blockID = 1
	eng.packetID = 0
	eng.txMu.Unlock()

	eng.seq.reset()
	eng.stats.SetConnBit(gvcp.ConnStreaming, true)
	eng.msg.Printf("streaming started")
	return nil
}

// Stop closes the stream channel and empties the frame ring. Stopping
// a stopped engine is a no-op.
func (eng *Engine) Stop() {
	eng.mu.Lock()
	was := eng.streaming
	eng.streaming = false
	if was {
		eng.ring.clear()
	}
	eng.mu.Unlock()
	if !was {
		return
	}
	eng.stats.SetConnBit(gvcp.ConnStreaming, false)
	eng.msg.Printf("streaming stopped")
}

// Resend retransmits the frame with the given block id from the ring,
// byte for byte, under its original block id.
func (eng *Engine) Resend(block uint32) error {
	e, ok := eng.ring.lookup(block)
	if !ok {
		return xerrors.Errorf("gvsp: could not resend block %d: %w", block, ErrBlockNotFound)
	}
	eng.msg.Printf("resending block %d", block)
	return eng.transmit(e.info, e.data)
}

// SendFrame stores one frame in the ring and emits it. The frame's
// own sequence number feeds the source sequence tracking.
func (eng *Engine) SendFrame(f *camera.Frame) error {
	eng.mu.Lock()
	ok := eng.streaming && eng.client != nil
	multipart := eng.multipart
	eng.mu.Unlock()
	if !ok {
		return ErrNotStreaming
	}

	eng.seq.classify(f.Seq)

	eng.txMu.Lock()
	block := eng.blockID
	eng.blockID++
	eng.txMu.Unlock()

	info := frameInfo{
		block:     block,
		width:     uint32(f.Width),
		height:    uint32(f.Height),
		format:    uint32(f.Format),
		timestamp: uint64(f.Timestamp.UnixMicro()),
		payload:   PayloadImage,
		multipart: multipart,
	}
	data := make([]byte, len(f.Data))
	copy(data, f.Data)

	// store and streaming check go together so a stop cannot leave a
	// late frame behind in a cleared ring.
	eng.mu.Lock()
	if !eng.streaming {
		eng.mu.Unlock()
		return ErrNotStreaming
	}
	eng.ring.store(entry{info: info, data: data})
	eng.mu.Unlock()

	if err := eng.transmit(info, data); err != nil {
		atomic.AddUint32(&eng.frameErrors, 1)
		return err
	}
	atomic.AddUint32(&eng.framesSent, 1)
	return nil
}

// transmit emits one frame without touching the ring or the block
// counter, so resends reuse it unchanged.
func (eng *Engine) transmit(info frameInfo, data []byte) error {
	eng.mu.Lock()
	conn := eng.conn
	client := eng.client
	size := int(eng.packetSize)
	delay := time.Duration(eng.packetDelay) * time.Microsecond
	port := int(eng.hostPort)
	eng.mu.Unlock()

	if conn == nil || client == nil {
		return ErrNoClient
	}
	dst := &net.UDPAddr{IP: client.IP, Port: Port}
	if port >= 1 && port <= 65535 {
		dst.Port = port
	}

	eng.txMu.Lock()
	defer eng.txMu.Unlock()

	if !info.multipart {
		return eng.sendComponent(conn, dst, info, data, size, delay)
	}
	img := info
	img.component = ComponentImage
	if err := eng.sendComponent(conn, dst, img, data, size, delay); err != nil {
		return err
	}
	meta := encodeChunkMeta(info)
	chk := info
	chk.payload = PayloadChunk
	chk.component = ComponentChunk
	chk.width = uint32(len(meta))
	chk.height = 1
	return eng.sendComponent(conn, dst, chk, meta, size, delay)
}

// sendComponent emits a leader, the payload sliced into data packets,
// and a trailer. Callers hold txMu.
func (eng *Engine) sendComponent(conn net.PacketConn, dst net.Addr, fi frameInfo, data []byte, size int, delay time.Duration) error {
	if err := eng.send(conn, dst, encodeLeader(eng.nextPacketID(), fi), leaderRetries); err != nil {
		return xerrors.Errorf("gvsp: could not send leader of block %d: %w", fi.block, err)
	}
	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		pkt := encodeData(eng.nextPacketID(), fi, uint32(off), data[off:end])
		if err := eng.send(conn, dst, pkt, dataRetries); err != nil {
			return xerrors.Errorf("gvsp: could not send block %d at offset %d: %w",
				fi.block, off, err,
			)
		}
		if delay > 0 {
			eng.clock.Sleep(delay)
		}
	}
	if err := eng.send(conn, dst, encodeTrailer(eng.nextPacketID(), fi), trailerRetries); err != nil {
		return xerrors.Errorf("gvsp: could not send trailer of block %d: %w", fi.block, err)
	}
	return nil
}

func (eng *Engine) nextPacketID() uint16 {
	id := eng.packetID
	eng.packetID++
	return id
}

func (eng *Engine) send(conn net.PacketConn, dst net.Addr, pkt []byte, retries int) error {
	var err error
	for i := 0; i < retries; i++ {
		if _, err = conn.WriteTo(pkt, dst); err == nil {
			atomic.AddUint32(&eng.packetsSent, 1)
			return nil
		}
		atomic.AddUint32(&eng.packetErrors, 1)
		eng.clock.Sleep(time.Duration(i+1) * 5 * time.Millisecond)
	}
	eng.noteSendError()
	return err
}

// noteSendError counts consecutive exhausted sends and recreates the
// socket once they pile up, rate limited by the rebind cooldown.
func (eng *Engine) noteSendError() {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	eng.sendErrs++
	if eng.sendErrs < sendErrThreshold {
		return
	}
	now := eng.clock.Now()
	if now.Sub(eng.lastRebind) < rebindCooldown {
		return
	}
	eng.lastRebind = now
	eng.msg.Printf("%d consecutive send failures, recreating stream socket", eng.sendErrs)
	if eng.conn != nil {
		eng.conn.Close()
		eng.conn = nil
		eng.stats.SetConnBit(gvcp.ConnGVSPSocket, false)
	}
	conn, err := net.ListenPacket("udp", eng.listen)
	if err != nil {
		eng.msg.Printf("could not recreate stream socket: %v", err)
		return
	}
	eng.conn = conn
	eng.sendErrs = 0
	eng.stats.SetConnBit(gvcp.ConnGVSPSocket, true)
}

// Run paces the capture loop until the context is done. The engine
// owns its socket: Run closes it on the way out.
func (eng *Engine) Run(ctx context.Context) error {
	defer func() {
		eng.Stop()
		eng.mu.Lock()
		conn := eng.conn
		eng.conn = nil
		eng.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		eng.stats.SetConnBit(gvcp.ConnGVSPSocket, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		eng.healthCheck()
		if !eng.Streaming() {
			eng.clock.Sleep(idlePoll)
			continue
		}
		start := eng.clock.Now()
		if err := eng.cycle(); err != nil {
			eng.msg.Printf("frame cycle: %v", err)
		}
		period := time.Duration(float64(time.Second) / eng.FrameRate())
		if d := period - eng.clock.Now().Sub(start); d > 0 {
			eng.clock.Sleep(d)
		}
	}
}

func (eng *Engine) cycle() error {
	frame, err := eng.src.Capture()
	if err != nil {
		atomic.AddUint32(&eng.frameErrors, 1)
		return xerrors.Errorf("gvsp: could not capture frame: %w", err)
	}
	defer eng.src.Release(frame)
	return eng.SendFrame(frame)
}

// healthCheck runs at most once per health interval. A client silent
// past the timeout accrues failures; at the threshold the engine
// drops the client and gates streaming for the recovery window.
func (eng *Engine) healthCheck() {
	now := eng.clock.Now()

	eng.mu.Lock()
	if now.Sub(eng.lastHealth) < healthInterval {
		eng.mu.Unlock()
		return
	}
	eng.lastHealth = now

	if eng.recovery {
		done := now.Sub(eng.recoveryAt) >= recoveryTimeout
		if done {
			eng.recovery = false
			eng.failures = 0
		}
		eng.mu.Unlock()
		if done {
			eng.msg.Printf("recovery window elapsed")
		}
		return
	}

	if eng.client != nil && now.Sub(eng.lastSeen) > clientTimeout {
		eng.failures++
		failures := eng.failures
		if failures >= failureThreshold {
			eng.client = nil
			eng.streaming = false
			eng.recovery = true
			eng.recoveryAt = now
			eng.ring.clear()
			eng.mu.Unlock()
			eng.stats.SetConnBit(gvcp.ConnStreaming, false)
			eng.stats.SetConnBit(gvcp.ConnClient, false)
			eng.msg.Printf("client unresponsive after %d checks, entering recovery", failures)
			return
		}
		eng.mu.Unlock()
		eng.msg.Printf("client silent (%d/%d)", failures, failureThreshold)
		return
	}

	if eng.streaming && eng.client == nil {
		eng.streaming = false
		eng.ring.clear()
		eng.mu.Unlock()
		eng.stats.SetConnBit(gvcp.ConnStreaming, false)
		eng.msg.Printf("streaming with no client, stopped")
		return
	}
	eng.mu.Unlock()
}

// SetPacketSize sets the data packet payload size in bytes.
func (eng *Engine) SetPacketSize(v uint32) error {
	if v < MinPacketSize || v > MaxPacketSize {
		return xerrors.Errorf("gvsp: packet size %d out of [%d, %d]: %w",
			v, MinPacketSize, MaxPacketSize, regs.ErrInvalidValue,
		)
	}
	eng.mu.Lock()
	defer eng.mu.Unlock()
	eng.packetSize = v
	return nil
}

// PacketSize returns the data packet payload size in bytes.
func (eng *Engine) PacketSize() uint32 {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	return eng.packetSize
}

// SetPacketDelay sets the inter-packet delay in microseconds.
func (eng *Engine) SetPacketDelay(v uint32) error {
	if v < MinPacketDelay || v > MaxPacketDelay {
		return xerrors.Errorf("gvsp: packet delay %d out of [%d, %d]: %w",
			v, MinPacketDelay, MaxPacketDelay, regs.ErrInvalidValue,
		)
	}
	eng.mu.Lock()
	defer eng.mu.Unlock()
	eng.packetDelay = v
	return nil
}

// PacketDelay returns the inter-packet delay in microseconds.
func (eng *Engine) PacketDelay() uint32 {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	return eng.packetDelay
}

// SetFrameRate sets the target frame rate in frames per second.
func (eng *Engine) SetFrameRate(fps float64) error {
	if fps < MinFrameRate || fps > MaxFrameRate {
		return xerrors.Errorf("gvsp: frame rate %g out of [%g, %g]: %w",
			fps, MinFrameRate, MaxFrameRate, regs.ErrInvalidValue,
		)
	}
	eng.mu.Lock()
	defer eng.mu.Unlock()
	eng.frameRate = fps
	return nil
}

// FrameRate returns the target frame rate in frames per second.
func (eng *Engine) FrameRate() float64 {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	return eng.frameRate
}

// SetHostPort overrides the destination UDP port. Zero restores the
// default stream port.
func (eng *Engine) SetHostPort(p uint32) error {
	if p > 65535 {
		return xerrors.Errorf("gvsp: host port %d out of [0, 65535]: %w",
			p, regs.ErrInvalidValue,
		)
	}
	eng.mu.Lock()
	defer eng.mu.Unlock()
	eng.hostPort = p
	return nil
}

// HostPort returns the destination port override, zero when unset.
func (eng *Engine) HostPort() uint32 {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	return eng.hostPort
}

// SetMultipart toggles multipart transmission.
func (eng *Engine) SetMultipart(on bool) {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	eng.multipart = on
}

// Multipart reports whether multipart transmission is enabled.
func (eng *Engine) Multipart() bool {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	return eng.multipart
}

// PacketsSent returns the number of packets put on the wire.
func (eng *Engine) PacketsSent() uint32 { return atomic.LoadUint32(&eng.packetsSent) }

// PacketErrors returns the number of failed packet sends.
func (eng *Engine) PacketErrors() uint32 { return atomic.LoadUint32(&eng.packetErrors) }

// FramesSent returns the number of frames fully transmitted.
func (eng *Engine) FramesSent() uint32 { return atomic.LoadUint32(&eng.framesSent) }

// FrameErrors returns the number of frames that failed capture or
// transmission.
func (eng *Engine) FrameErrors() uint32 { return atomic.LoadUint32(&eng.frameErrors) }

// Failures returns the current count of missed liveness checks.
func (eng *Engine) Failures() uint32 {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	return eng.failures
}

// RecoveryMode reports whether the engine is inside a recovery window.
func (eng *Engine) RecoveryMode() bool {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	return eng.recovery
}

// FramesInRing returns the number of frames available for resend.
func (eng *Engine) FramesInRing() uint32 { return uint32(eng.ring.len()) }

// SeqCounters returns the lost, duplicate and out-of-order counts of
// the source sequence tracking.
func (eng *Engine) SeqCounters() (lost, dups, ooo uint32) { return eng.seq.counters() }

// SeqState returns the expected and last sequence numbers of the
// source sequence tracking.
func (eng *Engine) SeqState() (expected, last uint32) { return eng.seq.state() }

var _ gvcp.Streamer = (*Engine)(nil)
