package dsp

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hypebeast/go-osc/osc"
)

// OSCBridge is a Bridge implementation that drives an external audio
// server (e.g. a SuperCollider-style scsynth) over OSC, grounded on the
// only example in the retrieved pack that speaks to a live synthesis
// server this way: other_examples' schollz-221e internal/model/model.go,
// which builds osc.NewClient/osc.NewMessage/client.Send calls against a
// localhost synth server. That file only sends; the receive side
// (/analysis, /n_end) is built on the same library's osc.Message and
// osc.ParsePacket primitives over a self-managed UDP listener, since
// this engine — unlike the teacher file — must also consume server-
// pushed messages.
type OSCBridge struct {
	sendHost   string
	sendPort   int
	listenAddr string

	mu         sync.Mutex
	client     *osc.Client
	conn       net.PacketConn
	running    bool
	currentTxn *oscTxn

	txnMu sync.Mutex

	clock *oscClock

	callbackMu sync.Mutex
	callbacks  map[CallbackHandle]registeredCallback
	nextCbID   int

	nextBufferID int32
	nextNodeID   int32
}

type registeredCallback struct {
	address Address
	handler Handler
}

// NewOSCBridge constructs a bridge that sends to sendHost:sendPort and
// listens for server-pushed messages on listenAddr (host:port, e.g.
// "127.0.0.1:57120").
func NewOSCBridge(sendHost string, sendPort int, listenAddr string) *OSCBridge {
	return &OSCBridge{
		sendHost:     sendHost,
		sendPort:     sendPort,
		listenAddr:   listenAddr,
		callbacks:    make(map[CallbackHandle]registeredCallback),
		clock:        newOSCClock(),
		nextBufferID: 1,
		nextNodeID:   1000,
	}
}

// Boot connects the OSC client and starts the inbound listener. It does
// not itself start the remote server process (the server is assumed to
// already be reachable, or started by an external supervisor). It does
// not probe or wait for the server either: it returns as soon as the
// client is created and the local listener is bound, and applies no
// timeout.
func (b *OSCBridge) Boot(inputChannels, outputChannels int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	b.client = osc.NewClient(b.sendHost, b.sendPort)

	conn, err := net.ListenPacket("udp", b.listenAddr)
	if err != nil {
		return fmt.Errorf("dsp: booting OSC bridge: listening on %q: %w", b.listenAddr, err)
	}
	b.conn = conn
	b.running = true

	go b.listen(conn)

	return nil
}

// Quit closes the inbound listener and marks the bridge stopped.
func (b *OSCBridge) Quit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return nil
	}
	b.running = false
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// IsRunning reports whether Boot has succeeded and Quit has not yet run.
func (b *OSCBridge) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *OSCBridge) listen(conn net.PacketConn) {
	buf := make([]byte, 65536)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return // conn closed by Quit
		}

		packet, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			log.Printf("[dsp] dropping malformed OSC packet: %v", err)
			continue
		}
		b.dispatch(packet)
	}
}

func (b *OSCBridge) dispatch(packet osc.Packet) {
	msg, ok := packet.(*osc.Message)
	if !ok {
		return
	}

	b.callbackMu.Lock()
	matches := make([]Handler, 0, 1)
	for _, cb := range b.callbacks {
		if string(cb.address) == msg.Address {
			matches = append(matches, cb.handler)
		}
	}
	b.callbackMu.Unlock()

	args := make([]any, len(msg.Arguments))
	for i, a := range msg.Arguments {
		switch x := a.(type) {
		case float32:
			args[i] = float64(x)
		case int32:
			args[i] = int64(x)
		default:
			args[i] = a
		}
	}
	converted := Message{Address: Address(msg.Address), Args: args}
	for _, h := range matches {
		h(converted)
	}
}

// oscTxn groups buffered sends issued while it is open and flushes them
// on Release, in submission order, as individual messages. The
// transaction's time is recorded but not attached to the messages: they
// are not wrapped in a timetagged bundle, so the server applies each one
// when it arrives.
type oscTxn struct {
	bridge   *OSCBridge
	time     float64
	bundle   []*osc.Message
	mu       sync.Mutex
	released bool
}

// At opens a timed-submission batch. Only one transaction may be open at
// a time: At blocks until any prior transaction's Release runs, which
// serializes the side effects of concurrent callers (the analysis poller
// and the /n_end OSC callback both call At) the way spec.md 5 requires
// ("between transactions, the audio clock strictly orders side effects").
func (b *OSCBridge) At(t float64) TxnGuard {
	b.txnMu.Lock()
	txn := &oscTxn{bridge: b, time: t}

	b.mu.Lock()
	b.currentTxn = txn
	b.mu.Unlock()

	return txn
}

func (t *oscTxn) enqueue(msg *osc.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bundle = append(t.bundle, msg)
}

// Release flushes every message queued on this transaction, in
// submission order, and reopens the bridge for the next transaction.
// It is safe to call more than once; only the first call flushes.
func (t *oscTxn) Release() {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return
	}
	t.released = true
	msgs := t.bundle
	t.bundle = nil
	t.mu.Unlock()

	t.bridge.mu.Lock()
	client := t.bridge.client
	t.bridge.currentTxn = nil
	t.bridge.mu.Unlock()

	defer t.bridge.txnMu.Unlock()

	if client == nil {
		return
	}
	for _, msg := range msgs {
		if err := client.Send(msg); err != nil {
			log.Printf("[dsp] sending OSC message %q: %v", msg.Address, err)
		}
	}
}

// send enqueues msg on the currently open transaction if one exists, or
// sends it immediately otherwise.
func (b *OSCBridge) send(msg *osc.Message) error {
	b.mu.Lock()
	txn := b.currentTxn
	client := b.client
	b.mu.Unlock()

	if txn != nil {
		txn.enqueue(msg)
		return nil
	}

	if client == nil {
		return fmt.Errorf("dsp: OSC bridge is not booted")
	}
	return client.Send(msg)
}

func (b *OSCBridge) AddBuffer(channelCount int, filePath string, startingFrame, frameCount int64) (BufferHandle, error) {
	id := atomic.AddInt32(&b.nextBufferID, 1)
	handle := BufferHandle(id)

	msg := osc.NewMessage("/b_allocRead")
	msg.Append(int32(handle))
	msg.Append(filePath)
	msg.Append(int32(startingFrame))
	msg.Append(int32(frameCount))
	msg.Append(int32(channelCount))

	if err := b.send(msg); err != nil {
		return 0, fmt.Errorf("dsp: allocating buffer for %q: %w", filePath, err)
	}
	return handle, nil
}

func (b *OSCBridge) FreeBuffer(handle BufferHandle) error {
	msg := osc.NewMessage("/b_free")
	msg.Append(int32(handle))
	if err := b.send(msg); err != nil {
		return fmt.Errorf("dsp: freeing buffer %v: %w", handle, err)
	}
	return nil
}

func (b *OSCBridge) AddSynth(blueprintID string, kwargs map[string]any) (NodeHandle, error) {
	id := atomic.AddInt32(&b.nextNodeID, 1)
	handle := NodeHandle(id)

	msg := osc.NewMessage("/s_new")
	msg.Append(blueprintID)
	msg.Append(int32(handle))
	msg.Append(int32(0)) // add action: head of default group
	msg.Append(int32(0)) // target group
	for k, v := range kwargs {
		msg.Append(k)
		appendArg(msg, v)
	}

	if err := b.send(msg); err != nil {
		return 0, fmt.Errorf("dsp: instantiating synth %q: %w", blueprintID, err)
	}
	return handle, nil
}

func appendArg(msg *osc.Message, v any) {
	switch x := v.(type) {
	case float32:
		msg.Append(x)
	case float64:
		msg.Append(float32(x))
	case int:
		msg.Append(int32(x))
	case int32:
		msg.Append(x)
	case int64:
		msg.Append(int32(x))
	case string:
		msg.Append(x)
	default:
		msg.Append(fmt.Sprintf("%v", x))
	}
}

func (b *OSCBridge) RegisterOscCallback(addressPattern Address, handler Handler) (CallbackHandle, error) {
	b.callbackMu.Lock()
	defer b.callbackMu.Unlock()

	b.nextCbID++
	id := CallbackHandle(b.nextCbID)
	b.callbacks[id] = registeredCallback{address: addressPattern, handler: handler}
	return id, nil
}

func (b *OSCBridge) Unregister(handle CallbackHandle) error {
	b.callbackMu.Lock()
	defer b.callbackMu.Unlock()
	delete(b.callbacks, handle)
	return nil
}

func (b *OSCBridge) Clock() Clock {
	return b.clock
}

// oscClock is a simple monotonic wall-clock-backed Clock; the audio
// server's own sample clock is the real time base spec.md 4.5 describes,
// but this bridge schedules by wall time since it treats the server as
// an opaque collaborator.
type oscClock struct {
	mu      sync.Mutex
	running bool
	start   time.Time
}

func newOSCClock() *oscClock {
	return &oscClock{}
}

func (c *oscClock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.start = time.Now()
}

func (c *oscClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
}

func (c *oscClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return 0
	}
	return time.Since(c.start).Seconds()
}
