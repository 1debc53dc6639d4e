// Package buffers implements the Buffer Cache (spec.md component C3): a
// reference-counted loader/deduper for corpus audio segments shared
// across overlapping voices and in-flight DSP nodes.
//
// Grounded on voiceprint/store.go's sync.RWMutex-guarded multi-map
// bookkeeping (there: a single ID -> VoicePrint map persisted to disk;
// here: the four parallel in-memory maps spec.md 4.3 names, with no
// persistence since runtime state does not survive restarts) and on
// ai/engine_manager.go's RWMutex discipline for a single shared resource
// read and written by many callers.
package buffers

import (
	"fmt"
	"log"
	"sync"

	"github.com/josiah-wolf-oberholtzer/archon/corpus"
	"github.com/josiah-wolf-oberholtzer/archon/dsp"
	"github.com/josiah-wolf-oberholtzer/archon/errs"
)

// Holder identifies an entity that keeps a buffer alive: a Voice UUID or
// a DSP node id, drawn from one flat string-keyed holder space.
type Holder string

// Cache is the single source of truth for buffer reference counting
// (invariants I2-I4).
type Cache struct {
	bridge dsp.Bridge
	root   string // corpus root directory; resolves relative Partition.Path

	mu sync.Mutex

	holdersByBuffer   map[dsp.BufferHandle]map[Holder]struct{}
	partitionByBuffer map[dsp.BufferHandle]corpus.Partition
	buffersByHolder   map[Holder]map[dsp.BufferHandle]struct{}
	bufferByDigest    map[string]dsp.BufferHandle
}

// New constructs an empty Cache bound to a DSP Bridge. root is the corpus
// root directory that Partition.Path is resolved against when a buffer
// is loaded for the first time.
func New(bridge dsp.Bridge, root string) *Cache {
	return &Cache{
		bridge:            bridge,
		root:              root,
		holdersByBuffer:   make(map[dsp.BufferHandle]map[Holder]struct{}),
		partitionByBuffer: make(map[dsp.BufferHandle]corpus.Partition),
		buffersByHolder:   make(map[Holder]map[dsp.BufferHandle]struct{}),
		bufferByDigest:    make(map[string]dsp.BufferHandle),
	}
}

// Increment resolves entry (a Partition or an already-issued BufferHandle)
// to a live BufferHandle, loading it from the DSP server on first
// reference, and records holder as one of its referrers (I2). Loading a
// Partition whose file cannot be read surfaces errs.ErrIo; the increment
// is abandoned and no mapping is installed for it.
func (c *Cache) Increment(entry any, holder Holder) (dsp.BufferHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.incrementLocked(entry, holder)
}

func (c *Cache) incrementLocked(entry any, holder Holder) (dsp.BufferHandle, error) {
	switch v := entry.(type) {
	case dsp.BufferHandle:
		c.refLocked(v, holder)
		return v, nil

	case corpus.Partition:
		if handle, ok := c.bufferByDigest[v.Digest]; ok {
			c.refLocked(handle, holder)
			return handle, nil
		}

		handle, err := c.bridge.AddBuffer(1, c.resolvePath(v.Path), v.StartingFrame, v.FrameCount)
		if err != nil {
			return dsp.BufferHandle(0), fmt.Errorf("loading buffer for partition %q: %w: %v", v.Digest, errs.ErrIo, err)
		}

		c.bufferByDigest[v.Digest] = handle
		c.partitionByBuffer[handle] = v
		c.refLocked(handle, holder)
		return handle, nil

	default:
		return dsp.BufferHandle(0), fmt.Errorf("buffers: increment called with unsupported entry type %T", entry)
	}
}

func (c *Cache) refLocked(handle dsp.BufferHandle, holder Holder) {
	if c.holdersByBuffer[handle] == nil {
		c.holdersByBuffer[handle] = make(map[Holder]struct{})
	}
	c.holdersByBuffer[handle][holder] = struct{}{}

	if c.buffersByHolder[holder] == nil {
		c.buffersByHolder[holder] = make(map[dsp.BufferHandle]struct{})
	}
	c.buffersByHolder[holder][handle] = struct{}{}
}

func (c *Cache) resolvePath(path string) string {
	if c.root == "" {
		return path
	}
	return c.root + "/" + path
}

// IncrementMultiple increments a batch of entries under a single holder,
// equivalent to calling Increment sequentially. Entries whose buffer load
// fails are skipped (errs.ErrIo is logged, not returned) so the rest of
// the batch still proceeds, per spec.md 7's IoError policy; if every
// entry fails, the returned slice is empty.
func (c *Cache) IncrementMultiple(entries []corpus.Partition, holder Holder) []dsp.BufferHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	handles := make([]dsp.BufferHandle, 0, len(entries))
	for _, entry := range entries {
		handle, err := c.incrementLocked(entry, holder)
		if err != nil {
			log.Printf("[buffers] abandoning allocation for partition %q: %v", entry.Digest, err)
			continue
		}
		handles = append(handles, handle)
	}
	return handles
}

// Decrement releases every buffer holder references. When a buffer's
// holder set becomes empty and free is true, the buffer's mappings are
// removed and the DSP server is told to free it (I3, I4). Decrementing
// an unknown holder returns errs.ErrNotFound; callers tolerate it since
// late or duplicate /n_end messages are expected after a graceful stop.
func (c *Cache) Decrement(holder Holder, free bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	held, ok := c.buffersByHolder[holder]
	if !ok {
		return fmt.Errorf("decrementing holder %q: %w", holder, errs.ErrNotFound)
	}

	for handle := range held {
		holders := c.holdersByBuffer[handle]
		delete(holders, holder)

		if len(holders) == 0 {
			delete(c.holdersByBuffer, handle)
			if free {
				partition := c.partitionByBuffer[handle]
				delete(c.partitionByBuffer, handle)
				delete(c.bufferByDigest, partition.Digest)
				if err := c.bridge.FreeBuffer(handle); err != nil {
					log.Printf("[buffers] freeing buffer %v: %v", handle, err)
				}
			}
		}
	}

	delete(c.buffersByHolder, holder)
	return nil
}

// Refcount returns the number of distinct holders currently referencing
// handle (used by tests to assert invariant I2).
func (c *Cache) Refcount(handle dsp.BufferHandle) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.holdersByBuffer[handle])
}

// IsEmpty reports whether the cache currently holds no buffer or holder
// mappings at all, the post-condition property P2/P6 checks for.
func (c *Cache) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.holdersByBuffer) == 0 && len(c.buffersByHolder) == 0 && len(c.bufferByDigest) == 0
}
