package arena

// zombieBatch holds everything released during one frame.
type zombieBatch struct {
	frame  uint64
	ranges []Block
	slots  []uint32
}

// zombieRing queues released ranges and slots in frame order. Frames only
// move forward, so only the oldest batches can mature.
type zombieRing struct {
	batches []zombieBatch
	head    int

	ranges int
	slots  int
	bytes  uint64
}

func (z *zombieRing) batchFor(frame uint64) *zombieBatch {
	if n := len(z.batches); n > z.head && z.batches[n-1].frame == frame {
		return &z.batches[n-1]
	}
	z.batches = append(z.batches, zombieBatch{frame: frame})
	return &z.batches[len(z.batches)-1]
}

func (z *zombieRing) addRange(frame uint64, b Block) {
	bt := z.batchFor(frame)
	bt.ranges = append(bt.ranges, b)
	z.ranges++
	z.bytes += uint64(b.Size)
}

func (z *zombieRing) addSlot(frame uint64, slot uint32) {
	bt := z.batchFor(frame)
	bt.slots = append(bt.slots, slot)
	z.slots++
}

// collect hands every entry released at or before frame-grace to the callbacks.
func (z *zombieRing) collect(frame, grace uint64, freeRange func(Block), freeSlot func(uint32)) {
	for z.head < len(z.batches) {
		bt := &z.batches[z.head]
		if bt.frame+grace > frame {
			break
		}
		for _, r := range bt.ranges {
			freeRange(r)
			z.bytes -= uint64(r.Size)
		}
		for _, s := range bt.slots {
			freeSlot(s)
		}
		z.ranges -= len(bt.ranges)
		z.slots -= len(bt.slots)
		*bt = zombieBatch{}
		z.head++
	}
	if z.head == len(z.batches) {
		z.batches = z.batches[:0]
		z.head = 0
	} else if z.head > 64 && z.head*2 > len(z.batches) {
		n := copy(z.batches, z.batches[z.head:])
		clear(z.batches[n:])
		z.batches = z.batches[:n]
		z.head = 0
	}
}
