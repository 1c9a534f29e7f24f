package render

// SegmentCache registers live segments and keeps an approximate total of
// their built size. It does not own segment lifetime.
type SegmentCache struct {
	segments []*Segment
	index    map[*Segment]int
	size     int64

	iterating bool
}

func NewSegmentCache() *SegmentCache {
	return &SegmentCache{index: map[*Segment]int{}}
}

// Add registers s and counts its current size. Adding twice is a no-op.
func (c *SegmentCache) Add(s *Segment) {
	if c.iterating {
		panic("render: SegmentCache.Add during ForEach")
	}
	if _, ok := c.index[s]; ok {
		return
	}
	c.index[s] = len(c.segments)
	c.segments = append(c.segments, s)
	c.size += s.EstimatedSize
}

// Remove unregisters s and subtracts its last known size.
func (c *SegmentCache) Remove(s *Segment) {
	if c.iterating {
		panic("render: SegmentCache.Remove during ForEach")
	}
	i, ok := c.index[s]
	if !ok {
		return
	}
	last := len(c.segments) - 1
	if i != last {
		moved := c.segments[last]
		c.segments[i] = moved
		c.index[moved] = i
	}
	c.segments[last] = nil
	c.segments = c.segments[:last]
	delete(c.index, s)
	c.size -= s.EstimatedSize
}

func (c *SegmentCache) Contains(s *Segment) bool {
	_, ok := c.index[s]
	return ok
}

func (c *SegmentCache) AdjustSize(delta int64) {
	c.size += delta
}

// ResetSize recomputes the total from the registered segments.
func (c *SegmentCache) ResetSize() {
	var total int64
	for _, s := range c.segments {
		total += s.EstimatedSize
	}
	c.size = total
}

// ForEach visits every registered segment. fn may rebuild or discard the
// segment it is given but must not add or remove registrations.
func (c *SegmentCache) ForEach(fn func(*Segment)) {
	c.iterating = true
	defer func() { c.iterating = false }()
	for _, s := range c.segments {
		fn(s)
	}
}

func (c *SegmentCache) Count() int  { return len(c.segments) }
func (c *SegmentCache) Size() int64 { return c.size }
