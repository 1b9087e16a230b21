package memory

const cacheEnabled = true

type memCache struct {
	cacheAddr uint32
	cache     []byte
	mem       Reader
}

func (m *memCache) contains(addr uint32, size int) bool {
	return addr >= m.cacheAddr && uint64(addr)+uint64(size) <= uint64(m.cacheAddr)+uint64(len(m.cache))
}

func (m *memCache) ReadMemory(data []byte, addr uint32) (n int, err error) {
	if m.contains(addr, len(data)) {
		copy(data, m.cache[addr-m.cacheAddr:])
		return len(data), nil
	}
	return m.mem.ReadMemory(data, addr)
}

// Cache returns a Reader that serves reads inside [addr, addr+size) from
// a snapshot taken now. Used to avoid re-reading the same stack region
// once per frame during an unwind.
func Cache(mem Reader, addr uint32, size int) Reader {
	if !cacheEnabled || size <= 0 {
		return mem
	}
	if cacheMem, isCache := mem.(*memCache); isCache {
		if cacheMem.contains(addr, size) {
			return mem
		}
		mem = cacheMem.mem
	}
	cache := make([]byte, size)
	if _, err := mem.ReadMemory(cache, addr); err != nil {
		return mem
	}
	return &memCache{cacheAddr: addr, cache: cache, mem: mem}
}
