package cmap

// Range iterates over all key-value pairs.
//
// The callback returns false to stop iteration.
// Locks are taken shard by shard, so the view may not be consistent.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Keys returns all keys in no particular order.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0, m.Count())
	m.Range(func(key string, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Values returns all values in no particular order.
func (m *Map[V]) Values() []V {
	values := make([]V, 0, m.Count())
	m.Range(func(_ string, value V) bool {
		values = append(values, value)
		return true
	})
	return values
}

// Snapshot copies the map into a plain map.
func (m *Map[V]) Snapshot() map[string]V {
	out := make(map[string]V, m.Count())
	m.Range(func(key string, value V) bool {
		out[key] = value
		return true
	})
	return out
}
