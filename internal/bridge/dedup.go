package bridge

import lru "github.com/hashicorp/golang-lru/v2"

const defaultDedupSize = 1000

// dedup remembers recently delivered event keys for the life of the
// process.
type dedup struct {
	cache *lru.Cache[string, struct{}]
}

func newDedup(size int) *dedup {
	if size <= 0 {
		size = defaultDedupSize
	}
	cache, _ := lru.New[string, struct{}](size)
	return &dedup{cache: cache}
}

func (d *dedup) Contains(key string) bool {
	return key != "" && d.cache.Contains(key)
}

func (d *dedup) Add(key string) {
	if key != "" {
		d.cache.Add(key, struct{}{})
	}
}
