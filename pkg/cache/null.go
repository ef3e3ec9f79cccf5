package cache

// NullCache never stores anything.
type NullCache struct{}

// NewNullCache creates a null cache.
func NewNullCache() Cache {
	return NullCache{}
}

// Get always returns a miss.
func (NullCache) Get(string) ([]byte, bool) { return nil, false }

// Set does nothing.
func (NullCache) Set(string, []byte) {}

func (NullCache) Len() int { return 0 }

func (NullCache) Purge() {}

var _ Cache = NullCache{}
