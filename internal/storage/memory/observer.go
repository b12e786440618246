package memory

// Observer receives store events. Implementations must not call back into
// the store: events are delivered while the store lock is held.
type Observer interface {
	Hit(key string)
	Miss(key string)
	Set(key string)
	Remove(key string)
	Expire(key string)
	Clear(removed int)
	Entries(n int)
}

type nopObserver struct{}

func (nopObserver) Hit(string)    {}
func (nopObserver) Miss(string)   {}
func (nopObserver) Set(string)    {}
func (nopObserver) Remove(string) {}
func (nopObserver) Expire(string) {}
func (nopObserver) Clear(int)     {}
func (nopObserver) Entries(int)   {}
