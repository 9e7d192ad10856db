package storage

// PrefixDB is a view of another DB restricted to keys under a fixed prefix.
// The session store keeps one prefix per network so a single data
// directory can serve casper and casper-test.
type PrefixDB struct {
	inner  DB
	prefix []byte
	owned  bool
}

// NewPrefixDB returns a view of inner under prefix. Close leaves inner open.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	return &PrefixDB{inner: inner, prefix: append([]byte(nil), prefix...)}
}

// OwnedPrefixDB is like NewPrefixDB but Close also closes inner.
func OwnedPrefixDB(inner DB, prefix []byte) *PrefixDB {
	p := NewPrefixDB(inner, prefix)
	p.owned = true
	return p
}

func (p *PrefixDB) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	return append(append(out, p.prefix...), k...)
}

func (p *PrefixDB) Get(key []byte) ([]byte, error) { return p.inner.Get(p.key(key)) }

func (p *PrefixDB) Put(key, value []byte) error { return p.inner.Put(p.key(key), value) }

func (p *PrefixDB) Close() error {
	if p.owned {
		return p.inner.Close()
	}
	return nil
}
