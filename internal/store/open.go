package store

import "fmt"

// Open creates the backend named by the config string. Path is the
// store file (bolt) or directory (badger) and is ignored by the
// memory backend.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "memory":
		return NewMemory(), nil
	case "bolt":
		return OpenBolt(path)
	case "badger":
		return OpenBadger(path)
	default:
		return nil, fmt.Errorf("unknown store backend: %q", backend)
	}
}
