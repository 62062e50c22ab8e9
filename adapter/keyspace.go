package adapter

import (
	"path"
	"strings"
	"sync"
)

// keyspace maps adapter paths onto flat object keys below a prefix. It is
// shared by the object-store adapters, where a folder is either a zero-byte
// "name/" marker object or just a common key prefix.
type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	return keyspace{prefix: strings.Trim(prefix, "/")}
}

// key returns the object key for a cleaned path. The root maps to the
// prefix itself.
func (k keyspace) key(p string) string {
	p = strings.TrimPrefix(p, "/")
	if k.prefix == "" {
		return p
	}
	return strings.TrimPrefix(path.Join(k.prefix, p), "/")
}

// dirPrefix returns the key prefix of everything inside the folder p.
func (k keyspace) dirPrefix(p string) string {
	key := k.key(p)
	if key == "" {
		return ""
	}
	return key + "/"
}

// path returns the adapter path of an object key; marker keys lose their
// trailing slash.
func (k keyspace) path(key string) string {
	key = strings.TrimSuffix(key, "/")
	if k.prefix != "" {
		key = strings.TrimPrefix(strings.TrimPrefix(key, k.prefix), "/")
	}
	return Root + key
}

// rebase moves key from below the src folder prefix to below dst.
func rebase(key, srcPrefix, dstPrefix string) string {
	return dstPrefix + strings.TrimPrefix(key, srcPrefix)
}

// keySet collects the keys written by concurrent copy workers.
type keySet struct {
	mu   sync.Mutex
	keys []string
}

func (s *keySet) add(key string) {
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
}

func (s *keySet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

// without returns the keys that are not in drop, in their original order.
func without(keys, drop []string) []string {
	skip := make(map[string]struct{}, len(drop))
	for _, k := range drop {
		skip[k] = struct{}{}
	}
	var out []string
	for _, k := range keys {
		if _, ok := skip[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}
