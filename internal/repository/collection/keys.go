package collection

import (
	"fmt"
	"strconv"
	"strings"
)

// Key layout under namespace ns:
//
//	{ns}:collection:{name}        active generation metadata (hash)
//	{ns}:{name}:{gen}:idx         FT index of one generation
//	{ns}:{name}:{gen}:{n}         chunk hashes of one generation

func (r *Repo) metaKey(name string) string {
	return fmt.Sprintf("%s:collection:%s", r.ns, name)
}

func (r *Repo) indexName(name string, gen int) string {
	return fmt.Sprintf("%s:%s:%d:idx", r.ns, name, gen)
}

func (r *Repo) generationPrefix(name string, gen int) string {
	return fmt.Sprintf("%s:%s:%d:", r.ns, name, gen)
}

func (r *Repo) chunkKey(name string, gen, n int) string {
	return r.generationPrefix(name, gen) + strconv.Itoa(n)
}

// generationOf extracts the generation number from a chunk key of collection name.
func (r *Repo) generationOf(name, key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, fmt.Sprintf("%s:%s:", r.ns, name))
	if !ok {
		return 0, false
	}
	genStr, _, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, false
	}
	gen, err := strconv.Atoi(genStr)
	if err != nil || gen <= 0 {
		return 0, false
	}
	return gen, true
}
