package detector

import (
	"hash/fnv"
	"strconv"
)

// ContentHash returns a deterministic 32-bit FNV-1a hash of the content,
// rendered in base-36. The hash is not cryptographic and collisions are
// possible; dedup treats equal hashes as equal content only in combination
// with the file path and start line, so a raw collision never merges two
// distinct matches.
func ContentHash(content string) string {
	h := fnv.New32a()
	h.Write([]byte(content))
	return strconv.FormatUint(uint64(h.Sum32()), 36)
}
