package core

import "crypto/sha256"

// MerkleRoot reduces an ordered list of hashes to a single root via
// pairwise hashing up a binary tree. An odd level duplicates its last
// hash; the empty list reduces to the all-zero hash.
func MerkleRoot(hashes []Hash) Hash {
	if len(hashes) == 0 {
		return ZeroHash
	}

	level := make([]Hash, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			h := sha256.New()
			h.Write(level[i][:])
			h.Write(level[i+1][:])
			var combined Hash
			copy(combined[:], h.Sum(nil))
			next = append(next, combined)
		}
		level = next
	}

	return level[0]
}
