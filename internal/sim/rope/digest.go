package rope

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// StateDigest hashes the step index and every knot position. Two runs that
// replay the same commands produce the same digest at every step.
func StateDigest(step uint64, s ChainState) string {
	h := sha256.New()
	var tmp [8]byte
	digestWriteU64(h, &tmp, step)
	digestWriteU64(h, &tmp, uint64(s.Len()))
	digestWriteI64(h, &tmp, int64(s.Head.X))
	digestWriteI64(h, &tmp, int64(s.Head.Y))
	for _, f := range s.Followers {
		digestWriteI64(h, &tmp, int64(f.X))
		digestWriteI64(h, &tmp, int64(f.Y))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hash.Hash, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}
