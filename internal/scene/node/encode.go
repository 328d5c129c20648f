package node

import (
	"encoding/binary"
	"math"

	"github.com/brightforge/modelengine/internal/ids"
)

func vec3sToBytes(vs []ids.Vec3) []byte {
	out := make([]byte, 0, len(vs)*12)
	for _, v := range vs {
		out = appendFloat32(out, v.X)
		out = appendFloat32(out, v.Y)
		out = appendFloat32(out, v.Z)
	}
	return out
}

func vec2sToBytes(vs []ids.Vec2) []byte {
	out := make([]byte, 0, len(vs)*8)
	for _, v := range vs {
		out = appendFloat32(out, v.X)
		out = appendFloat32(out, v.Y)
	}
	return out
}

func float32sToBytes(vs []float32) []byte {
	out := make([]byte, 0, len(vs)*4)
	for _, v := range vs {
		out = appendFloat32(out, v)
	}
	return out
}

func appendFloat32(b []byte, v float32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(v))
	return append(b, tmp[:]...)
}

// facesToBytes lays out each face as [n, i0..i{n-1}] per the wire format in
// 3.3, packed as little-endian int32s.
func facesToBytes(faces [][]int32) []byte {
	out := make([]byte, 0)
	var tmp [4]byte
	appendInt32 := func(v int32) {
		binary.LittleEndian.PutUint32(tmp[:], uint32(v))
		out = append(out, tmp[:]...)
	}
	for _, f := range faces {
		appendInt32(int32(len(f)))
		for _, idx := range f {
			appendInt32(idx)
		}
	}
	return out
}

func bytesToVec3s(raw []byte) []ids.Vec3 {
	n := len(raw) / 12
	out := make([]ids.Vec3, n)
	for i := 0; i < n; i++ {
		base := i * 12
		out[i] = ids.Vec3{
			X: readFloat32(raw[base:]),
			Y: readFloat32(raw[base+4:]),
			Z: readFloat32(raw[base+8:]),
		}
	}
	return out
}

func readFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// bytesToFaces inverts facesToBytes.
func bytesToFaces(raw []byte) [][]int32 {
	var faces [][]int32
	i := 0
	for i+4 <= len(raw) {
		n := int(int32(binary.LittleEndian.Uint32(raw[i:])))
		i += 4
		if n < 0 || i+n*4 > len(raw) {
			break
		}
		face := make([]int32, n)
		for j := 0; j < n; j++ {
			face[j] = int32(binary.LittleEndian.Uint32(raw[i:]))
			i += 4
		}
		faces = append(faces, face)
	}
	return faces
}
