package catalogue

import "fmt"

// FamilyBitmap records which Filesystem-Specific-Attribute families an
// inode carries (e.g. ext2 flags, HFS+ flags, Windows flags), per spec
// section 3.2's "families bitmap". One bit per family id.
type FamilyBitmap struct {
	bits []byte
}

// NewFamilyBitmap returns an empty bitmap sized for at least nFamilies bits.
func NewFamilyBitmap(nFamilies int) *FamilyBitmap {
	if nFamilies < 0 {
		nFamilies = 0
	}
	return &FamilyBitmap{bits: make([]byte, (nFamilies+7)/8)}
}

// FamilyBitmapFromBytes wraps raw on-disk bytes, as read from a dump.
func FamilyBitmapFromBytes(b []byte) *FamilyBitmap {
	bits := make([]byte, len(b))
	copy(bits, b)
	return &FamilyBitmap{bits: bits}
}

// Bytes returns the raw on-disk representation.
func (fb *FamilyBitmap) Bytes() []byte {
	b := make([]byte, len(fb.bits))
	copy(b, fb.bits)
	return b
}

// Has reports whether family id is set.
func (fb *FamilyBitmap) Has(family int) bool {
	byteIdx, bitIdx := family/8, uint(family%8)
	if family < 0 || byteIdx >= len(fb.bits) {
		return false
	}
	return fb.bits[byteIdx]&(1<<bitIdx) != 0
}

// Add sets family id, growing the bitmap if needed.
func (fb *FamilyBitmap) Add(family int) error {
	if family < 0 {
		return fmt.Errorf("catalogue: negative FSA family id %d", family)
	}
	byteIdx, bitIdx := family/8, uint(family%8)
	if byteIdx >= len(fb.bits) {
		grown := make([]byte, byteIdx+1)
		copy(grown, fb.bits)
		fb.bits = grown
	}
	fb.bits[byteIdx] |= 1 << bitIdx
	return nil
}

// Remove clears family id.
func (fb *FamilyBitmap) Remove(family int) {
	byteIdx, bitIdx := family/8, uint(family%8)
	if family < 0 || byteIdx >= len(fb.bits) {
		return
	}
	fb.bits[byteIdx] &^= 1 << bitIdx
}

// Families returns every set family id in ascending order.
func (fb *FamilyBitmap) Families() []int {
	var out []int
	for i, b := range fb.bits {
		if b == 0 {
			continue
		}
		for j := uint(0); j < 8; j++ {
			if b&(1<<j) != 0 {
				out = append(out, i*8+int(j))
			}
		}
	}
	return out
}

// IsEmpty reports whether no family bit is set.
func (fb *FamilyBitmap) IsEmpty() bool {
	for _, b := range fb.bits {
		if b != 0 {
			return false
		}
	}
	return true
}
