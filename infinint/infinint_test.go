package infinint

import (
	"bytes"
	"math/big"
	"testing"
)

func TestArithmetic(t *testing.T) {
	a := FromUint64(1000)
	b := FromUint64(37)
	if got := a.Add(b).Uint64(); got != 1037 {
		t.Errorf("Add: got %d, want 1037", got)
	}
	if got := a.Sub(b).Uint64(); got != 963 {
		t.Errorf("Sub: got %d, want 963", got)
	}
	if got := a.Mul(b).Uint64(); got != 37000 {
		t.Errorf("Mul: got %d, want 37000", got)
	}
	q, r := a.DivMod(b)
	if q.Uint64() != 27 || r.Uint64() != 1 {
		t.Errorf("DivMod: got q=%d r=%d, want q=27 r=1", q.Uint64(), r.Uint64())
	}
}

func TestCmpOrdering(t *testing.T) {
	values := []uint64{0, 1, 255, 256, 1 << 40}
	for i := range values {
		for j := range values {
			a, b := FromUint64(values[i]), FromUint64(values[j])
			want := 0
			switch {
			case values[i] < values[j]:
				want = -1
			case values[i] > values[j]:
				want = 1
			}
			if got := a.Cmp(b); got != want {
				t.Errorf("Cmp(%d, %d) = %d, want %d", values[i], values[j], got, want)
			}
		}
	}
}

func TestUnstack(t *testing.T) {
	big := FromUint64(0x1_0000_0003)
	low, rest := big.Unstack(32)
	if low != 3 {
		t.Errorf("Unstack low = %d, want 3", low)
	}
	if rest.Uint64() != 1 {
		t.Errorf("Unstack rest = %d, want 1", rest.Uint64())
	}
}

func TestCodecRoundTrip(t *testing.T) {
	cases := []Int{
		Zero,
		FromUint64(1),
		FromUint64(254),
		FromUint64(255),
		FromUint64(1 << 40),
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 4000)
	cases = append(cases, FromBytes(huge.Bytes()))

	for _, c := range cases {
		var buf bytes.Buffer
		if _, err := c.WriteTo(&buf); err != nil {
			t.Fatalf("WriteTo: %v", err)
		}
		got, _, err := ReadFrom(&buf)
		if err != nil {
			t.Fatalf("ReadFrom: %v", err)
		}
		if got.Cmp(c) != 0 {
			t.Errorf("round trip mismatch: got %s, want %s", got, c)
		}
		if buf.Len() != 0 {
			t.Errorf("ReadFrom left %d unread bytes", buf.Len())
		}
	}
}
