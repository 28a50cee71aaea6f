package catalogue

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dargo-project/dargo/infinint"
)

// Unit is the precision a DateTime was captured or stored at, per spec
// section 4.10.
type Unit byte

const (
	UnitSecond Unit = iota
	UnitMicrosecond
	UnitNanosecond
	// UnitUnknown marks a value read from an archive old enough to only
	// ever have stored whole seconds, with no declared unit byte.
	UnitUnknown
)

func (u Unit) nsPerTick() int64 {
	switch u {
	case UnitSecond:
		return int64(time.Second)
	case UnitMicrosecond:
		return int64(time.Microsecond)
	case UnitNanosecond:
		return 1
	case UnitUnknown:
		return int64(time.Second)
	default:
		return int64(time.Second)
	}
}

// coarser returns whichever of a, b has the larger tick (the coarser
// precision), per spec section 4.10's comparison rule.
func coarser(a, b Unit) Unit {
	if a.nsPerTick() >= b.nsPerTick() {
		return a
	}
	return b
}

// DateTime is a wall-clock instant stored as a tick count at a
// declared Unit, per spec section 4.10.
type DateTime struct {
	Unit  Unit
	Ticks infinint.Int
}

// FromTime builds a DateTime at nanosecond precision from a time.Time.
func FromTime(t time.Time) DateTime {
	return DateTime{Unit: UnitNanosecond, Ticks: infinint.FromUint64(uint64(t.UnixNano()))}
}

// Now returns the current instant, honoring SOURCE_DATE_EPOCH for
// reproducible archive creation, the same convention the build
// tooling in this module's ecosystem uses for reproducible builds.
func Now() DateTime {
	if epoch := os.Getenv("SOURCE_DATE_EPOCH"); epoch != "" {
		if secs, err := strconv.ParseInt(epoch, 10, 64); err == nil {
			return FromTime(time.Unix(secs, 0).UTC())
		}
	}
	return FromTime(time.Now().UTC())
}

// Time converts back to a time.Time, for display and for driving
// filesystem utimes calls.
func (d DateTime) Time() time.Time {
	if !d.Ticks.Fits64() {
		// A timestamp that does not fit 64 bits could only come from a
		// corrupted or adversarial archive; clamp rather than panic.
		return time.Unix(0, 0).UTC()
	}
	ns := int64(d.Ticks.Uint64()) * d.Unit.nsPerTick()
	return time.Unix(0, ns).UTC()
}

// Cmp compares two DateTimes, coercing both to the coarser of the two
// units before comparing, per spec section 4.10: a value at a finer
// unit is truncated down to the coarser one, the same lossy direction
// an archive reader must take when one operand came from an old,
// seconds-only archive.
func (d DateTime) Cmp(o DateTime) int {
	u := coarser(d.Unit, o.Unit)
	dt, _ := d.Ticks.DivMod(infinint.FromUint64(uint64(u.nsPerTick() / d.Unit.nsPerTick())))
	ot, _ := o.Ticks.DivMod(infinint.FromUint64(uint64(u.nsPerTick() / o.Unit.nsPerTick())))
	return dt.Cmp(ot)
}

// Dump writes unit byte then the infinint tick count, per spec section
// 4.10.
func (d DateTime) Dump(w io.Writer) error {
	if _, err := w.Write([]byte{byte(d.Unit)}); err != nil {
		return fmt.Errorf("catalogue: writing datetime unit: %w", err)
	}
	if _, err := d.Ticks.WriteTo(w); err != nil {
		return fmt.Errorf("catalogue: writing datetime ticks: %w", err)
	}
	return nil
}

// ReadDateTime is the inverse of Dump.
func ReadDateTime(r io.Reader) (DateTime, error) {
	var ub [1]byte
	if _, err := io.ReadFull(r, ub[:]); err != nil {
		return DateTime{}, fmt.Errorf("catalogue: reading datetime unit: %w", err)
	}
	ticks, _, err := infinint.ReadFrom(r)
	if err != nil {
		return DateTime{}, fmt.Errorf("catalogue: reading datetime ticks: %w", err)
	}
	return DateTime{Unit: Unit(ub[0]), Ticks: ticks}, nil
}
