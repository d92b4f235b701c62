// Package networktime provides NetworkTime, an immutable time value that is
// quantized onto a fixed-rate tick grid.
//
// A NetworkTime holds a tick rate and a continuous time in seconds. From
// those two it derives the tick index (floor of time × tickRate, rounding
// toward negative infinity) and the tick offset, the remainder of time inside
// the current tick, which is always in [0, FixedDeltaTime()).
//
// Every operation returns a new value. Arithmetic never accumulates ticks: the
// tick and offset of a result are always re-derived from the resulting time,
// so many small increments do not compound rounding error.
package networktime
