// Package conv formats numbers into caller buffers without fmt or strconv,
// for MCU builds.
package conv

// Utoa writes n in base 10 at the end of buf and returns the used tail.
// buf should be length >= 20.
func Utoa(buf []byte, n uint64) []byte {
	i := len(buf)
	for i > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return buf[i:]
}

// Deci writes n/10 with one fractional digit, e.g. -43 -> "-4.3".
// buf should be length >= 22.
func Deci(buf []byte, n int64) []byte {
	if len(buf) < 3 {
		return buf[:0]
	}
	u := uint64(n)
	if n < 0 {
		u = uint64(-n)
	}
	i := len(buf) - 2
	buf[i] = '.'
	buf[i+1] = byte('0' + u%10)
	i -= len(Utoa(buf[:i], u/10))
	if n < 0 && i > 0 {
		i--
		buf[i] = '-'
	}
	return buf[i:]
}
