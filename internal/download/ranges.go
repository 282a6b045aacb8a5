package download

import "fmt"

// ByteRange is an inclusive byte window. It is empty when End < Start.
type ByteRange struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in the range
func (r ByteRange) Len() int64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Header returns the value of the Range request header
func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// SplitRanges partitions [0, size-1] into n contiguous ranges. The first
// size%n ranges are one byte longer than the rest. When n > size the trailing
// ranges are empty.
func SplitRanges(size int64, n int) []ByteRange {
	if n < 1 {
		n = 1
	}
	if size < 0 {
		size = 0
	}
	base := size / int64(n)
	rem := size % int64(n)

	ranges := make([]ByteRange, n)
	var offset int64
	for i := range ranges {
		length := base
		if int64(i) < rem {
			length++
		}
		ranges[i] = ByteRange{Start: offset, End: offset + length - 1}
		offset += length
	}
	return ranges
}
