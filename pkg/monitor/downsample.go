package monitor

// Downsample reduces values to at most maxPoints by decimation, for drawing.
// dst is reused when it has enough capacity. A non-positive maxPoints yields
// an empty slice.
func Downsample[T any](dst, values []T, maxPoints int) []T {
	if maxPoints <= 0 {
		return dst[:0]
	}
	if len(values) <= maxPoints {
		if cap(dst) >= len(values) {
			dst = dst[:len(values)]
			copy(dst, values)
			return dst
		}
		out := make([]T, len(values))
		copy(out, values)
		return out
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]T, 0, maxPoints)
	}

	step := float64(len(values)) / float64(maxPoints)
	for i := range maxPoints {
		idx := int(float64(i) * step)
		if idx < len(values) {
			dst = append(dst, values[idx])
		}
	}
	return dst
}
