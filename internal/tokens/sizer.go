package tokens

// Default context sizing parameters for the generate request.
const (
	// DefaultBuffer is the extra token allowance for the model's response.
	DefaultBuffer = 1000

	// DefaultMaxContext is the hard ceiling on the requested window.
	DefaultMaxContext = 128000

	// DefaultMinContext is the smallest window worth requesting.
	DefaultMinContext = 4096
)

// ContextSize maps an estimated prompt token count to the num_ctx value
// to request from the inference server. The estimate plus buffer is
// capped at max, rounded up to the next power of two and floored at min.
// The cap wins over rounding: inference servers allocate memory
// proportional to the requested window, so the result never exceeds max
// even when rounding would carry it past.
func ContextSize(estimate, buffer, min, max int) int {
	size := estimate + buffer
	if size > max {
		size = max
	}

	size = nextPowerOfTwo(size)
	if size < min {
		size = min
	}
	if size > max {
		size = max
	}

	return size
}

// nextPowerOfTwo returns the smallest power of two >= n, with 1 for
// non-positive inputs.
func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
