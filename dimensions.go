package emberon

import "math"

// ChooseDimensions returns the near-square rectangle used to lay out n pixels:
// width = ceil(sqrt(n)), height = ceil(n / width). The rectangle always holds
// n pixels with less than one spare row.
func ChooseDimensions(n int) (width, height int, err error) {
	if n < 1 {
		return 0, 0, ErrEmptyImage
	}

	// Float sqrt is off by one for large n; correct it in integers.
	w := int(math.Sqrt(float64(n)))
	for w > 0 && w*w >= n {
		w--
	}
	for w*w < n {
		w++
	}

	h := (n + w - 1) / w
	return w, h, nil
}
