package etran

import "fmt"

// code6 computes a six-digit check-coded representation of a five-digit
// value: the original value followed by a single check digit, weighted
// 5-4-3-2-1 over its decimal digits, falling back to a second weighting
// (7-6-5-4-3) when the primary weighting yields a check digit of 10, and to
// 0 when the fallback also yields 10.
func code6(val int) string {
	digit := checkDigit(val, 5, 1)
	if digit == 10 {
		digit = checkDigit(val, 7, 3)
		if digit == 10 {
			digit = 0
		}
	}
	return fmt.Sprintf("%06d", val*10+digit)
}

// checkDigit sums each decimal digit of n, from the ones place upward,
// weighted by a descending sequence starting at fromWeight and stopping
// once it reaches toWeight, then reduces the sum mod 11.
func checkDigit(n, fromWeight, toWeight int) int {
	sum := 0
	for w := fromWeight; w >= toWeight; w-- {
		sum += (n % 10) * w
		n /= 10
	}
	return sum % 11
}
