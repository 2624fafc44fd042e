package review

import (
	"fmt"
	"regexp"
	"sort"
)

// shopeeIDPattern matches the shop and item ids embedded in a Shopee
// product URL, e.g. https://shopee.vn/some-product-i.12345678.9876543210
var shopeeIDPattern = regexp.MustCompile(`i\.(\d+)\.(\d+)`)

// ExtractIDs parses the shop and product ids out of a product URL.
func ExtractIDs(url string) (shopID, productID string, err error) {
	m := shopeeIDPattern.FindStringSubmatch(url)
	if len(m) < 3 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}
	return m[1], m[2], nil
}

// NormalizeRatings validates a target rating set: non-empty, every value
// in [1,5]. The result is deduplicated and sorted ascending.
func NormalizeRatings(ratings []int) ([]int, error) {
	if len(ratings) == 0 {
		return nil, ErrEmptyRatings
	}
	seen := make(map[int]struct{}, len(ratings))
	var out []int
	for _, r := range ratings {
		if r < 1 || r > 5 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidRating, r)
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Ints(out)
	return out, nil
}

// SameRatingSet reports whether a and b contain exactly the same ratings,
// ignoring order.
func SameRatingSet(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[int]struct{}, len(a))
	for _, r := range a {
		set[r] = struct{}{}
	}
	for _, r := range b {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
