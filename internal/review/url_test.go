package review

import (
	"errors"
	"testing"
)

func TestExtractIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		url       string
		shopID    string
		productID string
		wantErr   bool
	}{
		{
			name:      "standard product url",
			url:       "https://shopee.vn/ao-thun-nam-i.555.777",
			shopID:    "555",
			productID: "777",
		},
		{
			name:      "long numeric ids",
			url:       "https://shopee.vn/x-i.12345678.9876543210",
			shopID:    "12345678",
			productID: "9876543210",
		},
		{
			name:      "ids with query string",
			url:       "https://shopee.vn/p-i.42.43?sp_atk=abc",
			shopID:    "42",
			productID: "43",
		},
		{
			name:    "missing id segment",
			url:     "https://shopee.vn/some-product",
			wantErr: true,
		},
		{
			name:    "empty url",
			url:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			shopID, productID, err := ExtractIDs(tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidURL) {
					t.Fatalf("expected ErrInvalidURL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractIDs() error = %v", err)
			}
			if shopID != tt.shopID || productID != tt.productID {
				t.Fatalf("got (%s, %s), want (%s, %s)", shopID, productID, tt.shopID, tt.productID)
			}
		})
	}
}

func TestNormalizeRatings(t *testing.T) {
	t.Parallel()

	got, err := NormalizeRatings([]int{5, 1, 5, 3})
	if err != nil {
		t.Fatalf("NormalizeRatings() error = %v", err)
	}
	want := []int{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	if _, err := NormalizeRatings(nil); !errors.Is(err, ErrEmptyRatings) {
		t.Fatalf("expected ErrEmptyRatings, got %v", err)
	}
	if _, err := NormalizeRatings([]int{0}); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
	if _, err := NormalizeRatings([]int{6}); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
}

func TestSameRatingSet(t *testing.T) {
	t.Parallel()

	if !SameRatingSet([]int{1, 5}, []int{5, 1}) {
		t.Fatal("expected equal sets regardless of order")
	}
	if SameRatingSet([]int{1, 5}, []int{1}) {
		t.Fatal("expected different lengths to differ")
	}
	if SameRatingSet([]int{1, 2}, []int{1, 3}) {
		t.Fatal("expected different members to differ")
	}
}
