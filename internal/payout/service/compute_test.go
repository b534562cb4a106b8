package service

import (
	"testing"

	providerdomain "github.com/tipwave/tipwave/internal/provider/domain"
	restaurantdomain "github.com/tipwave/tipwave/internal/restaurant/domain"
)

func TestComputeNet(t *testing.T) {
	cases := []struct {
		name     string
		gross    int64
		fee      int64
		feePayer string
		want     int64
	}{
		{"employee pays fee", 5000, 100, restaurantdomain.FeePayerEmployee, 4900},
		{"restaurant pays fee", 5000, 100, restaurantdomain.FeePayerRestaurant, 5000},
		{"fee exceeds gross", 50, 100, restaurantdomain.FeePayerEmployee, -50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := computeNet(tc.gross, tc.fee, tc.feePayer); got != tc.want {
				t.Fatalf("computeNet(%d, %d, %s) = %d, want %d", tc.gross, tc.fee, tc.feePayer, got, tc.want)
			}
		})
	}
}

func TestSelectRail(t *testing.T) {
	cases := []struct {
		name       string
		effective  int64
		threshold  int64
		methodType string
		want       string
	}{
		{"at threshold stays on ach", 5200, 5200, providerdomain.MethodTypeRTP, restaurantdomain.RailSameDayACH},
		{"above threshold with rtp", 5201, 5200, providerdomain.MethodTypeRTP, restaurantdomain.RailInstant},
		{"above threshold with rtp bank", 5201, 5200, providerdomain.MethodTypeRTPBank, restaurantdomain.RailInstant},
		{"above threshold with debit card", 5201, 5200, providerdomain.MethodTypeDebitCard, restaurantdomain.RailInstant},
		{"above threshold without instant method", 5201, 5200, "ach_bank", restaurantdomain.RailSameDayACH},
		{"below threshold", 100, 5200, providerdomain.MethodTypeDebitCard, restaurantdomain.RailSameDayACH},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := selectRail(tc.effective, tc.threshold, tc.methodType); got != tc.want {
				t.Fatalf("selectRail(%d, %d, %s) = %s, want %s", tc.effective, tc.threshold, tc.methodType, got, tc.want)
			}
		})
	}
}
