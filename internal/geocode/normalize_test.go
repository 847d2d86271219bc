package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"123 Main St, Suite 200, Springfield, IL": "123 Main St, Springfield, IL",
		"9 Elm Ave Apt 4B, Dover":                 "9 Elm Ave, Dover",
		"77 Oak Rd #12, Salem, OR":                "77 Oak Rd, Salem, OR",
		"  1  Pine   St ,, Floor 3 , Austin  ":    "1 Pine St, Austin",
		"Bldg. C, 4 Market Sq":                    "4 Market Sq",
		"500 Lake Dr, Orlando, FL":                "500 Lake Dr, Orlando, FL",
		"Apt B-2, 5 Oak Ln":                       "5 Oak Ln",
		"":                                        "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestNormalizeKeepsStreetAndPlaceNames(t *testing.T) {
	for _, in := range []string{
		"100 Market St, Ste. Genevieve, MO 63670",
		"12 Rue Ste Catherine, Montreal",
		"1 Unit Rd, Springfield",
		"40 Building Way, Apt Creek, OR",
	} {
		assert.Equal(t, in, Normalize(in))
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"123 Main St, Suite 200, Springfield, IL",
		"Unit 5 Unit 6, Rm 7, 1 Way",
		", , ,",
		"4 Elm St STE. #A-1, Room 9 , Reno",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), in)
	}
}
