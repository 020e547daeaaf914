package usecase

import (
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"cruisesync-service/internal/domain/entity"
	"cruisesync-service/pkg/logger"
)

func newTestNormalizer() *PricingNormalizer {
	return NewPricingNormalizer(logger.NewNopLogger())
}

func fptr(v float64) *float64 { return &v }

func checkPrice(t *testing.T, name string, got, want *float64) {
	t.Helper()
	if want == nil {
		if got != nil {
			t.Errorf("%s = %v, want nil", name, *got)
		}
		return
	}
	if got == nil {
		t.Errorf("%s = nil, want %v", name, *want)
		return
	}
	if *got != *want {
		t.Errorf("%s = %v, want %v", name, *got, *want)
	}
}

// charWrap serializes a document string character-by-character into a JSON
// object, reproducing the known corruption mode.
func charWrap(t *testing.T, doc string) []byte {
	t.Helper()
	m := map[string]string{}
	for i := 0; i < len(doc); i++ {
		m[strconv.Itoa(i)] = string(doc[i])
	}
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal wrapped doc: %v", err)
	}
	return raw
}

func TestNormalizeDirectFields(t *testing.T) {
	raw := []byte(`{"cheapestinside":"423.50"}`)

	pricing, _, err := newTestNormalizer().Normalize(raw, 1)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	checkPrice(t, "interior", pricing.Interior, fptr(423.50))
	checkPrice(t, "oceanview", pricing.Oceanview, nil)
	checkPrice(t, "balcony", pricing.Balcony, nil)
	checkPrice(t, "suite", pricing.Suite, nil)
	checkPrice(t, "cheapest", pricing.Cheapest, fptr(423.50))
	if pricing.CheapestCategory == nil || *pricing.CheapestCategory != entity.CategoryInterior {
		t.Errorf("cheapestCategory = %v, want interior", pricing.CheapestCategory)
	}
}

func TestNormalizeAllSourceShapesAgree(t *testing.T) {
	// The same logical prices expressed in each of the four source shapes
	// must yield identical canonical pricing.
	docs := map[string]string{
		"direct": `{
			"cheapestinside": "400", "cheapestoutside": 500,
			"cheapestbalcony": {"price": "600"}, "cheapestsuite": {"total": 900}
		}`,
		"combined": `{"cheapest": {"combined": {
			"inside": "400", "outside": 500, "balcony": "600", "suite": 900
		}}}`,
		"prices": `{"cheapest": {"prices": {
			"inside": 400, "outside": "500", "balcony": 600, "suite": "900"
		}}}`,
		"matrix": `{"prices": {
			"RATE1": {
				"IA": {"cabintype": "Inside", "101": {"price": "450"}, "102": {"price": 400}},
				"OV": {"cabintype": "Outside", "price": 500},
				"BA": {"101": {"cabintype": "Balcony", "adultprice": 600}},
				"SU": {"cabintype": "Grand Suite", "101": {"price": 900}}
			}
		}}`,
	}

	for shape, doc := range docs {
		t.Run(shape, func(t *testing.T) {
			pricing, _, err := newTestNormalizer().Normalize([]byte(doc), 1)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			checkPrice(t, "interior", pricing.Interior, fptr(400))
			checkPrice(t, "oceanview", pricing.Oceanview, fptr(500))
			checkPrice(t, "balcony", pricing.Balcony, fptr(600))
			checkPrice(t, "suite", pricing.Suite, fptr(900))
			checkPrice(t, "cheapest", pricing.Cheapest, fptr(400))
			if *pricing.CheapestCategory != entity.CategoryInterior {
				t.Errorf("cheapestCategory = %v, want interior", *pricing.CheapestCategory)
			}
		})
	}
}

func TestNormalizeSourcePriorityPerCategory(t *testing.T) {
	// Direct fields beat combined, combined beats prices, and each category
	// picks its own first matching source.
	raw := []byte(`{
		"cheapestinside": 100,
		"cheapest": {
			"combined": {"inside": 999, "outside": 200},
			"prices": {"inside": 999, "outside": 999, "balcony": 300}
		}
	}`)

	pricing, _, err := newTestNormalizer().Normalize(raw, 1)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	checkPrice(t, "interior", pricing.Interior, fptr(100))
	checkPrice(t, "oceanview", pricing.Oceanview, fptr(200))
	checkPrice(t, "balcony", pricing.Balcony, fptr(300))
	checkPrice(t, "suite", pricing.Suite, nil)
}

func TestNormalizeMatrixTakesMinimum(t *testing.T) {
	raw := []byte(`{"prices": {"RATE1": {
		"CABIN1": {"cabintype": "balcony", "101": {"price": "500"}},
		"CABIN2": {"cabintype": "balcony", "101": {"price": "450"}}
	}}}`)

	pricing, _, err := newTestNormalizer().Normalize(raw, 1)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	checkPrice(t, "balcony", pricing.Balcony, fptr(450))
	checkPrice(t, "cheapest", pricing.Cheapest, fptr(450))
}

func TestNormalizeDefensiveValues(t *testing.T) {
	// Non-numeric, empty, zero and negative prices are absent, never zero.
	raw := []byte(`{
		"cheapestinside": "abc",
		"cheapestoutside": "",
		"cheapestbalcony": 0,
		"cheapestsuite": -42
	}`)

	pricing, _, err := newTestNormalizer().Normalize(raw, 1)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if pricing.HasPricing() {
		t.Errorf("expected all-null pricing, got cheapest=%v", pricing.Cheapest)
	}
	if pricing.CheapestCategory != nil {
		t.Errorf("cheapestCategory = %v, want nil", *pricing.CheapestCategory)
	}
}

func TestNormalizeUnitCorrection(t *testing.T) {
	raw := []byte(`{"cheapest": {"combined": {"balcony": 934000}}}`)

	// Line 329 reports prices scaled x1000.
	pricing, _, err := newTestNormalizer().Normalize(raw, 329)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	checkPrice(t, "balcony", pricing.Balcony, fptr(934.00))

	// Any other line keeps raw units.
	pricing, _, err = newTestNormalizer().Normalize(raw, 7)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	checkPrice(t, "balcony", pricing.Balcony, fptr(934000))
}

func TestNormalizeRoundsToMinorUnit(t *testing.T) {
	raw := []byte(`{"cheapestinside": "423.505"}`)

	pricing, _, err := newTestNormalizer().Normalize(raw, 1)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	checkPrice(t, "interior", pricing.Interior, fptr(423.51))
}

func TestNormalizeCheapestTieBreak(t *testing.T) {
	raw := []byte(`{"cheapestoutside": 500, "cheapestbalcony": 500}`)

	pricing, _, err := newTestNormalizer().Normalize(raw, 1)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if *pricing.CheapestCategory != entity.CategoryOceanview {
		t.Errorf("cheapestCategory = %v, want oceanview (declaration order wins ties)", *pricing.CheapestCategory)
	}
}

func TestNormalizeRepairsCharWrappedDocument(t *testing.T) {
	doc := `{"codetocruiseid":"12345","cheapestinside":"423.50","cheapestsuite":1800}`

	direct, _, err := newTestNormalizer().Normalize([]byte(doc), 1)
	if err != nil {
		t.Fatalf("Normalize direct: %v", err)
	}
	repaired, _, err := newTestNormalizer().Normalize(charWrap(t, doc), 1)
	if err != nil {
		t.Fatalf("Normalize wrapped: %v", err)
	}

	for _, c := range entity.Categories {
		checkPrice(t, string(c), repaired.Category(c), direct.Category(c))
	}
	checkPrice(t, "cheapest", repaired.Cheapest, direct.Cheapest)
}

func TestNormalizeRepairedDocumentWithoutPricing(t *testing.T) {
	// {"0":"{","1":"\"","2":"a","3":"\"","4":":","5":"1","6":"}"} -> {"a":1}
	raw := []byte(`{"0":"{","1":"\"","2":"a","3":"\"","4":":","5":"1","6":"}"}`)

	pricing, tree, err := newTestNormalizer().Normalize(raw, 1)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got, ok := tree["a"].(float64); !ok || got != 1 {
		t.Errorf(`repaired tree["a"] = %v, want 1`, tree["a"])
	}
	if pricing.HasPricing() {
		t.Errorf("expected all-null pricing from repaired doc, got cheapest=%v", pricing.Cheapest)
	}
}

func TestNormalizeUnrecoverableDocuments(t *testing.T) {
	cases := map[string][]byte{
		"not json":           []byte(`this is not json at all`),
		"wrapped non-string": []byte(`{"0":"{","1":2}`),
		"wrapped not json":   charWrap(t, `{"name": truncated`),
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := newTestNormalizer().Normalize(raw, 1)
			if !errors.Is(err, ErrUnrecoverable) {
				t.Errorf("Normalize err = %v, want ErrUnrecoverable", err)
			}
		})
	}
}
