package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cruisesync-service/internal/domain/entity"
	"cruisesync-service/pkg/logger"
	"cruisesync-service/pkg/utils"
)

// Tree is the generic parsed form of one provider document. The provider
// schema varies too much across lines and feed versions for typed structs.
type Tree = map[string]interface{}

// ErrUnrecoverable marks a document whose content cannot be parsed even
// after corruption repair. No guess is made at intended content.
var ErrUnrecoverable = errors.New("document unrecoverable")

// scaledLineIDs are providers that report prices multiplied by 1000
// (the Riviera-class feeds). Correction happens exactly once, at extraction,
// on raw provider units.
var scaledLineIDs = map[int]bool{
	329: true,
}

// categoryKeys maps the provider's category spellings used by the
// cheapest.combined and cheapest.prices objects
var categoryKeys = map[entity.CabinCategory]string{
	entity.CategoryInterior:  "inside",
	entity.CategoryOceanview: "outside",
	entity.CategoryBalcony:   "balcony",
	entity.CategorySuite:     "suite",
}

// PricingNormalizer turns one raw sailing document into canonical pricing
type PricingNormalizer struct {
	logger logger.Logger
}

// NewPricingNormalizer creates a new pricing normalizer
func NewPricingNormalizer(log logger.Logger) *PricingNormalizer {
	return &PricingNormalizer{logger: log}
}

// Normalize parses the raw document, repairing the known corruption mode if
// present, and extracts per-category prices from the first source that
// yields each category. It returns the parsed tree for further mapping.
// All-null pricing is a valid outcome, not an error.
func (n *PricingNormalizer) Normalize(raw []byte, lineID int) (*entity.CanonicalPricing, Tree, error) {
	tree, err := n.parseDocument(raw)
	if err != nil {
		return nil, nil, err
	}

	pricing := &entity.CanonicalPricing{
		Currency: utils.TreeString(tree, "currency"),
	}

	sources := []func(Tree) map[entity.CabinCategory]*float64{
		n.extractDirect,
		n.extractCombined,
		n.extractPrices,
		n.extractMatrix,
	}

	// Priority-ordered extraction: the first source that yields a category
	// wins for that category.
	for _, source := range sources {
		found := source(tree)
		for _, c := range entity.Categories {
			if pricing.Category(c) == nil && found[c] != nil {
				pricing.SetCategory(c, found[c])
			}
		}
	}

	for _, c := range entity.Categories {
		v := pricing.Category(c)
		if v == nil {
			continue
		}
		price := *v
		if scaledLineIDs[lineID] {
			price /= 1000
		}
		price = utils.RoundMinor(price)
		pricing.SetCategory(c, &price)
	}

	pricing.ComputeCheapest()
	return pricing, tree, nil
}

// parseDocument unmarshals the raw bytes, applying corruption repair when
// the payload is a string serialized character-by-character into an object.
func (n *PricingNormalizer) parseDocument(raw []byte) (Tree, error) {
	var tree Tree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("%w: parse failed: %v (len=%d head=%q)", ErrUnrecoverable, err, len(raw), head(raw))
	}

	if !isCharWrapped(tree) {
		return tree, nil
	}

	repaired, err := repairCharWrapped(tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %v (len=%d head=%q)", ErrUnrecoverable, err, len(raw), head(raw))
	}
	n.logger.Warn("Repaired character-wrapped document", "bytes", len(raw))

	var fixed Tree
	if err := json.Unmarshal(repaired, &fixed); err != nil {
		return nil, fmt.Errorf("%w: repaired content not json: %v (len=%d head=%q)", ErrUnrecoverable, err, len(raw), head(raw))
	}
	return fixed, nil
}

// isCharWrapped detects the corruption mode where a JSON string was stored
// as {"0":"{","1":"\"","2":"c",...}
func isCharWrapped(tree Tree) bool {
	_, has0 := tree["0"]
	_, has1 := tree["1"]
	return has0 && has1
}

// repairCharWrapped concatenates values for keys "0".."N" in increasing
// numeric order until the next key is missing
func repairCharWrapped(tree Tree) ([]byte, error) {
	var sb strings.Builder
	for i := 0; ; i++ {
		v, ok := tree[strconv.Itoa(i)]
		if !ok {
			break
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("char-wrapped value at key %d is not a string", i)
		}
		sb.WriteString(s)
	}
	if sb.Len() == 0 {
		return nil, errors.New("char-wrapped document is empty")
	}
	return []byte(sb.String()), nil
}

func head(raw []byte) string {
	if len(raw) > 64 {
		raw = raw[:64]
	}
	return string(raw)
}

// extractDirect reads the top-level cheapestinside/outside/balcony/suite
// fields, each a price or a sub-object with price/total
func (n *PricingNormalizer) extractDirect(tree Tree) map[entity.CabinCategory]*float64 {
	return map[entity.CabinCategory]*float64{
		entity.CategoryInterior:  utils.PriceField(tree["cheapestinside"]),
		entity.CategoryOceanview: utils.PriceField(tree["cheapestoutside"]),
		entity.CategoryBalcony:   utils.PriceField(tree["cheapestbalcony"]),
		entity.CategorySuite:     utils.PriceField(tree["cheapestsuite"]),
	}
}

func (n *PricingNormalizer) extractCombined(tree Tree) map[entity.CabinCategory]*float64 {
	return extractCheapestSub(tree, "combined")
}

func (n *PricingNormalizer) extractPrices(tree Tree) map[entity.CabinCategory]*float64 {
	return extractCheapestSub(tree, "prices")
}

func extractCheapestSub(tree Tree, key string) map[entity.CabinCategory]*float64 {
	found := map[entity.CabinCategory]*float64{}
	sub := utils.TreeMap(utils.TreeMap(tree, "cheapest"), key)
	if sub == nil {
		return found
	}
	for category, providerKey := range categoryKeys {
		found[category] = utils.PriceField(sub[providerKey])
	}
	return found
}

// extractMatrix scans the full prices[rateCode][cabinCode][occupancyCode]
// matrix and takes, per mapped cabin category, the minimum positive price.
// The matrix is 3- or 4-level deep depending on the line; depth is detected
// by whether the cabin object exposes a price field directly.
func (n *PricingNormalizer) extractMatrix(tree Tree) map[entity.CabinCategory]*float64 {
	found := map[entity.CabinCategory]*float64{}
	matrix := utils.TreeMap(tree, "prices")
	for _, rateVal := range matrix {
		rate, ok := rateVal.(map[string]interface{})
		if !ok {
			continue
		}
		for _, cabinVal := range rate {
			cabin, ok := cabinVal.(map[string]interface{})
			if !ok {
				continue
			}

			category, haveCategory := utils.CabinCategoryFromType(utils.TreeString(cabin, "cabintype"))

			if price := matrixPrice(cabin); price != nil {
				// 3-level: price sits on the cabin object itself.
				if haveCategory {
					keepMin(found, category, price)
				}
				continue
			}

			// 4-level: one more level of occupancy objects.
			for _, occVal := range cabin {
				occ, ok := occVal.(map[string]interface{})
				if !ok {
					continue
				}
				occCategory, ok := category, haveCategory
				if !ok {
					occCategory, ok = utils.CabinCategoryFromType(utils.TreeString(occ, "cabintype"))
				}
				if !ok {
					continue
				}
				keepMin(found, occCategory, matrixPrice(occ))
			}
		}
	}
	return found
}

func matrixPrice(m map[string]interface{}) *float64 {
	if p := utils.ParsePrice(m["price"]); p != nil {
		return p
	}
	return utils.ParsePrice(m["adultprice"])
}

func keepMin(found map[entity.CabinCategory]*float64, c entity.CabinCategory, price *float64) {
	if price == nil {
		return
	}
	if current := found[c]; current == nil || *price < *current {
		found[c] = price
	}
}
