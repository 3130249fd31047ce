package handlers

import "fmt"

type discountUpdateInput struct {
	Price         *float64
	DiscountPrice *float64
}

type discountUpdateResult struct {
	Price         float64
	DiscountPrice float64
}

func isProductOnSale(price, discountPrice float64) bool {
	return discountPrice > 0 && discountPrice < price
}

func effectiveProductPrice(price, discountPrice float64) float64 {
	if isProductOnSale(price, discountPrice) {
		return discountPrice
	}
	return price
}

// validateDiscount accepts no discount (0) or one strictly between 0 and price.
func validateDiscount(price, discountPrice float64) error {
	if price < 0 {
		return fmt.Errorf("price must not be negative")
	}
	if discountPrice == 0 {
		return nil
	}
	if discountPrice < 0 {
		return fmt.Errorf("discountPrice must be greater than 0")
	}
	if discountPrice >= price {
		return fmt.Errorf("discountPrice must be less than price")
	}
	return nil
}

// resolveDiscountUpdate merges a partial update into the stored prices and
// validates the pair that would be written.
func resolveDiscountUpdate(existingPrice, existingDiscount float64, input discountUpdateInput) (discountUpdateResult, error) {
	result := discountUpdateResult{
		Price:         existingPrice,
		DiscountPrice: existingDiscount,
	}
	if input.Price != nil {
		result.Price = *input.Price
	}
	if input.DiscountPrice != nil {
		result.DiscountPrice = *input.DiscountPrice
	}

	if err := validateDiscount(result.Price, result.DiscountPrice); err != nil {
		return discountUpdateResult{}, err
	}
	return result, nil
}
