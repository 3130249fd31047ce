package handlers

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

/*
=======================
  MULTIPART PRODUCT FORM
=======================
*/

// parseMultipartProductRequest fills a productInput from form fields. Files
// sent as "images" are stored and appended after any image URLs in the form.
func parseMultipartProductRequest(c *gin.Context, uploads *UploadStorage) (productInput, error) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		log.Println("[PRODUCT] [ERROR] multipart parse failed:", err)
		return productInput{}, fmt.Errorf("invalid multipart form")
	}

	var in productInput

	// ---- STRING FIELDS ----

	for field, dst := range map[string]**string{
		"name":              &in.Name,
		"slug":              &in.Slug,
		"description":       &in.Description,
		"shortDescription":  &in.ShortDescription,
		"brand":             &in.Brand,
		"unitName":          &in.UnitName,
		"packageSize":       &in.PackageSize,
		"videoUrl":          &in.VideoURL,
		"primaryMedia":      &in.PrimaryMedia,
		"usageInstructions": &in.UsageInstructions,
	} {
		if value, ok := c.GetPostForm(field); ok {
			v := strings.TrimSpace(value)
			*dst = &v
		}
	}

	// ---- NUMBER FIELDS ----

	for field, dst := range map[string]**float64{
		"price":         &in.Price,
		"discountPrice": &in.DiscountPrice,
	} {
		if value, ok := c.GetPostForm(field); ok {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				return productInput{}, fmt.Errorf("invalid %s", field)
			}
			*dst = &parsed
		}
	}

	for field, dst := range map[string]**int{
		"stock":     &in.Stock,
		"unitCount": &in.UnitCount,
	} {
		if value, ok := c.GetPostForm(field); ok {
			parsed, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return productInput{}, fmt.Errorf("invalid %s", field)
			}
			*dst = &parsed
		}
	}

	// ---- BOOL FIELDS ----

	for field, dst := range map[string]**bool{
		"isFeatured":   &in.IsFeatured,
		"isBestSeller": &in.IsBestSeller,
		"isNewLaunch":  &in.IsNewLaunch,
		"isSuperSaver": &in.IsSuperSaver,
	} {
		values := c.PostFormArray(field)
		if len(values) == 0 {
			continue
		}
		// checkbox forms send a hidden "false" before the checked value
		parsed, err := parseBoolValue(values[len(values)-1])
		if err != nil {
			return productInput{}, fmt.Errorf("invalid %s", field)
		}
		*dst = &parsed
	}

	// ---- LIST FIELDS ----

	for field, dst := range map[string]**[]string{
		"sizes":          &in.Sizes,
		"colors":         &in.Colors,
		"benefits":       &in.Benefits,
		"ingredients":    &in.Ingredients,
		"targetAudience": &in.TargetAudience,
		"productForm":    &in.ProductForm,
		"images":         &in.Images,
	} {
		if values, ok := c.GetPostFormArray(field); ok {
			list := values
			*dst = &list
		}
	}

	// ---- IMAGE FILES ----

	if c.Request.MultipartForm != nil {
		if files := c.Request.MultipartForm.File["images"]; len(files) > 0 {
			if uploads == nil {
				return productInput{}, fmt.Errorf("file uploads are not enabled")
			}
			images := []string{}
			if in.Images != nil {
				images = append(images, *in.Images...)
			}
			for _, file := range files {
				url, err := uploads.Save(file, imageMedia)
				if err != nil {
					return productInput{}, err
				}
				images = append(images, url)
			}
			in.Images = &images
		}
	}

	return in, nil
}

func parseBoolValue(value string) (bool, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "on" {
		return true, nil
	}
	return strconv.ParseBool(value)
}
