package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/models"
)

var errProductNotFound = errors.New("product not found")

// productInput is the admin payload for create and partial update. Nil
// fields are left untouched.
type productInput struct {
	Name              *string                   `json:"name"`
	Slug              *string                   `json:"slug"`
	Description       *string                   `json:"description"`
	ShortDescription  *string                   `json:"shortDescription"`
	Price             *float64                  `json:"price"`
	DiscountPrice     *float64                  `json:"discountPrice"`
	Brand             *string                   `json:"brand"`
	UnitCount         *int                      `json:"unitCount"`
	UnitName          *string                   `json:"unitName"`
	PackageSize       *string                   `json:"packageSize"`
	Variants          *[]models.ProductVariant  `json:"variants"`
	Sizes             *[]string                 `json:"sizes"`
	Colors            *[]string                 `json:"colors"`
	Stock             *int                      `json:"stock"`
	TargetAudience    *[]string                 `json:"targetAudience"`
	ProductForm       *[]string                 `json:"productForm"`
	Images            *[]string                 `json:"images"`
	VideoURL          *string                   `json:"videoUrl"`
	PrimaryMedia      *string                   `json:"primaryMedia"`
	Benefits          *[]string                 `json:"benefits"`
	DetailedBenefits  *[]models.DetailedBenefit `json:"detailedBenefits"`
	Ingredients       *[]string                 `json:"ingredients"`
	UsageInstructions *string                   `json:"usageInstructions"`
	IsFeatured        *bool                     `json:"isFeatured"`
	IsBestSeller      *bool                     `json:"isBestSeller"`
	IsNewLaunch       *bool                     `json:"isNewLaunch"`
	IsSuperSaver      *bool                     `json:"isSuperSaver"`
}

type resolvedCategories struct {
	Audience []primitive.ObjectID
	Form     []primitive.ObjectID
}

// apply copies the provided fields onto p and returns them as a $set document.
// Prices are merged by resolveDiscountUpdate and written by the caller.
func (in productInput) apply(p *models.Product, cats resolvedCategories) bson.M {
	set := bson.M{}

	setString := func(field string, src *string, dst *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
			set[field] = *dst
		}
	}
	setList := func(field string, src *[]string, dst *models.StringList) {
		if src != nil {
			*dst = models.StringList(cleanStrings(*src))
			set[field] = *dst
		}
	}
	setBool := func(field string, src *bool, dst *bool) {
		if src != nil {
			*dst = *src
			set[field] = *dst
		}
	}

	setString("name", in.Name, &p.Name)
	setString("description", in.Description, &p.Description)
	setString("shortDescription", in.ShortDescription, &p.ShortDescription)
	setString("brand", in.Brand, &p.Brand)
	setString("unitName", in.UnitName, &p.UnitName)
	setString("packageSize", in.PackageSize, &p.PackageSize)
	setString("videoUrl", in.VideoURL, &p.VideoURL)
	setString("primaryMedia", in.PrimaryMedia, &p.PrimaryMedia)
	setString("usageInstructions", in.UsageInstructions, &p.UsageInstructions)

	if in.Slug != nil {
		p.Slug = slugify(*in.Slug)
		set["slug"] = p.Slug
	}
	if in.UnitCount != nil {
		p.UnitCount = *in.UnitCount
		set["unitCount"] = p.UnitCount
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
		set["stock"] = p.Stock
	}
	if in.Variants != nil {
		p.Variants = *in.Variants
		set["variants"] = p.Variants
	}
	if in.DetailedBenefits != nil {
		p.DetailedBenefits = *in.DetailedBenefits
		set["detailedBenefits"] = p.DetailedBenefits
	}

	setList("sizes", in.Sizes, &p.Sizes)
	setList("colors", in.Colors, &p.Colors)
	setList("images", in.Images, &p.Images)
	setList("benefits", in.Benefits, &p.Benefits)
	setList("ingredients", in.Ingredients, &p.Ingredients)

	if in.TargetAudience != nil {
		p.TargetAudience = cats.Audience
		set["targetAudience"] = p.TargetAudience
	}
	if in.ProductForm != nil {
		p.ProductForm = cats.Form
		set["productForm"] = p.ProductForm
	}

	setBool("isFeatured", in.IsFeatured, &p.IsFeatured)
	setBool("isBestSeller", in.IsBestSeller, &p.IsBestSeller)
	setBool("isNewLaunch", in.IsNewLaunch, &p.IsNewLaunch)
	setBool("isSuperSaver", in.IsSuperSaver, &p.IsSuperSaver)

	return set
}

func cleanStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
	slugDashes  = regexp.MustCompile(`-{2,}`)
)

func slugify(value string) string {
	slug := strings.ToLower(strings.TrimSpace(value))
	slug = strings.Join(strings.Fields(slug), "-")
	slug = slugInvalid.ReplaceAllString(slug, "")
	slug = slugDashes.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

/* =======================
   CATEGORY REFERENCES
======================= */

// resolveCategoryIDs parses ids and checks that each names a category.
func resolveCategoryIDs(ctx context.Context, db *mongo.Database, raw []string) ([]primitive.ObjectID, error) {
	ids, err := parseObjectIDs(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid category id")
	}

	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	unique := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return []primitive.ObjectID{}, nil
	}

	count, err := db.Collection("categories").CountDocuments(ctx, bson.M{"_id": bson.M{"$in": unique}})
	if err != nil {
		return nil, err
	}
	if int(count) != len(unique) {
		return nil, fmt.Errorf("category not found")
	}
	return unique, nil
}

func (in productInput) resolveCategories(ctx context.Context, db *mongo.Database) (resolvedCategories, error) {
	var cats resolvedCategories
	var err error
	if in.TargetAudience != nil {
		if cats.Audience, err = resolveCategoryIDs(ctx, db, *in.TargetAudience); err != nil {
			return cats, err
		}
	}
	if in.ProductForm != nil {
		if cats.Form, err = resolveCategoryIDs(ctx, db, *in.ProductForm); err != nil {
			return cats, err
		}
	}
	return cats, nil
}

/* =======================
   QUERIES
======================= */

func liveProductFilter() bson.M {
	return bson.M{"isDeleted": bson.M{"$ne": true}}
}

func lookupCategories(localField, as string) bson.D {
	return bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: "categories"},
		{Key: "localField", Value: localField},
		{Key: "foreignField", Value: "_id"},
		{Key: "pipeline", Value: bson.A{
			bson.D{{Key: "$project", Value: bson.D{{Key: "name", Value: 1}}}},
		}},
		{Key: "as", Value: as},
	}}}
}

func productPipeline(match bson.M, sort bson.D, skip, limit int64) mongo.Pipeline {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: match}}}
	if len(sort) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: sort}})
	}
	if limit > 0 {
		pipeline = append(pipeline,
			bson.D{{Key: "$skip", Value: skip}},
			bson.D{{Key: "$limit", Value: limit}},
		)
	}
	return append(pipeline,
		lookupCategories("targetAudience", "audience"),
		lookupCategories("productForm", "form"),
	)
}

func productSort(sort string) bson.D {
	switch sort {
	case "priceLow":
		return bson.D{{Key: "price", Value: 1}, {Key: "_id", Value: 1}}
	case "priceHigh":
		return bson.D{{Key: "price", Value: -1}, {Key: "_id", Value: 1}}
	default:
		return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	}
}

// productListFilter builds the $match stage of the catalog listing.
func productListFilter(c *gin.Context) (bson.M, error) {
	filter := liveProductFilter()

	if keyword := strings.TrimSpace(c.Query("keyword")); keyword != "" {
		filter["name"] = bson.M{"$regex": regexp.QuoteMeta(keyword), "$options": "i"}
	}

	for _, flag := range productFlagFields {
		if v := strings.TrimSpace(c.Query(flag)); v != "" {
			filter[flag] = v == "true"
		}
	}

	for param, field := range map[string]string{"audience": "targetAudience", "form": "productForm"} {
		ids, err := parseObjectIDs(splitCSV(c.Query(param)))
		if err != nil {
			return nil, fmt.Errorf("invalid %s id", param)
		}
		if len(ids) > 0 {
			filter[field] = bson.M{"$in": ids}
		}
	}

	priceRange := bson.M{}
	for param, op := range map[string]string{"minPrice": "$gte", "maxPrice": "$lte"} {
		raw := strings.TrimSpace(c.Query(param))
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s", param)
		}
		priceRange[op] = value
	}
	if len(priceRange) > 0 {
		filter["price"] = priceRange
	}

	return filter, nil
}

func findProduct(ctx context.Context, db *mongo.Database, id primitive.ObjectID) (models.Product, error) {
	match := liveProductFilter()
	match["_id"] = id

	cursor, err := db.Collection("products").Aggregate(ctx, productPipeline(match, nil, 0, 0))
	if err != nil {
		return models.Product{}, err
	}
	defer cursor.Close(ctx)

	products, err := decodeProducts(ctx, cursor)
	if err != nil {
		return models.Product{}, err
	}
	if len(products) == 0 {
		return models.Product{}, errProductNotFound
	}
	return products[0], nil
}

/* =======================
   GET /api/products
======================= */

func GetProducts(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		filter, err := productListFilter(c)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		window, err := parsePageWindow(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		cursor, err := db.Collection("products").Aggregate(ctx, productPipeline(filter, productSort(c.Query("sort")), window.Skip, window.Limit))
		if err != nil {
			log.Printf("[%s] aggregate failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}
		defer cursor.Close(ctx)

		products, err := decodeProducts(ctx, cursor)
		if err != nil {
			log.Printf("[%s] decode failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		log.Printf("[%s] returning %d products", route, len(products))
		c.JSON(http.StatusOK, products)
	}
}

/* =======================
   GET /api/products/:id
======================= */

func GetProductByID(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusNotFound, route, "Product not found")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		product, err := findProduct(ctx, db, id)
		if errors.Is(err, errProductNotFound) {
			respondWithError(c, http.StatusNotFound, route, "Product not found")
			return
		}
		if err != nil {
			log.Printf("[%s] lookup failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		c.JSON(http.StatusOK, product)
	}
}

/* =======================
   POST /api/products (admin)
======================= */

// bindProductInput reads JSON bodies, or multipart forms whose image files
// are stored through uploads.
func bindProductInput(c *gin.Context, uploads *UploadStorage) (productInput, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		return parseMultipartProductRequest(c, uploads)
	}
	var in productInput
	if err := c.ShouldBindJSON(&in); err != nil {
		return productInput{}, fmt.Errorf("invalid request body")
	}
	return in, nil
}

func CreateProduct(db *mongo.Database, uploads *UploadStorage) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/products"
		defer handlePanic(c, route)

		in, err := bindProductInput(c, uploads)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
			respondWithError(c, http.StatusBadRequest, route, "name is required")
			return
		}
		if in.Price == nil || *in.Price <= 0 {
			respondWithError(c, http.StatusBadRequest, route, "price must be greater than 0")
			return
		}
		if in.Stock != nil && *in.Stock < 0 {
			respondWithError(c, http.StatusBadRequest, route, "stock must be zero or greater")
			return
		}

		prices, err := resolveDiscountUpdate(0, 0, discountUpdateInput{Price: in.Price, DiscountPrice: in.DiscountPrice})
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		cats, err := in.resolveCategories(ctx, db)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		now := time.Now()
		product := models.Product{
			ID:             primitive.NewObjectID(),
			TargetAudience: []primitive.ObjectID{},
			ProductForm:    []primitive.ObjectID{},
			Images:         models.StringList{},
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		in.apply(&product, cats)
		product.Price = prices.Price
		product.DiscountPrice = prices.DiscountPrice
		if product.Slug == "" {
			product.Slug = slugify(product.Name)
		}

		if _, err := db.Collection("products").InsertOne(ctx, product); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				respondWithError(c, http.StatusBadRequest, route, "Product slug already exists")
				return
			}
			log.Printf("[%s] insert failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		log.Println("[PRODUCT] [INFO] product created:", product.ID.Hex())
		respondWithProduct(ctx, c, db, route, product.ID, http.StatusCreated)
	}
}

func respondWithProduct(ctx context.Context, c *gin.Context, db *mongo.Database, route string, id primitive.ObjectID, status int) {
	product, err := findProduct(ctx, db, id)
	if err != nil {
		log.Printf("[%s] reload failed: %v", route, err)
		respondWithError(c, http.StatusInternalServerError, route, "Server Error")
		return
	}
	c.JSON(status, product)
}

/* =======================
   PUT /api/products/:id (admin)
======================= */

func UpdateProduct(db *mongo.Database, uploads *UploadStorage) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/products/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusNotFound, route, "Product not found")
			return
		}

		in, err := bindProductInput(c, uploads)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
			respondWithError(c, http.StatusBadRequest, route, "name must not be empty")
			return
		}
		if in.Stock != nil && *in.Stock < 0 {
			respondWithError(c, http.StatusBadRequest, route, "stock must be zero or greater")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		filter := liveProductFilter()
		filter["_id"] = id

		var existing models.Product
		err = db.Collection("products").FindOne(ctx, filter).Decode(&existing)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "Product not found")
			return
		}
		if err != nil {
			log.Printf("[%s] lookup failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		prices, err := resolveDiscountUpdate(existing.Price, existing.DiscountPrice, discountUpdateInput{Price: in.Price, DiscountPrice: in.DiscountPrice})
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		cats, err := in.resolveCategories(ctx, db)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		set := in.apply(&existing, cats)
		if in.Price != nil || in.DiscountPrice != nil {
			set["price"] = prices.Price
			set["discountPrice"] = prices.DiscountPrice
		}
		set["updatedAt"] = time.Now()

		res, err := db.Collection("products").UpdateOne(ctx, filter, bson.M{"$set": set})
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				respondWithError(c, http.StatusBadRequest, route, "Product slug already exists")
				return
			}
			log.Printf("[%s] update failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "Product not found")
			return
		}

		respondWithProduct(ctx, c, db, route, id, http.StatusOK)
	}
}

/* =======================
   DELETE /api/products/:id (admin, soft)
======================= */

// DeleteProduct hides the product. Image files stay on disk because placed
// orders keep pointing at them.
func DeleteProduct(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/products/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusNotFound, route, "Product not found")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		filter := liveProductFilter()
		filter["_id"] = id

		now := time.Now()
		res, err := db.Collection("products").UpdateOne(ctx, filter, bson.M{"$set": bson.M{
			"isDeleted": true,
			"deletedAt": now,
			"updatedAt": now,
		}})
		if err != nil {
			log.Printf("[%s] delete failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "Product not found")
			return
		}

		log.Println("[PRODUCT] [INFO] product removed:", id.Hex())
		c.JSON(http.StatusOK, gin.H{"message": "Product removed"})
	}
}
