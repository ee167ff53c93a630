package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/memettekkee/PT-SDA-BE-TEST-sub000/internal/domain"
	"github.com/memettekkee/PT-SDA-BE-TEST-sub000/internal/store"
)

// HTTPHandler exposes the catalog store over REST.
type HTTPHandler struct {
	store    *store.Store
	validate *validator.Validate
	log      *zap.Logger
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(s *store.Store, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		store:    s,
		validate: validator.New(),
		log:      log,
	}
}

// RegisterRoutes mounts every catalog endpoint under /api/v1.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)
			r.Get("/", h.ListUsers)
			r.Get("/{id}", h.GetUser)
			r.Patch("/{id}", h.UpdateUser)
			r.Delete("/{id}", h.DeleteUser)
		})
		r.Route("/merchants", func(r chi.Router) {
			r.Post("/", h.CreateMerchant)
			r.Get("/", h.ListMerchants)
			r.Get("/{id}", h.GetMerchant)
			r.Patch("/{id}", h.UpdateMerchant)
			r.Delete("/{id}", h.DeleteMerchant)
		})
		r.Route("/categories", func(r chi.Router) {
			r.Post("/", h.CreateCategory)
			r.Get("/", h.ListCategories)
			r.Get("/{id}", h.GetCategory)
			r.Patch("/{id}", h.UpdateCategory)
			r.Delete("/{id}", h.DeleteCategory)
		})
		r.Route("/colours", func(r chi.Router) {
			r.Post("/", h.CreateColour)
			r.Get("/", h.ListColours)
			r.Get("/{id}", h.GetColour)
			r.Patch("/{id}", h.UpdateColour)
			r.Delete("/{id}", h.DeleteColour)
		})
		r.Route("/sizes", func(r chi.Router) {
			r.Post("/", h.CreateSize)
			r.Get("/", h.ListSizes)
			r.Get("/{id}", h.GetSize)
			r.Patch("/{id}", h.UpdateSize)
			r.Delete("/{id}", h.DeleteSize)
		})
		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.CreateProduct)
			r.Get("/", h.ListProducts)
			r.Get("/stats", h.ProductStats)
			r.Get("/group-by", h.GroupProducts)
			r.Get("/{id}", h.GetProduct)
			r.Patch("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
		})
		r.Route("/variants", func(r chi.Router) {
			r.Post("/", h.CreateVariant)
			r.Get("/", h.ListVariants)
			r.Get("/{id}", h.GetVariant)
			r.Patch("/{id}", h.UpdateVariant)
			r.Post("/{id}/stock", h.AdjustVariantStock)
			r.Delete("/{id}", h.DeleteVariant)
		})
	})
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// storeError translates the store failure taxonomy into HTTP statuses.
func (h *HTTPHandler) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, store.ErrConstraintViolation):
		respondWithError(w, http.StatusConflict, "constraint violation: "+err.Error())
	case errors.Is(err, store.ErrInvalidGroupBy):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrConnectionFailure):
		h.log.Error("store unreachable", zap.String("op", op), zap.Error(err))
		respondWithError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		h.log.Error("store operation failed", zap.String("op", op), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, input any) bool {
	if err := json.NewDecoder(r.Body).Decode(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload: "+err.Error())
		return false
	}
	defer r.Body.Close()
	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return false
	}
	return true
}

// pagination reads the shared windowing parameters: either page/limit or
// cursor/take.
type pagination struct {
	Limit  int
	Offset int
	Cursor *string
	Take   int
}

func parsePagination(r *http.Request) pagination {
	q := r.URL.Query()
	var p pagination
	if c := q.Get("cursor"); c != "" {
		p.Cursor = &c
		p.Take, _ = strconv.Atoi(q.Get("take"))
		if p.Take == 0 {
			p.Take = 10
		}
		return p
	}
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page <= 0 {
		page = 1
	}
	p.Limit = limit
	p.Offset = (page - 1) * limit
	return p
}

func parseOrder(r *http.Request) []store.Order {
	field := r.URL.Query().Get("sort")
	if field == "" {
		return nil
	}
	return []store.Order{{Field: field, Desc: strings.EqualFold(r.URL.Query().Get("order"), "desc")}}
}

func includes(r *http.Request) map[string]bool {
	out := map[string]bool{}
	for _, inc := range strings.Split(r.URL.Query().Get("include"), ",") {
		if inc = strings.TrimSpace(inc); inc != "" {
			out[inc] = true
		}
	}
	return out
}

func nullStr(v *string) *sql.NullString {
	if v == nil {
		return nil
	}
	return &sql.NullString{String: *v, Valid: true}
}

func nullFloat(v *float64) *sql.NullFloat64 {
	if v == nil {
		return nil
	}
	return &sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(v *time.Time) *sql.NullTime {
	if v == nil {
		return nil
	}
	return &sql.NullTime{Time: *v, Valid: true}
}

func strFilter(v string) *store.StringFilter {
	if v == "" {
		return nil
	}
	return &store.StringFilter{Equals: &v}
}

func searchFilter(v string) *store.StringFilter {
	if v == "" {
		return nil
	}
	return &store.StringFilter{Contains: &v, Insensitive: true}
}

// --- User handlers ---

type UserCreateInput struct {
	Username string     `json:"username" validate:"required,max=255"`
	Fullname string     `json:"fullname" validate:"required,max=255"`
	Gender   *string    `json:"gender" validate:"omitempty,oneof=male female"`
	Birth    *time.Time `json:"birth"`
	Address  *string    `json:"address"`
	Phone    *string    `json:"phone" validate:"omitempty,max=32"`
	Avatar   *string    `json:"avatar" validate:"omitempty,url"`
}

func (h *HTTPHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var input UserCreateInput
	if !h.decode(w, r, &input) {
		return
	}
	created, err := h.store.CreateUser(r.Context(), &domain.User{
		Username: input.Username,
		Fullname: input.Fullname,
		Gender:   input.Gender,
		Birth:    input.Birth,
		Address:  input.Address,
		Phone:    input.Phone,
		Avatar:   input.Avatar,
	})
	if err != nil {
		h.storeError(w, "CreateUser", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *HTTPHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.GetUserByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, "GetUser", err)
		return
	}
	respondWithJSON(w, http.StatusOK, u)
}

func (h *HTTPHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r)
	inc := includes(r)
	var where *store.UserFilter
	if q := r.URL.Query().Get("q"); q != "" {
		where = &store.UserFilter{Username: searchFilter(q)}
	}
	users, err := h.store.ListUsers(r.Context(), store.ListUsersParams{
		Where:   where,
		Include: store.UserInclude{MerchantCount: inc["merchantCount"]},
		OrderBy: parseOrder(r),
		Limit:   p.Limit, Offset: p.Offset, Cursor: p.Cursor, Take: p.Take,
	})
	if err != nil {
		h.storeError(w, "ListUsers", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"data": users})
}

type UserUpdateInput struct {
	Username *string    `json:"username" validate:"omitempty,max=255"`
	Fullname *string    `json:"fullname" validate:"omitempty,max=255"`
	Gender   *string    `json:"gender" validate:"omitempty,oneof=male female"`
	Birth    *time.Time `json:"birth"`
	Address  *string    `json:"address"`
	Phone    *string    `json:"phone" validate:"omitempty,max=32"`
	Avatar   *string    `json:"avatar" validate:"omitempty,url"`
}

func (h *HTTPHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var input UserUpdateInput
	if !h.decode(w, r, &input) {
		return
	}
	u, err := h.store.UpdateUser(r.Context(), chi.URLParam(r, "id"), store.UserPatch{
		Username: input.Username,
		Fullname: input.Fullname,
		Gender:   nullStr(input.Gender),
		Birth:    nullTime(input.Birth),
		Address:  nullStr(input.Address),
		Phone:    nullStr(input.Phone),
		Avatar:   nullStr(input.Avatar),
	})
	if err != nil {
		h.storeError(w, "UpdateUser", err)
		return
	}
	respondWithJSON(w, http.StatusOK, u)
}

func (h *HTTPHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.storeError(w, "DeleteUser", err)
		return
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Merchant handlers ---

type MerchantCreateInput struct {
	UserID  string  `json:"user_id" validate:"required"`
	Name    string  `json:"name" validate:"required,max=255"`
	Address *string `json:"address"`
	Phone   *string `json:"phone" validate:"omitempty,max=32"`
	Avatar  *string `json:"avatar" validate:"omitempty,url"`
	Type    *string `json:"type"`
	Status  string  `json:"status" validate:"omitempty,oneof=active pending"`
}

func (h *HTTPHandler) CreateMerchant(w http.ResponseWriter, r *http.Request) {
	var input MerchantCreateInput
	if !h.decode(w, r, &input) {
		return
	}
	created, err := h.store.CreateMerchant(r.Context(), &domain.Merchant{
		UserID:  input.UserID,
		Name:    input.Name,
		Address: input.Address,
		Phone:   input.Phone,
		Avatar:  input.Avatar,
		Type:    input.Type,
		Status:  input.Status,
	})
	if err != nil {
		h.storeError(w, "CreateMerchant", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *HTTPHandler) GetMerchant(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.GetMerchantByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, "GetMerchant", err)
		return
	}
	respondWithJSON(w, http.StatusOK, m)
}

func (h *HTTPHandler) ListMerchants(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r)
	inc := includes(r)
	filter := &store.MerchantFilter{
		UserID: strFilter(r.URL.Query().Get("user_id")),
		Status: strFilter(r.URL.Query().Get("status")),
		Name:   searchFilter(r.URL.Query().Get("q")),
	}
	include := store.MerchantInclude{
		User:         inc["user"],
		ProductCount: inc["productCount"],
	}
	if inc["products"] {
		include.Products = &store.ProductListOptions{Limit: 10}
	}
	merchants, err := h.store.ListMerchants(r.Context(), store.ListMerchantsParams{
		Where:   filter,
		Include: include,
		OrderBy: parseOrder(r),
		Limit:   p.Limit, Offset: p.Offset, Cursor: p.Cursor, Take: p.Take,
	})
	if err != nil {
		h.storeError(w, "ListMerchants", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"data": merchants})
}

type MerchantUpdateInput struct {
	Name    *string `json:"name" validate:"omitempty,max=255"`
	Address *string `json:"address"`
	Phone   *string `json:"phone" validate:"omitempty,max=32"`
	Avatar  *string `json:"avatar" validate:"omitempty,url"`
	Type    *string `json:"type"`
	Status  *string `json:"status" validate:"omitempty,oneof=active pending"`
}

func (h *HTTPHandler) UpdateMerchant(w http.ResponseWriter, r *http.Request) {
	var input MerchantUpdateInput
	if !h.decode(w, r, &input) {
		return
	}
	m, err := h.store.UpdateMerchant(r.Context(), chi.URLParam(r, "id"), store.MerchantPatch{
		Name:    input.Name,
		Address: nullStr(input.Address),
		Phone:   nullStr(input.Phone),
		Avatar:  nullStr(input.Avatar),
		Type:    nullStr(input.Type),
		Status:  input.Status,
	})
	if err != nil {
		h.storeError(w, "UpdateMerchant", err)
		return
	}
	respondWithJSON(w, http.StatusOK, m)
}

func (h *HTTPHandler) DeleteMerchant(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteMerchant(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.storeError(w, "DeleteMerchant", err)
		return
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Category handlers ---

type CategoryCreateInput struct {
	Name string  `json:"name" validate:"required,max=255"`
	Type *string `json:"type"`
}

func (h *HTTPHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var input CategoryCreateInput
	if !h.decode(w, r, &input) {
		return
	}
	created, err := h.store.CreateCategory(r.Context(), &domain.Category{
		Name: input.Name,
		Type: input.Type,
	})
	if err != nil {
		h.storeError(w, "CreateCategory", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *HTTPHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.GetCategoryByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, "GetCategory", err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r)
	categories, err := h.store.ListCategories(r.Context(), store.ListCategoriesParams{
		Where:   &store.CategoryFilter{Name: searchFilter(r.URL.Query().Get("q"))},
		Include: store.CategoryInclude{ProductCount: includes(r)["productCount"]},
		OrderBy: parseOrder(r),
		Limit:   p.Limit, Offset: p.Offset, Cursor: p.Cursor, Take: p.Take,
	})
	if err != nil {
		h.storeError(w, "ListCategories", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"data": categories})
}

type CategoryUpdateInput struct {
	Name *string `json:"name" validate:"omitempty,max=255"`
	Type *string `json:"type"`
}

func (h *HTTPHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var input CategoryUpdateInput
	if !h.decode(w, r, &input) {
		return
	}
	c, err := h.store.UpdateCategory(r.Context(), chi.URLParam(r, "id"), store.CategoryPatch{
		Name: input.Name,
		Type: nullStr(input.Type),
	})
	if err != nil {
		h.storeError(w, "UpdateCategory", err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (h *HTTPHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.storeError(w, "DeleteCategory", err)
		return
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Colour handlers ---

type ColourCreateInput struct {
	Name string  `json:"name" validate:"required,max=255"`
	Hex  *string `json:"hex" validate:"omitempty,hexcolor"`
}

func (h *HTTPHandler) CreateColour(w http.ResponseWriter, r *http.Request) {
	var input ColourCreateInput
	if !h.decode(w, r, &input) {
		return
	}
	created, err := h.store.CreateColour(r.Context(), &domain.Colour{
		Name: input.Name,
		Hex:  input.Hex,
	})
	if err != nil {
		h.storeError(w, "CreateColour", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *HTTPHandler) GetColour(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.GetColourByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, "GetColour", err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (h *HTTPHandler) ListColours(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r)
	colours, err := h.store.ListColours(r.Context(), store.ListColoursParams{
		Where:   &store.ColourFilter{Name: searchFilter(r.URL.Query().Get("q"))},
		Include: store.ColourInclude{VariantCount: includes(r)["variantCount"]},
		OrderBy: parseOrder(r),
		Limit:   p.Limit, Offset: p.Offset, Cursor: p.Cursor, Take: p.Take,
	})
	if err != nil {
		h.storeError(w, "ListColours", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"data": colours})
}

type ColourUpdateInput struct {
	Name *string `json:"name" validate:"omitempty,max=255"`
	Hex  *string `json:"hex" validate:"omitempty,hexcolor"`
}

func (h *HTTPHandler) UpdateColour(w http.ResponseWriter, r *http.Request) {
	var input ColourUpdateInput
	if !h.decode(w, r, &input) {
		return
	}
	c, err := h.store.UpdateColour(r.Context(), chi.URLParam(r, "id"), store.ColourPatch{
		Name: input.Name,
		Hex:  nullStr(input.Hex),
	})
	if err != nil {
		h.storeError(w, "UpdateColour", err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (h *HTTPHandler) DeleteColour(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteColour(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.storeError(w, "DeleteColour", err)
		return
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Size handlers ---

type SizeCreateInput struct {
	Name   string   `json:"name" validate:"required,max=64"`
	Length *float64 `json:"length" validate:"omitempty,gt=0"`
	Height *float64 `json:"height" validate:"omitempty,gt=0"`
	Width  *float64 `json:"width" validate:"omitempty,gt=0"`
}

func (h *HTTPHandler) CreateSize(w http.ResponseWriter, r *http.Request) {
	var input SizeCreateInput
	if !h.decode(w, r, &input) {
		return
	}
	created, err := h.store.CreateSize(r.Context(), &domain.Size{
		Name:   input.Name,
		Length: input.Length,
		Height: input.Height,
		Width:  input.Width,
	})
	if err != nil {
		h.storeError(w, "CreateSize", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *HTTPHandler) GetSize(w http.ResponseWriter, r *http.Request) {
	z, err := h.store.GetSizeByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, "GetSize", err)
		return
	}
	respondWithJSON(w, http.StatusOK, z)
}

func (h *HTTPHandler) ListSizes(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r)
	sizes, err := h.store.ListSizes(r.Context(), store.ListSizesParams{
		Where:   &store.SizeFilter{Name: searchFilter(r.URL.Query().Get("q"))},
		Include: store.SizeInclude{VariantCount: includes(r)["variantCount"]},
		OrderBy: parseOrder(r),
		Limit:   p.Limit, Offset: p.Offset, Cursor: p.Cursor, Take: p.Take,
	})
	if err != nil {
		h.storeError(w, "ListSizes", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"data": sizes})
}

type SizeUpdateInput struct {
	Name   *string  `json:"name" validate:"omitempty,max=64"`
	Length *float64 `json:"length" validate:"omitempty,gt=0"`
	Height *float64 `json:"height" validate:"omitempty,gt=0"`
	Width  *float64 `json:"width" validate:"omitempty,gt=0"`
}

func (h *HTTPHandler) UpdateSize(w http.ResponseWriter, r *http.Request) {
	var input SizeUpdateInput
	if !h.decode(w, r, &input) {
		return
	}
	z, err := h.store.UpdateSize(r.Context(), chi.URLParam(r, "id"), store.SizePatch{
		Name:   input.Name,
		Length: nullFloat(input.Length),
		Height: nullFloat(input.Height),
		Width:  nullFloat(input.Width),
	})
	if err != nil {
		h.storeError(w, "UpdateSize", err)
		return
	}
	respondWithJSON(w, http.StatusOK, z)
}

func (h *HTTPHandler) DeleteSize(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteSize(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.storeError(w, "DeleteSize", err)
		return
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Product handlers ---

type ProductCreateInput struct {
	MerchantID  string   `json:"merchant_id" validate:"required"`
	CategoryID  *string  `json:"category_id"`
	Name        string   `json:"name" validate:"required,max=255"`
	Price       float64  `json:"price" validate:"gte=0"`
	Discount    *float64 `json:"discount" validate:"omitempty,gte=0"`
	Description *string  `json:"description"`
	HasVariant  bool     `json:"has_variant"`
	Weight      *float64 `json:"weight" validate:"omitempty,gt=0"`
	Avatar      *string  `json:"avatar" validate:"omitempty,url"`
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var input ProductCreateInput
	if !h.decode(w, r, &input) {
		return
	}
	created, err := h.store.CreateProduct(r.Context(), &domain.Product{
		MerchantID:  input.MerchantID,
		CategoryID:  input.CategoryID,
		Name:        input.Name,
		Price:       input.Price,
		Discount:    input.Discount,
		Description: input.Description,
		HasVariant:  input.HasVariant,
		Weight:      input.Weight,
		Avatar:      input.Avatar,
	})
	if err != nil {
		h.storeError(w, "CreateProduct", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProductByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, "GetProduct", err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := parsePagination(r)
	inc := includes(r)
	filter := &store.ProductFilter{
		MerchantID: strFilter(q.Get("merchant_id")),
		CategoryID: strFilter(q.Get("category_id")),
		Name:       searchFilter(q.Get("q")),
	}
	if v := q.Get("min_price"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.Price = &store.FloatFilter{Gte: &f}
		}
	}
	if v := q.Get("max_price"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			if filter.Price == nil {
				filter.Price = &store.FloatFilter{}
			}
			filter.Price.Lte = &f
		}
	}
	if q.Get("in_stock") == "true" {
		zero := int64(0)
		filter.Variants = &store.VariantListFilter{
			Some: &store.VariantFilter{Stock: &store.IntFilter{Gt: &zero}},
		}
	}
	include := store.ProductInclude{
		Merchant:     inc["merchant"],
		Category:     inc["category"],
		VariantCount: inc["variantCount"],
	}
	if inc["variants"] {
		include.Variants = &store.VariantListOptions{}
	}
	products, err := h.store.ListProducts(r.Context(), store.ListProductsParams{
		Where:   filter,
		Include: include,
		OrderBy: parseOrder(r),
		Limit:   p.Limit, Offset: p.Offset, Cursor: p.Cursor, Take: p.Take,
	})
	if err != nil {
		h.storeError(w, "ListProducts", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"data": products})
}

// ProductStats reports price statistics over the filtered products.
func (h *HTTPHandler) ProductStats(w http.ResponseWriter, r *http.Request) {
	filter := &store.ProductFilter{
		MerchantID: strFilter(r.URL.Query().Get("merchant_id")),
		CategoryID: strFilter(r.URL.Query().Get("category_id")),
	}
	agg, err := h.store.AggregateProducts(r.Context(), filter, store.AggregateSpec{
		Count: true,
		Min:   []string{"price"},
		Max:   []string{"price"},
		Avg:   []string{"price"},
	})
	if err != nil {
		h.storeError(w, "ProductStats", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"count":     agg.Count,
		"min_price": agg.Min["price"],
		"max_price": agg.Max["price"],
		"avg_price": agg.Avg["price"],
	})
}

// GroupProducts groups products by one or more of their fields, e.g.
// ?by=merchantId to count products per merchant.
func (h *HTTPHandler) GroupProducts(w http.ResponseWriter, r *http.Request) {
	by := strings.Split(r.URL.Query().Get("by"), ",")
	var fields []string
	for _, f := range by {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	groups, err := h.store.GroupProductsBy(r.Context(), nil, store.GroupByParams{
		By:  fields,
		Agg: store.AggregateSpec{Count: true, Avg: []string{"price"}},
	})
	if err != nil {
		h.storeError(w, "GroupProducts", err)
		return
	}
	out := make([]map[string]any, len(groups))
	for i, g := range groups {
		out[i] = map[string]any{
			"keys":      g.Keys,
			"count":     g.Count,
			"avg_price": g.Avg["price"],
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"data": out})
}

type ProductUpdateInput struct {
	CategoryID  *string  `json:"category_id"`
	Name        *string  `json:"name" validate:"omitempty,max=255"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Discount    *float64 `json:"discount" validate:"omitempty,gte=0"`
	Description *string  `json:"description"`
	HasVariant  *bool    `json:"has_variant"`
	Weight      *float64 `json:"weight" validate:"omitempty,gt=0"`
	Avatar      *string  `json:"avatar" validate:"omitempty,url"`
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var input ProductUpdateInput
	if !h.decode(w, r, &input) {
		return
	}
	p, err := h.store.UpdateProduct(r.Context(), chi.URLParam(r, "id"), store.ProductPatch{
		CategoryID:  nullStr(input.CategoryID),
		Name:        input.Name,
		Price:       input.Price,
		Discount:    nullFloat(input.Discount),
		Description: nullStr(input.Description),
		HasVariant:  input.HasVariant,
		Weight:      nullFloat(input.Weight),
		Avatar:      nullStr(input.Avatar),
	})
	if err != nil {
		h.storeError(w, "UpdateProduct", err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.storeError(w, "DeleteProduct", err)
		return
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Variant handlers ---

type VariantCreateInput struct {
	ProductID string  `json:"product_id" validate:"required"`
	ColourID  *string `json:"colour_id"`
	SizeID    *string `json:"size_id"`
	SKU       string  `json:"sku" validate:"required,max=64"`
	Stock     int64   `json:"stock" validate:"gte=0"`
}

func (h *HTTPHandler) CreateVariant(w http.ResponseWriter, r *http.Request) {
	var input VariantCreateInput
	if !h.decode(w, r, &input) {
		return
	}
	created, err := h.store.CreateVariant(r.Context(), &domain.Variant{
		ProductID: input.ProductID,
		ColourID:  input.ColourID,
		SizeID:    input.SizeID,
		SKU:       input.SKU,
		Stock:     input.Stock,
	})
	if err != nil {
		h.storeError(w, "CreateVariant", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *HTTPHandler) GetVariant(w http.ResponseWriter, r *http.Request) {
	v, err := h.store.GetVariantByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, "GetVariant", err)
		return
	}
	respondWithJSON(w, http.StatusOK, v)
}

func (h *HTTPHandler) ListVariants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := parsePagination(r)
	inc := includes(r)
	if sku := q.Get("sku"); sku != "" {
		v, err := h.store.GetVariantBySKU(r.Context(), sku)
		if err != nil {
			h.storeError(w, "ListVariants", err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]any{"data": []domain.Variant{*v}})
		return
	}
	variants, err := h.store.ListVariants(r.Context(), store.ListVariantsParams{
		Where: &store.VariantFilter{
			ProductID: strFilter(q.Get("product_id")),
			ColourID:  strFilter(q.Get("colour_id")),
			SizeID:    strFilter(q.Get("size_id")),
		},
		Include: store.VariantInclude{
			Product: inc["product"],
			Colour:  inc["colour"],
			Size:    inc["size"],
		},
		OrderBy: parseOrder(r),
		Limit:   p.Limit, Offset: p.Offset, Cursor: p.Cursor, Take: p.Take,
	})
	if err != nil {
		h.storeError(w, "ListVariants", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"data": variants})
}

type VariantUpdateInput struct {
	ColourID *string `json:"colour_id"`
	SizeID   *string `json:"size_id"`
	SKU      *string `json:"sku" validate:"omitempty,max=64"`
	Stock    *int64  `json:"stock" validate:"omitempty,gte=0"`
}

func (h *HTTPHandler) UpdateVariant(w http.ResponseWriter, r *http.Request) {
	var input VariantUpdateInput
	if !h.decode(w, r, &input) {
		return
	}
	v, err := h.store.UpdateVariant(r.Context(), chi.URLParam(r, "id"), store.VariantPatch{
		ColourID: nullStr(input.ColourID),
		SizeID:   nullStr(input.SizeID),
		SKU:      input.SKU,
		Stock:    input.Stock,
	})
	if err != nil {
		h.storeError(w, "UpdateVariant", err)
		return
	}
	respondWithJSON(w, http.StatusOK, v)
}

type StockAdjustInput struct {
	Delta int64 `json:"delta" validate:"required"`
}

// AdjustVariantStock applies a relative stock change. Decrements that
// would push stock below zero are rejected with a conflict.
func (h *HTTPHandler) AdjustVariantStock(w http.ResponseWriter, r *http.Request) {
	var input StockAdjustInput
	if !h.decode(w, r, &input) {
		return
	}
	v, err := h.store.AdjustVariantStock(r.Context(), chi.URLParam(r, "id"), input.Delta)
	if err != nil {
		h.storeError(w, "AdjustVariantStock", err)
		return
	}
	respondWithJSON(w, http.StatusOK, v)
}

func (h *HTTPHandler) DeleteVariant(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteVariant(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.storeError(w, "DeleteVariant", err)
		return
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}
