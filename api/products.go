package api

import (
	"strconv"

	"github.com/adeilh/unimart/httpx"
	"github.com/adeilh/unimart/market"
)

func (h *Handler) listProducts(c httpx.Context) error {
	var q market.ProductQuery
	if err := c.Bind(&q); err != nil {
		return badRequest("invalid query parameters")
	}
	page, err := h.service.ListProducts(c.Request().Context(), q)
	if err != nil {
		return h.toHTTP(c, err)
	}
	return c.JSON(httpx.StatusOK, page)
}

func (h *Handler) getProduct(c httpx.Context) error {
	p, err := h.service.GetProduct(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.toHTTP(c, err)
	}
	return c.JSON(httpx.StatusOK, p)
}

func (h *Handler) createProduct(c httpx.Context) error {
	var in market.ProductInput
	if err := c.Bind(&in); err != nil {
		return badRequest("invalid JSON body")
	}
	p, err := h.service.CreateProduct(c.Request().Context(), actor(c), in)
	if err != nil {
		return h.toHTTP(c, err)
	}
	return c.JSON(httpx.StatusCreated, p)
}

func (h *Handler) updateProduct(c httpx.Context) error {
	var patch market.ProductPatch
	if err := c.Bind(&patch); err != nil {
		return badRequest("invalid JSON body")
	}
	p, err := h.service.UpdateProduct(c.Request().Context(), actor(c), c.Param("id"), patch)
	if err != nil {
		return h.toHTTP(c, err)
	}
	return c.JSON(httpx.StatusOK, p)
}

func (h *Handler) deleteProduct(c httpx.Context) error {
	if err := h.service.DeleteProduct(c.Request().Context(), actor(c), c.Param("id")); err != nil {
		return h.toHTTP(c, err)
	}
	return c.NoContent(httpx.StatusNoContent)
}

func (h *Handler) listCategories(c httpx.Context) error {
	counts, err := h.service.Categories(c.Request().Context())
	if err != nil {
		return h.toHTTP(c, err)
	}
	return c.JSON(httpx.StatusOK, map[string]any{"categories": counts})
}

func (h *Handler) categoryProducts(c httpx.Context) error {
	page, err := intParam(c, "page")
	if err != nil {
		return err
	}
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}
	result, err := h.service.CategoryProducts(c.Request().Context(), c.Param("category"), page, limit, c.QueryParam("sort"))
	if err != nil {
		return h.toHTTP(c, err)
	}
	return c.JSON(httpx.StatusOK, result)
}

// intParam reads an optional integer query parameter; absent means zero.
func intParam(c httpx.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, httpx.HTTPErrorf(httpx.StatusBadRequest, "%s must be an integer", name)
	}
	return n, nil
}
