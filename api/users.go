package api

import (
	"github.com/adeilh/unimart/httpx"
	"github.com/adeilh/unimart/market"
)

func (h *Handler) getUser(c httpx.Context) error {
	u, err := h.service.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.toHTTP(c, err)
	}
	return c.JSON(httpx.StatusOK, u)
}

func (h *Handler) updateUser(c httpx.Context) error {
	var patch market.UserPatch
	if err := c.Bind(&patch); err != nil {
		return badRequest("invalid JSON body")
	}
	u, err := h.service.UpdateUser(c.Request().Context(), actor(c), c.Param("id"), patch)
	if err != nil {
		return h.toHTTP(c, err)
	}
	return c.JSON(httpx.StatusOK, u)
}
