// Package response writes the success envelope shared by every handler.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Body is {"success": true, "data": ...}.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func OK(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

func Created(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// Message responds 200 with a human readable message and no data.
func Message(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, Body{Success: true, Message: msg})
}
