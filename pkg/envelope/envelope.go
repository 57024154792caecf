// Package envelope is the {success, data, error} shape returned by every
// coordination command.
package envelope

import (
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/coord/internal/platform/fault"
)

// Response wraps a command result.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

func OK(data interface{}) *Response {
	return &Response{Success: true, Data: data}
}

func Fail(err error) *Response {
	return &Response{Success: false, Error: err.Error(), Code: fault.Code(err)}
}

// JSON writes data with status on success, or the failure envelope with the
// status derived from err.
func JSON(c echo.Context, status int, data interface{}, err error) error {
	if err != nil {
		return c.JSON(fault.HTTPStatus(err), Fail(err))
	}
	return c.JSON(status, OK(data))
}
