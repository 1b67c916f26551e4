package response

import (
	"net/http"

	"carepackage/pkg/apperror"
)

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	Kind       string      `json:"kind,omitempty"`
}

// Page wraps one page of a list result.
type Page struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Paged returns a 200 response wrapping one page of items.
func Paged(items interface{}, total int64, page, limit int) Response {
	return Success(http.StatusOK, Page{Items: items, Total: total, Page: page, Limit: limit})
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// FromError maps a service error onto its status code and envelope. Domain
// errors keep their message; anything else is reported generically.
func FromError(err error) (int, Response) {
	code := apperror.StatusCode(err)
	if code == http.StatusInternalServerError {
		return code, Error(code, "internal server error")
	}
	res := Error(code, err.Error())
	res.Kind = string(apperror.KindOf(err))
	return code, res
}
