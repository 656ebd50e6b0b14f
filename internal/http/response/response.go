package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
)

// Envelope is the uniform wire shape of every endpoint.
type Envelope struct {
	Code       int    `json:"code"`
	ErrorMsg   string `json:"error_msg"`
	Result     any    `json:"result"`
	Page       int    `json:"page"`
	NumOfPages int    `json:"num_of_pages"`
	Total      int64  `json:"total"`
}

func OK(c *gin.Context, result any) {
	c.JSON(http.StatusOK, Envelope{Code: http.StatusOK, Result: result, NumOfPages: 1, Total: 1})
}

func Paged(c *gin.Context, result any, page, pageSize int, total int64) {
	numPages := 1
	if pageSize > 0 {
		numPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	c.JSON(http.StatusOK, Envelope{
		Code:       http.StatusOK,
		Result:     result,
		Page:       page,
		NumOfPages: numPages,
		Total:      total,
	})
}

// Err maps the error kind onto an HTTP status and echoes the message in the
// envelope.
func Err(c *gin.Context, err error) {
	status := cerr.HTTPStatus(cerr.KindOf(err))
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, Envelope{Code: status, ErrorMsg: msg})
}

// BadRequest is for binding failures before any service is reached.
func BadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Envelope{Code: http.StatusBadRequest, ErrorMsg: err.Error()})
}
