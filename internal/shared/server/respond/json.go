package respond

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// OK writes a 200 OK JSON response.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// Attachment serves a generated file for download.
func Attachment(c *gin.Context, filename, contentType string, data []byte) {
	filename = strings.NewReplacer(`"`, "", "\r", "", "\n", "").Replace(filename)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, data)
}
