package httptransport

import "github.com/gin-gonic/gin"

// RespondError writes the flat error shape the client expects. Streaming
// endpoints use it only before the stream starts.
func RespondError(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, gin.H{"error": message})
}
