package core

import "github.com/gin-gonic/gin"

// respondError sends the unified error payload {"message": ...}.
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message})
}

// respondErrorDetail appends the underlying error text unless cfg is
// production, so local debugging keeps the cause.
func respondErrorDetail(c *gin.Context, cfg Config, status int, message string, err error) {
	if err != nil && !cfg.Production() {
		c.JSON(status, gin.H{"message": message, "detail": err.Error()})
		return
	}
	respondError(c, status, message)
}
