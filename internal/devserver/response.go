package devserver

import "github.com/gin-gonic/gin"

// Error writes the API error body the client pipeline parses.
func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
