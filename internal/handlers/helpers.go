package handlers

import (
	"github.com/gin-gonic/gin"
)

// respondWithError unified error response function
func respondWithError(c *gin.Context, statusCode int, errorType, message string, details interface{}) {
	response := gin.H{
		"error":   errorType,
		"message": message,
	}
	if details != nil {
		response["details"] = details
	}
	c.JSON(statusCode, response)
}
