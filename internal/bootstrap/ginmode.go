package bootstrap

import "github.com/gin-gonic/gin"

// SetGinMode picks the gin mode from the app environment. Anything other
// than production keeps the debug output on.
func SetGinMode(env string) {
	switch env {
	case "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}
}
