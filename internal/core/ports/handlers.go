package ports

import (
	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	StartDevice(c *gin.Context)
	ListDevices(c *gin.Context)
	GetDevice(c *gin.Context)
	StopDevice(c *gin.Context)
	CreateSession(c *gin.Context)
	JoinSession(c *gin.Context)
	StartRecording(c *gin.Context)
	StopRecording(c *gin.Context)
	AddRecording(c *gin.Context)
	AddDevice(c *gin.Context)
	UpdateDeviceStatus(c *gin.Context)
	RequestSync(c *gin.Context)
}

type WebSocketHandler interface {
	Watch(c *gin.Context)
}
