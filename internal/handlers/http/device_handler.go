package http

import (
	"context"
	"net/http"
	"time"

	"worldview/internal/core/domain"
	"worldview/internal/core/ports"
	"worldview/pkg/errors"
	"worldview/pkg/utils"
	"worldview/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type DeviceHandler struct {
	studio        ports.Studio
	actionTimeout time.Duration
	logger        *zap.SugaredLogger
}

var _ ports.HTTPHandler = (*DeviceHandler)(nil)

func NewDeviceHandler(studio ports.Studio, actionTimeout time.Duration, logger *zap.SugaredLogger) *DeviceHandler {
	return &DeviceHandler{
		studio:        studio,
		actionTimeout: actionTimeout,
		logger:        logger,
	}
}

func (h *DeviceHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/devices", h.StartDevice)
	api.GET("/devices", h.ListDevices)
	api.GET("/devices/:profile", h.GetDevice)
	api.DELETE("/devices/:profile", h.StopDevice)

	api.POST("/devices/:profile/session", h.CreateSession)
	api.POST("/devices/:profile/join", h.JoinSession)
	api.POST("/devices/:profile/recording/start", h.StartRecording)
	api.POST("/devices/:profile/recording/stop", h.StopRecording)
	api.POST("/devices/:profile/recordings", h.AddRecording)
	api.POST("/devices/:profile/members", h.AddDevice)
	api.PUT("/devices/:profile/members/:device_id/status", h.UpdateDeviceStatus)
	api.POST("/devices/:profile/sync", h.RequestSync)
}

// DeviceView is the JSON shape of a hosted device.
type DeviceView struct {
	Profile   string           `json:"profile"`
	Device    *domain.Device   `json:"device,omitempty"`
	Session   *domain.Session  `json:"session,omitempty"`
	JoinState domain.JoinState `json:"join_state"`
}

func viewOf(device ports.DeviceService) DeviceView {
	v := DeviceView{
		Profile:   device.Profile(),
		JoinState: device.JoinState(),
	}
	if d, ok := device.CurrentDevice(); ok {
		v.Device = &d
	}
	if s, ok := device.Session(); ok {
		v.Session = &s
	}
	return v
}

func (h *DeviceHandler) actionContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.actionTimeout)
}

// device resolves :profile, attaching the error to c when it fails.
func (h *DeviceHandler) device(c *gin.Context) (ports.DeviceService, bool) {
	device, err := h.studio.Get(c.Param("profile"))
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}
	return device, true
}

func invalidInput(c *gin.Context, err error) {
	if errors.IsAppError(err) {
		_ = c.Error(err)
		return
	}
	_ = c.Error(errors.NewInvalidInputError(err.Error()))
}

func (h *DeviceHandler) StartDevice(c *gin.Context) {
	var req struct {
		Profile  string `json:"profile" binding:"required"`
		Platform string `json:"platform"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err)
		return
	}
	if err := validation.ValidateProfile(req.Profile); err != nil {
		invalidInput(c, err)
		return
	}

	ctx, cancel := h.actionContext(c)
	defer cancel()

	device, err := h.studio.Start(ctx, req.Profile, req.Platform)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, viewOf(device))
}

func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices := h.studio.List()
	views := make([]DeviceView, 0, len(devices))
	for _, device := range devices {
		views = append(views, viewOf(device))
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": views,
		"count":   len(views),
	})
}

func (h *DeviceHandler) GetDevice(c *gin.Context) {
	device, ok := h.device(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(device))
}

func (h *DeviceHandler) StopDevice(c *gin.Context) {
	if err := h.studio.Stop(c.Param("profile")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DeviceHandler) CreateSession(c *gin.Context) {
	device, ok := h.device(c)
	if !ok {
		return
	}

	ctx, cancel := h.actionContext(c)
	defer cancel()

	id, err := device.CreateSession(ctx)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if id == "" {
		_ = c.Error(errors.NewConflictError("device has no identity"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": id,
		"device":     viewOf(device),
	})
}

func (h *DeviceHandler) JoinSession(c *gin.Context) {
	device, ok := h.device(c)
	if !ok {
		return
	}

	var req struct {
		SessionID string `json:"session_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err)
		return
	}
	if err := validation.ValidateSessionCode(req.SessionID); err != nil {
		invalidInput(c, err)
		return
	}

	ctx, cancel := h.actionContext(c)
	defer cancel()

	id := domain.SessionID(utils.NormalizeSessionCode(req.SessionID))
	if err := device.JoinSession(ctx, id); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, viewOf(device))
}

func (h *DeviceHandler) StartRecording(c *gin.Context) {
	h.runAction(c, func(ctx context.Context, device ports.DeviceService) error {
		return device.StartRecording(ctx)
	})
}

func (h *DeviceHandler) StopRecording(c *gin.Context) {
	h.runAction(c, func(ctx context.Context, device ports.DeviceService) error {
		return device.StopRecording(ctx)
	})
}

func (h *DeviceHandler) AddRecording(c *gin.Context) {
	device, ok := h.device(c)
	if !ok {
		return
	}

	var req struct {
		ID           string  `json:"id"`
		Duration     float64 `json:"duration"`
		ThumbnailURL string  `json:"thumbnail_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err)
		return
	}
	if err := validation.ValidateDuration(req.Duration); err != nil {
		invalidInput(c, err)
		return
	}
	if err := validation.ValidateThumbnailURL(req.ThumbnailURL); err != nil {
		invalidInput(c, err)
		return
	}

	ctx, cancel := h.actionContext(c)
	defer cancel()

	rec, err := device.AddRecording(ctx, domain.Recording{
		ID:           domain.RecordingID(req.ID),
		Duration:     req.Duration,
		ThumbnailURL: req.ThumbnailURL,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"recording": rec})
}

func (h *DeviceHandler) AddDevice(c *gin.Context) {
	var req struct {
		ID      string  `json:"id" binding:"required"`
		Name    string  `json:"name" binding:"required"`
		Role    string  `json:"role"`
		Status  string  `json:"status"`
		Battery *int    `json:"battery"`
		Storage float64 `json:"storage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err)
		return
	}

	member, err := memberFromRequest(req.ID, req.Name, req.Role, req.Status, req.Battery, req.Storage)
	if err != nil {
		invalidInput(c, err)
		return
	}

	h.runAction(c, func(ctx context.Context, device ports.DeviceService) error {
		return device.AddDevice(ctx, member)
	})
}

func memberFromRequest(id, name, role, status string, battery *int, storage float64) (domain.Device, error) {
	if err := validation.ValidateDeviceID(id); err != nil {
		return domain.Device{}, err
	}
	if err := validation.ValidateDeviceName(name); err != nil {
		return domain.Device{}, err
	}

	member := domain.Device{
		ID:      domain.DeviceID(id),
		Name:    utils.SanitizeString(name),
		Role:    domain.RoleCamera,
		Status:  domain.DeviceReady,
		Battery: 100,
		Storage: storage,
	}
	switch domain.DeviceRole(role) {
	case "":
	case domain.RoleCamera, domain.RoleDirector:
		member.Role = domain.DeviceRole(role)
	default:
		return domain.Device{}, errors.NewInvalidInputError("role must be Director or Camera")
	}
	if status != "" {
		parsed, err := domain.ParseDeviceStatus(status)
		if err != nil {
			return domain.Device{}, err
		}
		member.Status = parsed
	}
	if battery != nil {
		if err := validation.ValidateBattery(*battery); err != nil {
			return domain.Device{}, err
		}
		member.Battery = *battery
	}
	if storage < 0 {
		return domain.Device{}, errors.NewInvalidInputError("storage must not be negative")
	}
	return member, nil
}

func (h *DeviceHandler) UpdateDeviceStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err)
		return
	}
	status, err := domain.ParseDeviceStatus(req.Status)
	if err != nil {
		_ = c.Error(err)
		return
	}

	memberID := domain.DeviceID(c.Param("device_id"))
	h.runAction(c, func(ctx context.Context, device ports.DeviceService) error {
		return device.UpdateDeviceStatus(ctx, memberID, status)
	})
}

func (h *DeviceHandler) RequestSync(c *gin.Context) {
	device, ok := h.device(c)
	if !ok {
		return
	}

	ctx, cancel := h.actionContext(c)
	defer cancel()

	if err := device.RequestSync(ctx); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
}

// runAction resolves the device, applies fn and answers with the device's
// new state.
func (h *DeviceHandler) runAction(c *gin.Context, fn func(ctx context.Context, device ports.DeviceService) error) {
	device, ok := h.device(c)
	if !ok {
		return
	}

	ctx, cancel := h.actionContext(c)
	defer cancel()

	if err := fn(ctx, device); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, viewOf(device))
}
