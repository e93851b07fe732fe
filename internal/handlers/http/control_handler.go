package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
	"jamlink/internal/core/services"
	"jamlink/internal/infrastructure/middleware"
	apperrors "jamlink/pkg/errors"
)

// ControlHandler exposes the control service over REST. Reads need an
// observer token, writes a controller token; with a nil auth service every
// route is open.
type ControlHandler struct {
	control ports.ControlService
	auth    services.AuthService
}

func NewControlHandler(control ports.ControlService, auth services.AuthService) *ControlHandler {
	return &ControlHandler{control: control, auth: auth}
}

func (h *ControlHandler) SetupRoutes(router *gin.Engine) {
	read := router.Group("/api/v1", h.require(domain.RoleObserver))
	{
		read.GET("/status", h.GetStatus)
		read.GET("/groups", h.ListGroups)
		read.GET("/channels/names", h.ChannelNames)
		read.GET("/channels/:id/transmitting", h.GetTransmitting)
		read.GET("/rooms", h.ListRooms)
		read.GET("/plugins", h.ListPlugins)
		read.GET("/view", h.GetView)
		read.GET("/inputs", h.GetInputs)
	}

	write := router.Group("/api/v1", h.require(domain.RoleController))
	{
		write.POST("/groups", h.AddGroup)
		write.DELETE("/groups/:index", h.RemoveGroup)
		write.PATCH("/groups/:index", h.RenameGroup)
		write.POST("/groups/:index/reset", h.ResetGroup)
		write.POST("/groups/:index/highlight", h.HighlightGroup)
		write.POST("/groups/:index/subchannels", h.AddSubchannel)
		write.DELETE("/channels/:id", h.RemoveSubchannel)
		write.PUT("/channels/:id/input", h.SetInput)
		write.PUT("/channels/:id/transmitting", h.SetTransmitting)

		write.POST("/rooms/:id/enter", h.EnterRoom)
		write.POST("/rooms/private", h.ConnectPrivate)
		write.POST("/rooms/exit", h.ExitRoom)
		write.POST("/rooms/:id/stream", h.PlayStream)
		write.DELETE("/rooms/stream", h.StopStream)

		write.PUT("/view", h.SetView)
		write.POST("/plugins/scan", h.StartScan)
		write.POST("/plugins/blacklist", h.BlacklistPlugin)
	}
}

func (h *ControlHandler) require(role domain.ClientRole) gin.HandlerFunc {
	if h.auth == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.AuthMiddleware(h.auth, role)
}

func intParam(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.Error(apperrors.NewInvalidInputError(name + " must be an integer"))
		return 0, false
	}
	return v, true
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return false
	}
	return true
}

func (h *ControlHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": h.control.Status()})
}

func (h *ControlHandler) ListGroups(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"groups": h.control.Groups(), "count": h.control.GroupCount()})
}

func (h *ControlHandler) ChannelNames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"names": h.control.ChannelNames()})
}

func (h *ControlHandler) GetTransmitting(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"transmitting": h.control.IsTransmitting(domain.ChannelID(id))})
}

func (h *ControlHandler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.control.Rooms()})
}

func (h *ControlHandler) ListPlugins(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plugins": h.control.Plugins()})
}

func (h *ControlHandler) GetView(c *gin.Context) {
	caps := h.control.Capabilities()
	c.JSON(http.StatusOK, gin.H{
		"mode":                   caps.ViewMode.String(),
		"can_create_subchannels": caps.CanCreateSubchannels(),
		"can_use_full_screen":    caps.CanUseFullScreen(),
	})
}

func (h *ControlHandler) GetInputs(c *gin.Context) {
	c.JSON(http.StatusOK, h.control.Snapshot())
}

func (h *ControlHandler) AddGroup(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if !bind(c, &req) {
		return
	}
	handle, err := h.control.AddGroup(c.Request.Context(), req.Name)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, handle)
}

func (h *ControlHandler) RemoveGroup(c *gin.Context) {
	index, ok := intParam(c, "index")
	if !ok {
		return
	}
	if err := h.control.RemoveGroup(c.Request.Context(), int(index)); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ControlHandler) RenameGroup(c *gin.Context) {
	index, ok := intParam(c, "index")
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.control.RenameGroup(c.Request.Context(), int(index), req.Name); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ControlHandler) ResetGroup(c *gin.Context) {
	index, ok := intParam(c, "index")
	if !ok {
		return
	}
	if err := h.control.ResetGroup(c.Request.Context(), int(index)); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ControlHandler) HighlightGroup(c *gin.Context) {
	index, ok := intParam(c, "index")
	if !ok {
		return
	}
	if err := h.control.HighlightGroup(c.Request.Context(), int(index)); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ControlHandler) AddSubchannel(c *gin.Context) {
	index, ok := intParam(c, "index")
	if !ok {
		return
	}
	var req struct {
		PrimaryIfEmpty bool `json:"primary_if_empty"`
	}
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	id, err := h.control.AddSubchannel(c.Request.Context(), int(index), req.PrimaryIfEmpty)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"channel_id": id})
}

func (h *ControlHandler) RemoveSubchannel(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if err := h.control.RemoveSubchannel(c.Request.Context(), domain.ChannelID(id)); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ControlHandler) SetInput(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Kind         string `json:"kind"`
		FirstChannel int    `json:"first_channel"`
		MidiDevice   int    `json:"midi_device"`
	}
	if !bind(c, &req) {
		return
	}
	kind, err := domain.ParseInputKind(req.Kind)
	if err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	input := domain.InputSelection{Kind: kind, FirstChannel: req.FirstChannel, MidiDevice: req.MidiDevice}
	if kind == domain.NoInput {
		input = domain.NoInputSelection()
	}
	if err := h.control.SetInput(c.Request.Context(), domain.ChannelID(id), input); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ControlHandler) SetTransmitting(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Transmitting *bool `json:"transmitting" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.control.SetTransmitting(c.Request.Context(), domain.ChannelID(id), *req.Transmitting); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

type roomRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
}

func (h *ControlHandler) EnterRoom(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req roomRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	if err := h.control.EnterRoom(c.Request.Context(), domain.RoomID(id), req.Password); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": h.control.Status()})
}

func (h *ControlHandler) ConnectPrivate(c *gin.Context) {
	var req roomRequest
	if !bind(c, &req) {
		return
	}
	if err := h.control.ConnectPrivateServer(c.Request.Context(), req.Host, req.Port, req.Password); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": h.control.Status()})
}

func (h *ControlHandler) ExitRoom(c *gin.Context) {
	if err := h.control.ExitFromRoom(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": h.control.Status()})
}

func (h *ControlHandler) PlayStream(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if err := h.control.PlayRoomStream(c.Request.Context(), domain.RoomID(id)); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ControlHandler) StopStream(c *gin.Context) {
	h.control.StopRoomStream(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *ControlHandler) SetView(c *gin.Context) {
	var req struct {
		Mode string `json:"mode" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	mode, err := domain.ParseViewMode(req.Mode)
	if err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := h.control.SetViewMode(c.Request.Context(), mode); err != nil {
		c.Error(err)
		return
	}
	h.GetView(c)
}

func (h *ControlHandler) StartScan(c *gin.Context) {
	if err := h.control.StartScan(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *ControlHandler) BlacklistPlugin(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.control.BlacklistPlugin(c.Request.Context(), req.Path); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
