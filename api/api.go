// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/openassist/openassist-mcp/mcp"
	"github.com/openassist/openassist-mcp/metrics"
)

// API is the HTTP surface the chat application uses to manage tool servers
// and invoke their capabilities.
type API struct {
	manager        *mcp.ClientManager
	log            *logrus.Logger
	metricsService metrics.Metrics
	metricsHandler http.Handler
}

// New creates a new API instance.
func New(manager *mcp.ClientManager, log *logrus.Logger, metricsService metrics.Metrics) *API {
	return &API{
		manager:        manager,
		log:            log,
		metricsService: metricsService,
		metricsHandler: metrics.NewMetricsHandler(metricsService),
	}
}

// Router builds the gin engine with all routes attached.
func (a *API) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(a.ginlogger)
	router.Use(a.metricsMiddleware)

	router.GET("/metrics", func(c *gin.Context) {
		a.metricsHandler.ServeHTTP(c.Writer, c.Request)
	})

	mcpRouter := router.Group("/api/v1/mcp")

	mcpRouter.GET("/servers", a.handleListServers)
	mcpRouter.POST("/servers", a.handleAddServer)

	serverRouter := mcpRouter.Group("/servers/:serverid")
	serverRouter.GET("", a.handleGetServer)
	serverRouter.PATCH("", a.handleUpdateServer)
	serverRouter.DELETE("", a.handleDeleteServer)
	serverRouter.POST("/start", a.handleStartServer)
	serverRouter.POST("/stop", a.handleStopServer)
	serverRouter.POST("/tools/:toolname", a.handleExecuteTool)
	serverRouter.POST("/resource", a.handleGetResource)
	serverRouter.POST("/prompts/:promptname", a.handleGetPrompt)

	mcpRouter.GET("/tools", a.handleGetAllTools)
	mcpRouter.GET("/tools/search", a.handleSearchTools)

	return router
}

func (a *API) ginlogger(c *gin.Context) {
	c.Next()

	for _, ginErr := range c.Errors {
		a.log.Error(ginErr.Error())
	}
}

func (a *API) metricsMiddleware(c *gin.Context) {
	a.metricsService.IncrementHTTPRequests()
	now := time.Now()

	c.Next()

	elapsed := float64(time.Since(now)) / float64(time.Second)

	status := c.Writer.Status()

	if status < 200 || status > 299 {
		a.metricsService.IncrementHTTPErrors()
	}

	endpoint := c.HandlerName()
	a.metricsService.ObserveAPIEndpointDuration(endpoint, c.Request.Method, strconv.Itoa(status), elapsed)
}

// respondError maps the manager's error taxonomy onto HTTP statuses.
func (a *API) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var (
		notFound     *mcp.NotFoundError
		notConnected *mcp.NotConnectedError
		config       *mcp.ConfigurationError
		precondition *mcp.PreconditionError
		unavailable  *mcp.TransportUnavailableError
		toolErr      *mcp.ToolExecutionError
		connFault    *mcp.ConnectionFault
		protoFault   *mcp.ProtocolFault
	)
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &config):
		status = http.StatusBadRequest
	case errors.As(err, &precondition), errors.As(err, &notConnected):
		status = http.StatusConflict
	case errors.As(err, &unavailable):
		status = http.StatusNotImplemented
	case errors.As(err, &toolErr):
		status = http.StatusBadGateway
	case errors.As(err, &connFault), errors.As(err, &protoFault):
		status = http.StatusBadGateway
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (a *API) handleListServers(c *gin.Context) {
	c.JSON(http.StatusOK, a.manager.ListServers())
}

func (a *API) handleAddServer(c *gin.Context) {
	var config mcp.ServerConfig
	if err := c.ShouldBindJSON(&config); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	server, err := a.manager.AddServer(config)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, server)
}

func (a *API) handleGetServer(c *gin.Context) {
	server, err := a.manager.GetServer(c.Param("serverid"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, server)
}

func (a *API) handleUpdateServer(c *gin.Context) {
	var req mcp.UpdateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	server, err := a.manager.UpdateServer(c.Param("serverid"), req)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, server)
}

func (a *API) handleDeleteServer(c *gin.Context) {
	if err := a.manager.DeleteServer(c.Param("serverid")); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *API) handleStartServer(c *gin.Context) {
	server, err := a.manager.StartServer(c.Param("serverid"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, server)
}

func (a *API) handleStopServer(c *gin.Context) {
	server, err := a.manager.StopServer(c.Param("serverid"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, server)
}

type executeToolRequest struct {
	Arguments map[string]any `json:"arguments"`
}

func (a *API) handleExecuteTool(c *gin.Context) {
	var req executeToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := a.manager.ExecuteTool(c.Param("serverid"), c.Param("toolname"), req.Arguments)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type getResourceRequest struct {
	URI string `json:"uri" binding:"required"`
}

func (a *API) handleGetResource(c *gin.Context) {
	var req getResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := a.manager.GetResource(c.Param("serverid"), req.URI)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type getPromptRequest struct {
	Arguments map[string]string `json:"arguments"`
}

func (a *API) handleGetPrompt(c *gin.Context) {
	var req getPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := a.manager.GetPrompt(c.Param("serverid"), c.Param("promptname"), req.Arguments)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) handleGetAllTools(c *gin.Context) {
	tools := a.manager.GetAllTools()
	if tools == nil {
		tools = []mcp.ServerTool{}
	}
	c.JSON(http.StatusOK, tools)
}

func (a *API) handleSearchTools(c *gin.Context) {
	tools := a.manager.SearchTools(c.Query("q"))
	if tools == nil {
		tools = []mcp.ServerTool{}
	}
	c.JSON(http.StatusOK, tools)
}
