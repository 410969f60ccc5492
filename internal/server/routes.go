package server

import (
	"net/http"
	"strconv"
	"time"

	"camspec2mqtt/internal/core/domain"
	"camspec2mqtt/pkg/devctrl"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/api/state", s.GetStateHandler)
	e.GET("/api/attribute/:name", s.GetAttributeHandler)
	e.PUT("/api/attribute/:name", s.WriteAttributeHandler)
	e.POST("/api/command/:name", s.ExecCommandHandler)
	e.GET("/api/spectrum", s.GetSpectrumHandler)

	return e
}

type attributeJSON struct {
	Name      string    `json:"name"`
	Value     any       `json:"value"`
	Quality   string    `json:"quality"`
	Timestamp time.Time `json:"timestamp"`
}

type writeAttributeJSON struct {
	Value any `json:"value"`
}

type stateJSON struct {
	State  string `json:"state"`
	Status string `json:"status"`
}

type spectrumJSON struct {
	Spectrum []float64 `json:"spectrum"`
	Peak     float64   `json:"peak"`
	Width    float64   `json:"width"`
	SatLevel float64   `json:"satlvl"`
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) GetStateHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetControllerStateRequest{}, 5*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetControllerStateResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "unexpected response")
	}
	return c.JSON(http.StatusOK, stateJSON{
		State:  response.State.String(),
		Status: response.Status,
	})
}

func (s *Server) GetAttributeHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetAttributeRequest{
		Name: c.Param("name"),
	}, 15*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetAttributeResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		return c.String(http.StatusBadGateway, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, attributeToJSON(response.Value))
}

func (s *Server) WriteAttributeHandler(c echo.Context) error {
	var body writeAttributeJSON
	if err := c.Bind(&body); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.WriteAttributeRequest{
		Name:  c.Param("name"),
		Value: body.Value,
	}, 15*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.WriteAttributeResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		return c.String(http.StatusBadGateway, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, attributeToJSON(response.Value))
}

func (s *Server) ExecCommandHandler(c echo.Context) error {
	var arg any
	if raw := c.QueryParam("arg"); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			arg = f
		} else {
			arg = raw
		}
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ExecCommandRequest{
		Name: c.Param("name"),
		Arg:  arg,
	}, 15*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.ExecCommandResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		return c.String(http.StatusBadGateway, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, attributeToJSON(response.Result))
}

func (s *Server) GetSpectrumHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetSpectrumRequest{}, 5*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetSpectrumResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		return c.String(http.StatusServiceUnavailable, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, spectrumJSON{
		Spectrum: response.Spectrum,
		Peak:     response.Peak,
		Width:    response.Width,
		SatLevel: response.SatLevel,
	})
}

func attributeToJSON(v *devctrl.AttributeValue) attributeJSON {
	if v == nil {
		return attributeJSON{}
	}
	return attributeJSON{
		Name:      v.Name,
		Value:     v.Value,
		Quality:   v.Quality.String(),
		Timestamp: v.Timestamp,
	}
}
