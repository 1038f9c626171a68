package internal

import (
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/strand-sched/strand/internal/options"
	"github.com/strand-sched/strand/pkg/logger"
)

type nodeAPIServer struct {
	// Configuration details.
	opts options.Options

	// Internal state.
	holder *nodeHolder
	server *echo.Echo
}

func newNodeAPIServer(opts options.Options, holder *nodeHolder) *nodeAPIServer {
	server := echo.New()
	server.Logger = logger.New()
	server.HidePort = true
	server.HideBanner = true
	server.Use(middleware.Recover())
	server.Pre(middleware.RemoveTrailingSlash())

	a := &nodeAPIServer{
		opts:   opts,
		holder: holder,
		server: server,
	}

	server.GET("/health", a.health)
	server.GET("/api/v1/resources", a.resources)

	server.Any("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	server.Any("/debug/pprof/cmdline", echo.WrapHandler(http.HandlerFunc(pprof.Cmdline)))
	server.Any("/debug/pprof/profile", echo.WrapHandler(http.HandlerFunc(pprof.Profile)))
	server.Any("/debug/pprof/symbol", echo.WrapHandler(http.HandlerFunc(pprof.Symbol)))
	server.Any("/debug/pprof/trace", echo.WrapHandler(http.HandlerFunc(pprof.Trace)))

	return a
}

func (a *nodeAPIServer) health(c echo.Context) error {
	if a.holder.get() == nil {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}

func (a *nodeAPIServer) resources(c echo.Context) error {
	node := a.holder.get()
	if node == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable,
			"the node is reconnecting to the state store")
	}
	summary, err := node.summary(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}

func (a *nodeAPIServer) serve() error {
	bindAddr := fmt.Sprintf("%s:%d", a.opts.BindIP, a.opts.BindPort)
	logrus.Infof("starting node api server on [%s]", bindAddr)
	return a.server.Start(bindAddr)
}

func (a *nodeAPIServer) close() error {
	return a.server.Close()
}
