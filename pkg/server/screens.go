package server

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"proxyconsole/pkg/log"
	"proxyconsole/pkg/models"
	"proxyconsole/pkg/router"
	"proxyconsole/pkg/state"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

const hostInfoTimeout = 2 * time.Second

// ScreenDocument is everything a screen needs to render.
type ScreenDocument struct {
	Route   router.Route      `json:"route"`
	Section map[string]any    `json:"section,omitempty"`
	State   state.Snapshot    `json:"state"`
	About   *models.AboutInfo `json:"about,omitempty"`
}

// serveScreen handles GET on the screen paths.
func (cs *ConsoleServer) serveScreen(ctx echo.Context) error {
	path := ctx.Request().URL.Path

	route, err := router.Resolve(path)
	if errors.Is(err, router.ErrRouteNotFound) {
		log.Debug().Str("path", path).Msg("No screen for path")
		return errorJSON(ctx, http.StatusNotFound, err.Error()+": "+path)
	}
	if err != nil {
		return errorJSON(ctx, http.StatusInternalServerError, "Internal server error")
	}

	if route.RedirectedFrom != "" {
		return ctx.Redirect(http.StatusFound, route.Path)
	}

	doc := ScreenDocument{
		Route: route,
		State: cs.state.Snapshot(),
	}

	if route.Section != "" {
		section, err := cs.config().Section(route.Section)
		if err != nil {
			log.Error().Err(err).Str("section", route.Section).Msg("Failed to render config section")
			return errorJSON(ctx, http.StatusInternalServerError, "Failed to render configuration")
		}
		doc.Section = section
	}

	if route.Screen == router.Copyright {
		doc.About = cs.collectAbout(ctx.Request().Context())
	}

	return ctx.JSON(http.StatusOK, doc)
}

// collectAbout gathers version and host details. Host details are best effort.
func (cs *ConsoleServer) collectAbout(parent context.Context) *models.AboutInfo {
	about := &models.AboutInfo{
		Version:   cs.version,
		GoVersion: runtime.Version(),
	}

	ctx, cancel := context.WithTimeout(parent, hostInfoTimeout)
	defer cancel()

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to collect host information")
		return about
	}

	hostInfo := &models.HostInfo{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		Uptime:          formatUptime(info.Uptime),
		UptimeSeconds:   info.Uptime,
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		hostInfo.LoadAverages = models.LoadAverages{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		hostInfo.Memory = models.MemoryInfo{Total: vm.Total, Used: vm.Used, Available: vm.Available}
	}

	about.Host = hostInfo
	return about
}

// formatUptime converts seconds to human-readable format.
func formatUptime(seconds uint64) string {
	duration := time.Duration(seconds) * time.Second // #nosec G115 - uptime fits in int64
	const hoursInDay = 24
	const minutesInHour = 60
	days := int(duration.Hours()) / hoursInDay
	hours := int(duration.Hours()) % hoursInDay
	minutes := int(duration.Minutes()) % minutesInHour

	switch {
	case days > 0:
		return strconv.Itoa(days) + "d " + strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
	case hours > 0:
		return strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
	default:
		return strconv.Itoa(minutes) + "m"
	}
}
