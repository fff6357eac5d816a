package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const streamHeartbeat = 25 * time.Second

// streamChanges serves the per-user change feed as server-sent events.
// Each change triggers a snapshot refetch; the event payload is the full
// task list, so a dropped event costs freshness, never correctness.
func streamChanges(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		// EventSource cannot set headers, so the token may arrive as a
		// query parameter instead.
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			if token := c.QueryParam("token"); token != "" {
				header = "Bearer " + token
			}
		}
		userID, err := d.Auth.UserIDFromAuthHeader(header)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if d.Feed == nil {
			return c.String(http.StatusServiceUnavailable, "stream unavailable")
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		sub := d.Feed.Subscribe(ctx, userID)
		defer sub.Close()

		send := func() bool {
			tasks, err := d.Tasks.List(ctx, userID)
			if err != nil {
				d.Logger.WithError(err).Error("stream snapshot fetch failed")
				return true
			}
			data, err := sonic.Marshal(tasksResponse{Tasks: tasks})
			if err != nil {
				return true
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return false
			}
			if _, err := c.Response().Write(data); err != nil {
				return false
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return false
			}
			flusher.Flush()
			return true
		}

		// Initial snapshot so the client renders without waiting for a
		// change.
		if !send() {
			return nil
		}

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case _, ok := <-sub.C:
				if !ok {
					return nil
				}
				if !send() {
					return nil
				}
			case <-heartbeat.C:
				if _, err := c.Response().Write([]byte(": ping\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}
