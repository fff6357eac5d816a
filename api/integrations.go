package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func integrationStatus(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}
		status, err := d.Calendar.Status(c.Request().Context(), userID)
		if err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.JSON(http.StatusOK, status)
	}
}

func beginConnect(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}
		auth, err := d.Calendar.BeginConnect(c.Request().Context(), userID)
		if err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.JSON(http.StatusOK, auth)
	}
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

func completeConnect(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}

		var req callbackRequest
		if err := decodeBody(c, &req); err != nil || req.Code == "" || req.State == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		if err := d.Calendar.CompleteConnect(c.Request().Context(), userID, req.Code, req.State); err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func enableSync(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}
		if err := d.Calendar.EnableSync(c.Request().Context(), userID); err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func disableSync(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}
		if err := d.Calendar.DisableSync(c.Request().Context(), userID); err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func syncNow(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}
		result, err := d.Calendar.Sync(c.Request().Context(), userID)
		if err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.JSON(http.StatusOK, result)
	}
}

func disconnectCalendar(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}
		if err := d.Calendar.Disconnect(c.Request().Context(), userID); err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
