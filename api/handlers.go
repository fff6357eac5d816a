package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/calendar"
	"taskboard-api/depgraph"
	"taskboard-api/domain"
	"taskboard-api/notify"
	"taskboard-api/storage"
	"taskboard-api/taskstore"
)

// requestBodyMaxSize bounds every decoded request body.
const requestBodyMaxSize = 1 << 20

// Deps collects the collaborators the HTTP surface is wired with.
// Inviter, Calendar and Feed may be nil; their routes then report the
// feature as unavailable.
type Deps struct {
	Tasks      Tasks
	Categories Categories
	Profiles   Profiles
	Calendar   Calendar
	Inviter    Inviter
	Feed       Feed
	Auth       Authenticator
	Logger     *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.New()
	}

	e.GET("/api/tasks", listTasks(d))
	e.POST("/api/tasks", createTask(d))
	e.PATCH("/api/tasks/:id", updateTask(d))
	e.DELETE("/api/tasks/:id", deleteTask(d))
	e.POST("/api/tasks/:id/move", moveTask(d))
	e.POST("/api/tasks/:id/dependencies", addDependency(d))
	e.DELETE("/api/tasks/:id/dependencies/:dependencyId", removeDependency(d))

	e.GET("/api/categories", listCategories(d))
	e.POST("/api/categories", createCategory(d))
	e.PATCH("/api/categories/:id", updateCategory(d))
	e.DELETE("/api/categories/:id", deleteCategory(d))

	e.GET("/api/profile", getProfile(d))
	e.PUT("/api/profile", putProfile(d))

	e.GET("/api/integrations", integrationStatus(d))
	e.POST("/api/integrations/microsoft/connect", beginConnect(d))
	e.POST("/api/integrations/microsoft/callback", completeConnect(d))
	e.POST("/api/integrations/microsoft/sync/enable", enableSync(d))
	e.POST("/api/integrations/microsoft/sync/disable", disableSync(d))
	e.POST("/api/integrations/microsoft/sync", syncNow(d))
	e.POST("/api/integrations/microsoft/disconnect", disconnectCalendar(d))

	e.GET("/api/stream", streamChanges(d))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// authenticate resolves the caller or writes a 401. The bool reports
// whether the handler should continue.
func authenticate(c echo.Context, auth Authenticator) (string, bool, error) {
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return "", false, c.String(http.StatusUnauthorized, err.Error())
	}
	return userID, true, nil
}

// decodeBody decodes a JSON request body, rejecting unknown fields and
// oversized payloads.
func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeError maps domain errors onto HTTP statuses. Validation refusals
// carry their specific message so the client can show why the graph
// mutation was rejected.
func writeError(c echo.Context, logger *log.Logger, err error) error {
	var ve *depgraph.ValidationError
	if errors.As(err, &ve) {
		if ve.Kind == depgraph.KindUnknownTask {
			return c.String(http.StatusNotFound, ve.Error())
		}
		return c.String(http.StatusConflict, ve.Error())
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.String(http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrConflict):
		return c.String(http.StatusConflict, "conflict")
	case errors.Is(err, taskstore.ErrEmptyTitle),
		errors.Is(err, taskstore.ErrInvalidStatus),
		errors.Is(err, taskstore.ErrEmptyCategoryName),
		errors.Is(err, calendar.ErrNotConnected),
		errors.Is(err, calendar.ErrStateExpired):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, calendar.ErrConnectionExpired):
		return c.String(http.StatusUnauthorized, err.Error())
	case errors.Is(err, calendar.ErrSyncDisabled):
		return c.String(http.StatusConflict, err.Error())
	}

	var syncErr *calendar.SyncError
	if errors.As(err, &syncErr) {
		logger.WithError(err).Error("calendar sync failure")
		return c.String(http.StatusBadGateway, "calendar provider unavailable")
	}

	logger.WithError(err).Error("request failed")
	return c.String(http.StatusInternalServerError, "internal error")
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

func listTasks(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, d.Logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		tasks, fetchErr := d.Tasks.List(ctx, userID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			err = writeError(c, d.Logger, fetchErr)
			return err
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

type inviteSummary struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type createTaskResponse struct {
	Task    domain.Task    `json:"task"`
	Invites *inviteSummary `json:"invites,omitempty"`
}

func createTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}

		var req taskstore.CreateRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		task, err := d.Tasks.Create(c.Request().Context(), userID, req)
		if err != nil {
			return writeError(c, d.Logger, err)
		}

		resp := createTaskResponse{Task: task}
		if d.Inviter != nil && task.EventType == domain.EventTypeMeeting && len(task.Attendees) > 0 {
			sent, failed := d.Inviter.SendMeetingInvites(c.Request().Context(), task.Attendees, notify.MeetingDetails{
				Title:     task.Title,
				StartTime: task.StartTime,
				EndTime:   task.EndTime,
				Location:  task.Location,
				Organizer: userID,
			})
			resp.Invites = &inviteSummary{Sent: sent, Failed: failed}
		}
		return c.JSON(http.StatusCreated, resp)
	}
}

func updateTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}

		var patch domain.TaskUpdate
		if err := decodeBody(c, &patch); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if patch.Empty() {
			return c.String(http.StatusBadRequest, "empty patch")
		}

		task, err := d.Tasks.Update(c.Request().Context(), userID, c.Param("id"), patch)
		if err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}
		if err := d.Tasks.Delete(c.Request().Context(), userID, c.Param("id")); err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type moveRequest struct {
	Status domain.Status `json:"status"`
}

func moveTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}

		var req moveRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		task, err := d.Tasks.Move(c.Request().Context(), userID, c.Param("id"), req.Status)
		if err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

type dependencyRequest struct {
	DependencyID string `json:"dependencyId"`
}

func addDependency(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}

		var req dependencyRequest
		if err := decodeBody(c, &req); err != nil || req.DependencyID == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		if err := d.Tasks.AddDependency(c.Request().Context(), userID, c.Param("id"), req.DependencyID); err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func removeDependency(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}
		if err := d.Tasks.RemoveDependency(c.Request().Context(), userID, c.Param("id"), c.Param("dependencyId")); err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func listCategories(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}
		categories, err := d.Categories.List(c.Request().Context(), userID)
		if err != nil {
			return writeError(c, d.Logger, err)
		}
		if categories == nil {
			categories = []domain.Category{}
		}
		return c.JSON(http.StatusOK, categories)
	}
}

type categoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func createCategory(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}

		var req categoryRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		cat, err := d.Categories.Create(c.Request().Context(), userID, req.Name, req.Color)
		if err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.JSON(http.StatusCreated, cat)
	}
}

func updateCategory(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}

		var req categoryRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		cat, err := d.Categories.Update(c.Request().Context(), userID, domain.Category{
			ID:    c.Param("id"),
			Name:  req.Name,
			Color: req.Color,
		})
		if err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.JSON(http.StatusOK, cat)
	}
}

func deleteCategory(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}
		if err := d.Categories.Delete(c.Request().Context(), userID, c.Param("id")); err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getProfile(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}
		profile, err := d.Profiles.GetProfile(c.Request().Context(), userID)
		if err != nil {
			return writeError(c, d.Logger, err)
		}
		profile.ID = userID
		return c.JSON(http.StatusOK, profile)
	}
}

type profileRequest struct {
	Email                string `json:"email"`
	Theme                string `json:"theme"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
}

func putProfile(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}

		var req profileRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		// Load first so the stored refresh credential survives the write.
		profile, err := d.Profiles.GetProfile(c.Request().Context(), userID)
		if err != nil {
			return writeError(c, d.Logger, err)
		}
		profile.ID = userID
		profile.Email = req.Email
		profile.Theme = req.Theme
		profile.NotificationsEnabled = req.NotificationsEnabled
		if err := d.Profiles.UpsertProfile(c.Request().Context(), profile); err != nil {
			return writeError(c, d.Logger, err)
		}
		return c.JSON(http.StatusOK, profile)
	}
}
