// Package taskstore owns the task lifecycle and the dependency edge set.
// It is the only component allowed to mutate persisted task state; every
// mutation is validated against the dependency graph first and announced
// on the change feed after it lands.
package taskstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard-api/depgraph"
	"taskboard-api/domain"
	"taskboard-api/storage"
)

// Rows is the slice of the persistence collaborator the store writes
// through. Implemented by *storage.Storage.
type Rows interface {
	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)
	GetTask(ctx context.Context, userID, taskID string) (domain.Task, error)
	InsertTask(ctx context.Context, userID string, t domain.Task) error
	UpdateTask(ctx context.Context, userID string, t domain.Task) error
	DeleteTask(ctx context.Context, userID, taskID string) error

	FetchDependencies(ctx context.Context, userID string) ([]domain.Dependency, error)
	InsertDependency(ctx context.Context, userID string, edge domain.Dependency) error
	DeleteDependency(ctx context.Context, userID, dependentID, dependencyID string) error
}

// Publisher announces persisted mutations on the change feed.
type Publisher interface {
	Publish(ctx context.Context, ch storage.Change)
}

// Evictor drops cached reads after a write.
type Evictor interface {
	Evict(ctx context.Context, userID string)
}

// ReminderScheduler queues a reminder for later dispatch.
type ReminderScheduler interface {
	EnqueueReminder(ctx context.Context, r storage.Reminder) error
}

// Options tune store behavior.
type Options struct {
	// AllowUngatedMove exempts Move from completion gating, matching the
	// historical drag-and-drop behavior. Off by default so Move and
	// Update enforce the same rule.
	AllowUngatedMove bool
}

// Store is the task aggregate store.
type Store struct {
	rows      Rows
	publisher Publisher
	evictor   Evictor
	reminders ReminderScheduler
	logger    *log.Logger
	opts      Options
	now       func() time.Time
	newID     func() string
}

// New creates a Store. publisher, evictor and reminders may be nil.
func New(rows Rows, publisher Publisher, evictor Evictor, reminders ReminderScheduler, logger *log.Logger, opts Options) *Store {
	if rows == nil {
		panic("taskstore.New: rows is nil")
	}
	if logger == nil {
		logger = log.New()
	}
	return &Store{
		rows:      rows,
		publisher: publisher,
		evictor:   evictor,
		reminders: reminders,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// CreateRequest carries the fields of a new task. Tags arrive as names;
// colors are assigned once here and persisted.
type CreateRequest struct {
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Priority        domain.Priority  `json:"priority"`
	DueDate         time.Time        `json:"dueDate"`
	Dependencies    []string         `json:"dependencies"`
	CategoryIDs     []string         `json:"categoryIds"`
	Tags            []string         `json:"tags"`
	Subtasks        []domain.Subtask `json:"subtasks"`
	EventType       domain.EventType `json:"eventType"`
	StartTime       time.Time        `json:"startTime"`
	EndTime         time.Time        `json:"endTime"`
	Attendees       []string         `json:"attendees"`
	RecurrenceRule  string           `json:"recurrenceRule"`
	ReminderMinutes int              `json:"reminderMinutes"`
	Location        string           `json:"location"`
	Sensitivity     string           `json:"sensitivity"`
}

// ErrEmptyTitle rejects tasks without a title.
var ErrEmptyTitle = errors.New("task title must not be empty")

// ErrInvalidStatus rejects unknown status values.
var ErrInvalidStatus = errors.New("invalid task status")

// Create validates every requested dependency edge before anything is
// written, then inserts the task row followed by one row per edge. The
// commit is all-or-nothing: a failed edge insert rolls back the rows
// already written before the error is returned.
func (s *Store) Create(ctx context.Context, userID string, req CreateRequest) (domain.Task, error) {
	if req.Title == "" {
		return domain.Task{}, ErrEmptyTitle
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return domain.Task{}, errors.New("invalid task priority")
	}

	task := domain.Task{
		ID:              s.newID(),
		Title:           req.Title,
		Description:     req.Description,
		Priority:        priority,
		Status:          domain.StatusTodo,
		DueDate:         req.DueDate,
		CreatedAt:       s.now().UTC(),
		CategoryIDs:     req.CategoryIDs,
		Subtasks:        req.Subtasks,
		EventType:       req.EventType,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Attendees:       req.Attendees,
		RecurrenceRule:  req.RecurrenceRule,
		ReminderMinutes: req.ReminderMinutes,
		Location:        req.Location,
		Sensitivity:     req.Sensitivity,
	}
	for _, name := range dedupe(req.Tags) {
		task.Tags = append(task.Tags, domain.NewTag(name))
	}

	deps := dedupe(req.Dependencies)
	if len(deps) > 0 {
		nodes, edges, err := s.snapshot(ctx, userID)
		if err != nil {
			return domain.Task{}, err
		}
		nodes = append(nodes, depgraph.Node{ID: task.ID, Status: task.Status, DueDate: task.DueDate})
		for _, dep := range deps {
			g := depgraph.New(nodes, edges)
			if err := g.CanAddEdge(task.ID, dep); err != nil {
				return domain.Task{}, err
			}
			edges = append(edges, domain.Dependency{DependentID: task.ID, DependencyID: dep})
		}
	}

	if err := s.rows.InsertTask(ctx, userID, task); err != nil {
		return domain.Task{}, err
	}
	written := make([]string, 0, len(deps))
	for _, dep := range deps {
		edge := domain.Dependency{DependentID: task.ID, DependencyID: dep, CreatedAt: task.CreatedAt}
		if err := s.rows.InsertDependency(ctx, userID, edge); err != nil {
			s.rollbackCreate(ctx, userID, task.ID, written)
			return domain.Task{}, err
		}
		written = append(written, dep)
	}
	task.Dependencies = deps

	s.scheduleReminder(ctx, userID, task)
	s.announce(ctx, userID, storage.EntityTask, task.ID, storage.ChangeCreated)
	return task, nil
}

// rollbackCreate compensates a partially applied create so the caller
// never observes a half-written task.
func (s *Store) rollbackCreate(ctx context.Context, userID, taskID string, edges []string) {
	for _, dep := range edges {
		if err := s.rows.DeleteDependency(ctx, userID, taskID, dep); err != nil {
			s.logger.WithError(err).Errorf("rollback edge %s -> %s", taskID, dep)
		}
	}
	if err := s.rows.DeleteTask(ctx, userID, taskID); err != nil {
		s.logger.WithError(err).Errorf("rollback task %s", taskID)
	}
}

// Update applies a typed patch. A transition to completed is gated on
// every direct dependency being completed; on violation the stored task
// keeps its prior state.
func (s *Store) Update(ctx context.Context, userID, taskID string, patch domain.TaskUpdate) (domain.Task, error) {
	current, err := s.rows.GetTask(ctx, userID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return domain.Task{}, ErrInvalidStatus
	}
	if patch.Status != nil && *patch.Status == domain.StatusCompleted && current.Status != domain.StatusCompleted {
		if err := s.gateCompletion(ctx, userID, taskID); err != nil {
			return domain.Task{}, err
		}
	}

	updated := patch.Apply(current)
	if err := s.rows.UpdateTask(ctx, userID, updated); err != nil {
		return domain.Task{}, err
	}

	s.announce(ctx, userID, storage.EntityTask, taskID, storage.ChangeUpdated)
	return s.withEdges(ctx, userID, updated)
}

// Move is the status-only transition used by the board columns. Whether
// it honors completion gating is an explicit configuration choice.
func (s *Store) Move(ctx context.Context, userID, taskID string, newStatus domain.Status) (domain.Task, error) {
	if !newStatus.Valid() {
		return domain.Task{}, ErrInvalidStatus
	}
	current, err := s.rows.GetTask(ctx, userID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if newStatus == domain.StatusCompleted && current.Status != domain.StatusCompleted && !s.opts.AllowUngatedMove {
		if err := s.gateCompletion(ctx, userID, taskID); err != nil {
			return domain.Task{}, err
		}
	}

	current.Status = newStatus
	if err := s.rows.UpdateTask(ctx, userID, current); err != nil {
		return domain.Task{}, err
	}

	s.announce(ctx, userID, storage.EntityTask, taskID, storage.ChangeUpdated)
	return s.withEdges(ctx, userID, current)
}

// Delete removes a task unless other tasks still depend on it. The
// task's own outgoing edges are cleaned up with it.
func (s *Store) Delete(ctx context.Context, userID, taskID string) error {
	if _, err := s.rows.GetTask(ctx, userID, taskID); err != nil {
		return err
	}
	nodes, edges, err := s.snapshot(ctx, userID)
	if err != nil {
		return err
	}
	g := depgraph.New(nodes, edges)
	if err := g.CanDelete(taskID); err != nil {
		return err
	}

	for _, dep := range g.Dependencies(taskID) {
		if err := s.rows.DeleteDependency(ctx, userID, taskID, dep); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	if err := s.rows.DeleteTask(ctx, userID, taskID); err != nil {
		return err
	}

	s.announce(ctx, userID, storage.EntityTask, taskID, storage.ChangeDeleted)
	return nil
}

// AddDependency creates the validated edge taskID -> dependencyID.
func (s *Store) AddDependency(ctx context.Context, userID, taskID, dependencyID string) error {
	nodes, edges, err := s.snapshot(ctx, userID)
	if err != nil {
		return err
	}
	g := depgraph.New(nodes, edges)
	if err := g.CanAddEdge(taskID, dependencyID); err != nil {
		return err
	}
	edge := domain.Dependency{DependentID: taskID, DependencyID: dependencyID, CreatedAt: s.now().UTC()}
	if err := s.rows.InsertDependency(ctx, userID, edge); err != nil {
		return err
	}

	s.announce(ctx, userID, storage.EntityTask, taskID, storage.ChangeUpdated)
	return nil
}

// RemoveDependency deletes the edge taskID -> dependencyID.
func (s *Store) RemoveDependency(ctx context.Context, userID, taskID, dependencyID string) error {
	if err := s.rows.DeleteDependency(ctx, userID, taskID, dependencyID); err != nil {
		return err
	}
	s.announce(ctx, userID, storage.EntityTask, taskID, storage.ChangeUpdated)
	return nil
}

// List returns the user's tasks with dependency edges merged into each
// task view.
func (s *Store) List(ctx context.Context, userID string) ([]domain.Task, error) {
	tasks, err := s.rows.FetchTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	edges, err := s.rows.FetchDependencies(ctx, userID)
	if err != nil {
		return nil, err
	}
	byDependent := make(map[string][]string, len(edges))
	for _, e := range edges {
		byDependent[e.DependentID] = append(byDependent[e.DependentID], e.DependencyID)
	}
	for i := range tasks {
		tasks[i].Dependencies = byDependent[tasks[i].ID]
	}
	return tasks, nil
}

// Get returns one task with its dependency edges merged in.
func (s *Store) Get(ctx context.Context, userID, taskID string) (domain.Task, error) {
	task, err := s.rows.GetTask(ctx, userID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	return s.withEdges(ctx, userID, task)
}

func (s *Store) withEdges(ctx context.Context, userID string, task domain.Task) (domain.Task, error) {
	edges, err := s.rows.FetchDependencies(ctx, userID)
	if err != nil {
		return domain.Task{}, err
	}
	task.Dependencies = nil
	for _, e := range edges {
		if e.DependentID == task.ID {
			task.Dependencies = append(task.Dependencies, e.DependencyID)
		}
	}
	return task, nil
}

func (s *Store) gateCompletion(ctx context.Context, userID, taskID string) error {
	nodes, edges, err := s.snapshot(ctx, userID)
	if err != nil {
		return err
	}
	return depgraph.New(nodes, edges).CanComplete(taskID)
}

func (s *Store) snapshot(ctx context.Context, userID string) ([]depgraph.Node, []domain.Dependency, error) {
	tasks, err := s.rows.FetchTasks(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	edges, err := s.rows.FetchDependencies(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	nodes := make([]depgraph.Node, 0, len(tasks))
	for _, t := range tasks {
		nodes = append(nodes, depgraph.Node{ID: t.ID, Status: t.Status, DueDate: t.DueDate})
	}
	return nodes, edges, nil
}

// scheduleReminder queues a reminder for meeting-style tasks that carry a
// reminder offset. Failures never fail the task mutation.
func (s *Store) scheduleReminder(ctx context.Context, userID string, task domain.Task) {
	if s.reminders == nil || task.ReminderMinutes <= 0 || task.StartTime.IsZero() {
		return
	}
	r := storage.Reminder{
		UserID:   userID,
		TaskID:   task.ID,
		Title:    task.Title,
		RemindAt: task.StartTime.Add(-time.Duration(task.ReminderMinutes) * time.Minute),
	}
	if err := s.reminders.EnqueueReminder(ctx, r); err != nil {
		s.logger.WithError(err).Warnf("enqueue reminder for task %s", task.ID)
	}
}

// announce publishes the change and evicts cached reads. Both are side
// channels; neither failure unwinds the committed write.
func (s *Store) announce(ctx context.Context, userID, entityType, entityID, kind string) {
	if s.evictor != nil {
		s.evictor.Evict(ctx, userID)
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, storage.Change{
			UserID:     userID,
			EntityType: entityType,
			EntityID:   entityID,
			Kind:       kind,
		})
	}
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
