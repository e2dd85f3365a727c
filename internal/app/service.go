package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"zenmap/api/internal/config"
	"zenmap/api/internal/mindmap"
	"zenmap/api/internal/model"
	"zenmap/api/internal/store"
	"zenmap/api/internal/util"
)

// DefaultProjectName is the project synthesized on first start so the app
// never boots without a place to put ideas.
const DefaultProjectName = "My Ideas"

type ProjectPayload struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type InboxItemPayload struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// ProjectData is the display payload for one project: the current tree and
// the pending inbox, most-recent-first.
type ProjectData struct {
	Map   json.RawMessage    `json:"map"`
	Inbox []InboxItemPayload `json:"inbox"`
}

type dataStore interface {
	ListProjects(context.Context) ([]store.Project, error)
	GetProject(context.Context, string) (store.Project, error)
	InsertProject(context.Context, store.Project) error
	DeleteProject(context.Context, string) error
	CountProjects(context.Context) (int, error)
	InsertInboxItem(context.Context, string, string) (int64, error)
	ListInboxItems(context.Context, string) ([]store.InboxItem, error)
	DeleteInboxItem(context.Context, int64) (string, error)
	LatestSnapshot(context.Context, string) (*store.Snapshot, error)
	InsertSnapshot(context.Context, string, string) (int64, error)
	CommitOrganize(context.Context, string, string, []int64) (int64, error)
	Ping(ctx context.Context) error
}

type projectCache interface {
	Get(context.Context, string) ([]byte, error)
	Set(context.Context, string, []byte) error
	Invalidate(context.Context, string) error
}

type Service struct {
	cfg    config.Config
	store  dataStore
	model  model.Generator
	cache  projectCache
	logger *zap.Logger

	// organize runs are serialized per project so concurrent requests
	// cannot consume overlapping inbox sets or interleave snapshots
	organizeMu    sync.Mutex
	organizeLocks map[string]*sync.Mutex
}

func New(cfg config.Config, dataStore *store.PostgresStore, generator model.Generator, logger *zap.Logger) *Service {
	return &Service{
		cfg:           cfg,
		store:         dataStore,
		model:         generator,
		logger:        logger,
		organizeLocks: make(map[string]*sync.Mutex),
	}
}

// NewWithCache wires an optional Redis read cache for project payloads.
func NewWithCache(cfg config.Config, dataStore *store.PostgresStore, generator model.Generator, cache projectCache, logger *zap.Logger) *Service {
	service := New(cfg, dataStore, generator, logger)
	service.cache = cache
	return service
}

// Bootstrap guarantees at least one project exists. Safe to call on every
// start.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.CountProjects(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	project := store.Project{
		ID:   util.NewID("proj"),
		Name: DefaultProjectName,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return err
	}
	s.logger.Info("created default project", zap.String("project_id", project.ID))
	return nil
}

func (s *Service) ListProjects(ctx context.Context) ([]ProjectPayload, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	payload := make([]ProjectPayload, 0, len(projects))
	for _, project := range projects {
		payload = append(payload, ProjectPayload{ID: project.ID, Name: project.Name, CreatedAt: project.CreatedAt})
	}
	return payload, nil
}

func (s *Service) CreateProject(ctx context.Context, name string) (ProjectPayload, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ProjectPayload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	project := store.Project{
		ID:   util.NewID("proj"),
		Name: name,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return ProjectPayload{}, err
	}
	stored, err := s.store.GetProject(ctx, project.ID)
	if err != nil {
		return ProjectPayload{}, err
	}
	return ProjectPayload{ID: stored.ID, Name: stored.Name, CreatedAt: stored.CreatedAt}, nil
}

// DeleteProject cascades to the project's inbox items and snapshots and is
// a no-op for unknown ids.
func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	s.invalidateCache(ctx, projectID)
	return nil
}

// ProjectData returns the current tree (the canonical default when the
// project has no snapshots) and the pending inbox. Reads may be served
// slightly stale from the cache; writes invalidate it.
func (s *Service) ProjectData(ctx context.Context, projectID string) (ProjectData, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return ProjectData{}, err
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, projectID)
		if err != nil {
			s.logger.Warn("project cache read failed", zap.String("project_id", projectID), zap.Error(err))
		} else if cached != nil {
			var data ProjectData
			if err := json.Unmarshal(cached, &data); err == nil {
				return data, nil
			}
		}
	}

	tree, err := s.currentTree(ctx, projectID)
	if err != nil {
		return ProjectData{}, err
	}

	items, err := s.store.ListInboxItems(ctx, projectID)
	if err != nil {
		return ProjectData{}, err
	}
	inbox := make([]InboxItemPayload, 0, len(items))
	for _, item := range items {
		inbox = append(inbox, InboxItemPayload{ID: item.ID, Text: item.Text})
	}

	data := ProjectData{Map: tree, Inbox: inbox}
	if s.cache != nil {
		if encoded, err := json.Marshal(data); err == nil {
			if err := s.cache.Set(ctx, projectID, encoded); err != nil {
				s.logger.Warn("project cache write failed", zap.String("project_id", projectID), zap.Error(err))
			}
		}
	}
	return data, nil
}

func (s *Service) AddInboxItem(ctx context.Context, projectID, text string) (InboxItemPayload, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return InboxItemPayload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return InboxItemPayload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "project not found", nil)
		}
		return InboxItemPayload{}, err
	}
	id, err := s.store.InsertInboxItem(ctx, projectID, text)
	if err != nil {
		return InboxItemPayload{}, err
	}
	s.invalidateCache(ctx, projectID)
	return InboxItemPayload{ID: id, Text: text}, nil
}

// RemoveInboxItem deletes one pending item; unknown ids are a no-op.
func (s *Service) RemoveInboxItem(ctx context.Context, itemID int64) error {
	projectID, err := s.store.DeleteInboxItem(ctx, itemID)
	if err != nil {
		return err
	}
	if projectID != "" {
		s.invalidateCache(ctx, projectID)
	}
	return nil
}

// SaveMap appends a manually edited tree as a new snapshot. The tree is
// validated before it is persisted; history is never rewritten.
func (s *Service) SaveMap(ctx context.Context, projectID string, tree json.RawMessage) (json.RawMessage, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	content, err := normalizeTree(tree)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.InsertSnapshot(ctx, projectID, string(content)); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, projectID)
	return content, nil
}

// Organize merges all pending inbox items into the current tree via the
// model capability and commits the result as a new snapshot, clearing
// exactly the consumed items. currentTree optionally overrides the stored
// tree (the editor sends its live state); pass nil to use the latest
// snapshot. Every failure path leaves inbox and history untouched.
func (s *Service) Organize(ctx context.Context, projectID string, currentTree json.RawMessage) (json.RawMessage, error) {
	lock := s.organizeLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	if s.model == nil {
		return nil, domainError(http.StatusServiceUnavailable, "MODEL_UNAVAILABLE", "model capability is not configured", nil)
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "project not found", nil)
		}
		return nil, err
	}

	items, err := s.store.ListInboxItems(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		// guard before the model call: an empty inbox must not cost a request
		return nil, domainError(http.StatusBadRequest, "NOTHING_TO_ORGANIZE", "inbox is empty", nil)
	}

	tree := currentTree
	if len(tree) == 0 {
		tree, err = s.currentTree(ctx, projectID)
		if err != nil {
			return nil, err
		}
	} else if !json.Valid(tree) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "map must be valid JSON", nil)
	}

	texts := make([]string, 0, len(items))
	itemIDs := make([]int64, 0, len(items))
	for _, item := range items {
		texts = append(texts, item.Text)
		itemIDs = append(itemIDs, item.ID)
	}
	prompt := buildOrganizePrompt(string(tree), texts)

	reply, err := s.model.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("model invocation failed", zap.String("project_id", projectID), zap.Error(err))
		return nil, domainError(http.StatusBadGateway, "MODEL_INVOCATION_FAILED", "model invocation failed", err.Error())
	}

	node, err := mindmap.Extract(reply)
	if err != nil {
		var extractionErr *mindmap.ExtractionError
		if errors.As(err, &extractionErr) {
			s.logger.Warn("model reply unusable",
				zap.String("project_id", projectID),
				zap.String("kind", string(extractionErr.Kind)),
				zap.String("detail", extractionErr.Detail),
			)
			return nil, domainError(http.StatusBadGateway, "EXTRACTION_FAILED", "model reply did not contain a usable mind map", map[string]any{
				"kind":   extractionErr.Kind,
				"detail": extractionErr.Detail,
			})
		}
		return nil, err
	}

	content, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("marshal organized tree: %w", err)
	}

	snapshotID, err := s.store.CommitOrganize(ctx, projectID, string(content), itemIDs)
	if err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, projectID)
	s.logger.Info("organized inbox into new snapshot",
		zap.String("project_id", projectID),
		zap.Int64("snapshot_id", snapshotID),
		zap.Int("items_consumed", len(itemIDs)),
	)
	return content, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// currentTree returns the latest snapshot content, or the canonical default
// tree for a project with no history.
func (s *Service) currentTree(ctx context.Context, projectID string) (json.RawMessage, error) {
	snapshot, err := s.store.LatestSnapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		content, err := json.Marshal(mindmap.DefaultTree())
		if err != nil {
			return nil, fmt.Errorf("marshal default tree: %w", err)
		}
		return content, nil
	}
	return json.RawMessage(snapshot.Content), nil
}

// normalizeTree validates an untyped tree document and re-serializes it in
// canonical field order.
func normalizeTree(tree json.RawMessage) (json.RawMessage, error) {
	if len(tree) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "map is required", nil)
	}
	var doc any
	if err := json.Unmarshal(tree, &doc); err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "map must be valid JSON", nil)
	}
	node, err := mindmap.Validate(doc)
	if err != nil {
		var validationErr *mindmap.ValidationError
		if errors.As(err, &validationErr) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid mind map structure", map[string]any{
				"path":   validationErr.Path,
				"detail": validationErr.Message,
			})
		}
		return nil, err
	}
	content, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("marshal tree: %w", err)
	}
	return content, nil
}

// buildOrganizePrompt is deterministic for identical inputs.
func buildOrganizePrompt(currentMap string, texts []string) string {
	var b strings.Builder
	b.WriteString("You are an expert at organizing mind maps.\n")
	b.WriteString("Below are the current mind map structure (JSON) and a list of new, unsorted ideas.\n")
	b.WriteString("Add each idea to the branch of the mind map where it fits best, using the context to decide placement.\n")
	b.WriteString("Output only pure JSON data with the same structure (id, topic, children). No Markdown formatting.\n")
	b.WriteString("\n[Current mind map]\n")
	b.WriteString(currentMap)
	b.WriteString("\n\n[Ideas to add]\n")
	for _, text := range texts {
		b.WriteString("- ")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

func (s *Service) organizeLock(projectID string) *sync.Mutex {
	s.organizeMu.Lock()
	defer s.organizeMu.Unlock()
	lock, ok := s.organizeLocks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.organizeLocks[projectID] = lock
	}
	return lock
}

func (s *Service) invalidateCache(ctx context.Context, projectID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, projectID); err != nil {
		s.logger.Warn("project cache invalidation failed", zap.String("project_id", projectID), zap.Error(err))
	}
}
