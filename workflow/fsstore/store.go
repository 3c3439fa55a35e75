// Package fsstore persists workflow definitions as files on any storage
// reachable through github.com/viant/afs (local paths, file://, mem://, ...).
//
// Each definition lives at <base>/<id>.yaml. Files ending in .yml or .json
// placed in the directory by hand are read as well.
package fsstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentorch/types"
	"github.com/BaSui01/agentorch/workflow"
)

var extensions = []string{".yaml", ".yml", ".json"}

// WorkflowStore implements workflow.WorkflowStore on top of afs.
type WorkflowStore struct {
	baseURL string
	fs      afs.Service
	logger  *zap.Logger
	mu      sync.RWMutex
}

// New creates a store rooted at baseURL, creating the directory if needed.
func New(ctx context.Context, baseURL string, logger *zap.Logger) (*WorkflowStore, error) {
	return NewWithService(ctx, afs.New(), baseURL, logger)
}

// NewWithService is New with an explicit afs service.
func NewWithService(ctx context.Context, fs afs.Service, baseURL string, logger *zap.Logger) (*WorkflowStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL = url.Normalize(baseURL, file.Scheme)

	exists, err := fs.Exists(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("check workflow dir %s: %w", baseURL, err)
	}
	if !exists {
		if err := fs.Create(ctx, baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("create workflow dir %s: %w", baseURL, err)
		}
	}
	return &WorkflowStore{
		baseURL: baseURL,
		fs:      fs,
		logger:  logger.With(zap.String("component", "workflow_fsstore")),
	}, nil
}

// BaseURL returns the normalized storage location.
func (s *WorkflowStore) BaseURL() string {
	return s.baseURL
}

func (s *WorkflowStore) Save(ctx context.Context, def *workflow.WorkflowDefinition) error {
	if def == nil {
		return types.NewError(types.ErrInvalidWorkflow, "workflow definition cannot be nil")
	}
	if err := checkID(def.ID); err != nil {
		return err
	}
	data, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal workflow %s: %w", def.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 同一 ID 只保留一个文件
	for _, ext := range extensions[1:] {
		if err := s.deleteIfExists(ctx, s.fileURL(def.ID, ext)); err != nil {
			return err
		}
	}
	target := s.fileURL(def.ID, ".yaml")
	if err := s.fs.Upload(ctx, target, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save workflow %s to %s: %w", def.ID, target, err)
	}
	return nil
}

func (s *WorkflowStore) Get(ctx context.Context, workflowID string) (*workflow.WorkflowDefinition, error) {
	if err := checkID(workflowID); err != nil {
		return nil, types.Errorf(types.ErrWorkflowNotFound, "workflow not found: %s", workflowID)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ext := range extensions {
		target := s.fileURL(workflowID, ext)
		exists, err := s.fs.Exists(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("check workflow %s: %w", workflowID, err)
		}
		if !exists {
			continue
		}
		data, err := s.fs.DownloadWithURL(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("read workflow %s: %w", workflowID, err)
		}
		return decode(data, ext)
	}
	return nil, types.Errorf(types.ErrWorkflowNotFound, "workflow not found: %s", workflowID)
}

// List returns definitions sorted by ID. Files that fail to decode are
// logged and skipped.
func (s *WorkflowStore) List(ctx context.Context) ([]*workflow.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.baseURL, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("list workflows in %s: %w", s.baseURL, err)
	}

	seen := make(map[string]bool)
	defs := make([]*workflow.WorkflowDefinition, 0, len(objects))
	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(object.Name()))
		if !isDefinitionExt(ext) {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			s.logger.Warn("skip unreadable workflow file", zap.String("url", object.URL()), zap.Error(err))
			continue
		}
		def, err := decode(data, ext)
		if err != nil {
			s.logger.Warn("skip invalid workflow file", zap.String("url", object.URL()), zap.Error(err))
			continue
		}
		if seen[def.ID] {
			continue
		}
		seen[def.ID] = true
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs, nil
}

func (s *WorkflowStore) Delete(ctx context.Context, workflowID string) error {
	if err := checkID(workflowID); err != nil {
		return types.Errorf(types.ErrWorkflowNotFound, "workflow not found: %s", workflowID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := false
	for _, ext := range extensions {
		target := s.fileURL(workflowID, ext)
		exists, err := s.fs.Exists(ctx, target)
		if err != nil {
			return fmt.Errorf("check workflow %s: %w", workflowID, err)
		}
		if !exists {
			continue
		}
		if err := s.fs.Delete(ctx, target); err != nil {
			return fmt.Errorf("delete workflow %s: %w", workflowID, err)
		}
		deleted = true
	}
	if !deleted {
		return types.Errorf(types.ErrWorkflowNotFound, "workflow not found: %s", workflowID)
	}
	return nil
}

func (s *WorkflowStore) deleteIfExists(ctx context.Context, target string) error {
	exists, err := s.fs.Exists(ctx, target)
	if err != nil || !exists {
		return err
	}
	return s.fs.Delete(ctx, target)
}

func (s *WorkflowStore) fileURL(id, ext string) string {
	return url.Join(s.baseURL, id+ext)
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return types.Errorf(types.ErrInvalidWorkflow, "invalid workflow id %q for file storage", id)
	}
	return nil
}

func isDefinitionExt(ext string) bool {
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// decode 不做结构校验；严格校验只发生在注册时
func decode(data []byte, ext string) (*workflow.WorkflowDefinition, error) {
	var def workflow.WorkflowDefinition
	var err error
	if ext == ".json" {
		err = json.Unmarshal(data, &def)
	} else {
		err = yaml.Unmarshal(data, &def)
	}
	if err != nil {
		return nil, fmt.Errorf("decode workflow definition: %w", err)
	}
	return &def, nil
}

var _ workflow.WorkflowStore = (*WorkflowStore)(nil)
