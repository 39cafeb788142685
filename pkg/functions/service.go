package functions

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/funcrun/pkg/interpreter"
)

// DefaultListLimit is used when a list or search request sets no limit.
const DefaultListLimit = 100

// Service validates and stores functions and runs them through a
// code runner.
type Service struct {
	store  Store
	runner interpreter.CodeRunner
	now    func() time.Time
	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service. runner may be nil, in which case Execute
// fails with interpreter.ErrServiceUnavailable.
func NewService(store Store, runner interpreter.CodeRunner, opts ...ServiceOption) *Service {
	if runner == nil {
		runner = interpreter.NoOpRunner{}
	}
	s := &Service{
		store:  store,
		runner: runner,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and stores a new function.
func (s *Service) Create(ctx context.Context, fn Function) (*Function, error) {
	if err := fn.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.store.Exists(ctx, fn.Name)
	if err != nil {
		return nil, fmt.Errorf("checking function %q: %w", fn.Name, err)
	}
	if exists {
		return nil, fmt.Errorf("function %q: %w", fn.Name, ErrConflict)
	}

	now := s.now().Unix()
	fn.Runtime = Runtime{Kind: RuntimePython}
	fn.CreatedAt = now
	fn.UpdatedAt = now

	if err := s.store.Save(ctx, fn); err != nil {
		return nil, fmt.Errorf("saving function %q: %w", fn.Name, err)
	}
	s.logger.Info("function created", "name", fn.Name, "deps", len(fn.Deps))
	return &fn, nil
}

// Get returns the named function.
func (s *Service) Get(ctx context.Context, name string) (*Function, error) {
	fn, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("function %q: %w", name, err)
	}
	return fn, nil
}

// List returns a page of functions. A non-blank query switches to a name
// search, which is not paginated. Code is omitted unless includeCode is set.
func (s *Service) List(ctx context.Context, query string, opts ListOptions, includeCode bool) (*FunctionList, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}

	var list *FunctionList
	if q := strings.TrimSpace(query); q != "" {
		found, err := s.store.Search(ctx, q, opts.Limit)
		if err != nil {
			return nil, fmt.Errorf("searching functions: %w", err)
		}
		list = &FunctionList{Data: found}
	} else {
		page, err := s.store.List(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("listing functions: %w", err)
		}
		list = page
	}

	if !includeCode {
		for i := range list.Data {
			list.Data[i].Code = ""
		}
	}
	return list, nil
}

// Update validates and applies a partial update.
func (s *Service) Update(ctx context.Context, name string, u Update) (*Function, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	fn, err := s.store.Update(ctx, name, u)
	if err != nil {
		return nil, fmt.Errorf("updating function %q: %w", name, err)
	}
	s.logger.Info("function updated", "name", name)
	return fn, nil
}

// Delete removes the named function.
func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.store.Delete(ctx, name); err != nil {
		return fmt.Errorf("deleting function %q: %w", name, err)
	}
	s.logger.Info("function deleted", "name", name)
	return nil
}

// Execute runs the named function with params, a JSON object or empty.
// Progress events go to sink.
func (s *Service) Execute(ctx context.Context, name string, params []byte, sink interpreter.EventSink) (*interpreter.CodeExecResult, error) {
	fn, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.runner.RunCode(ctx, ExecuteRequest(fn, params), sink)
}

// ExecuteRequest builds the interpreter request for a stored function.
func ExecuteRequest(fn *Function, params []byte) interpreter.CodeExecuteReq {
	req := interpreter.CodeExecuteReq{
		FunName:     fn.Name,
		Deps:        fn.Deps,
		EncodedCode: base64.StdEncoding.EncodeToString([]byte(fn.Code)),
	}
	if p := bytes.TrimSpace(params); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		req.EncodedJSONParams = base64.StdEncoding.EncodeToString(p)
	}
	return req
}
