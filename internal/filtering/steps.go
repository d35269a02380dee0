package filtering

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DefaultExtensions is used when the config lists none.
var DefaultExtensions = []string{".pdf"}

// DefaultSteps returns the intake pipeline in execution order.
func DefaultSteps() []Filter {
	return []Filter{
		NewExtension(),
		NewMaxSize(),
		NewAlreadyUploaded(),
	}
}

type extensionFilter struct {
	allowed []string
}

// NewExtension creates a filter that removes files of unsupported types.
func NewExtension() Filter {
	return &extensionFilter{}
}

func (f *extensionFilter) Name() string { return "extension" }

func (f *extensionFilter) Disable(string) {}

func (f *extensionFilter) IsEnabled() bool { return true }

func (f *extensionFilter) Validate(cfg *Config) error {
	f.allowed = f.allowed[:0]

	exts := DefaultExtensions
	if cfg != nil && len(cfg.Extensions) > 0 {
		exts = cfg.Extensions
	}

	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		switch ext {
		case ".pdf", ".docx":
		default:
			return fmt.Errorf("unsupported extension %q", ext)
		}
		f.allowed = append(f.allowed, ext)
	}

	if len(f.allowed) == 0 {
		return fmt.Errorf("no extensions allowed")
	}
	return nil
}

func (f *extensionFilter) Apply(_ context.Context, deps Deps, files *Files) (*Files, Step, error) {
	initial := files.Len()
	excluded := files.Exclude(func(file *File) bool {
		ext := strings.ToLower(filepath.Ext(file.Name))
		for _, allowed := range f.allowed {
			if ext == allowed {
				return false
			}
		}
		return true
	})
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Info("excluding files of unsupported type",
			zap.Strings("excluded_files", excluded),
			zap.Strings("allowed", f.allowed),
		)
	}

	return files, Step{Initial: initial, Dropped: len(excluded), Left: files.Len()}, nil
}

func (f *extensionFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: true, Details: map[string]string{
		"allowed": strings.Join(f.allowed, ","),
	}}
}

type maxSizeFilter struct {
	enabled bool
	reason  string
	limit   int64
}

// NewMaxSize creates a filter that removes files above the configured size.
func NewMaxSize() Filter {
	return &maxSizeFilter{enabled: true}
}

func (f *maxSizeFilter) Name() string { return "max_size" }

func (f *maxSizeFilter) Disable(reason string) {
	f.enabled = false
	f.reason = reason
}

func (f *maxSizeFilter) IsEnabled() bool { return f.enabled }

func (f *maxSizeFilter) Validate(cfg *Config) error {
	f.limit = 0
	if cfg != nil {
		f.limit = cfg.MaxSize
	}
	if f.limit < 0 {
		return fmt.Errorf("max size must not be negative")
	}
	return nil
}

func (f *maxSizeFilter) Apply(_ context.Context, deps Deps, files *Files) (*Files, Step, error) {
	initial := files.Len()
	if f.limit == 0 {
		return files, Step{Initial: initial, Dropped: 0, Left: initial}, nil
	}

	excluded := files.Exclude(func(file *File) bool { return file.Size > f.limit })
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Info("excluding files above size limit",
			zap.Strings("excluded_files", excluded),
			zap.Int64("max_size", f.limit),
		)
	}

	return files, Step{Initial: initial, Dropped: len(excluded), Left: files.Len()}, nil
}

func (f *maxSizeFilter) Status() Status {
	details := map[string]string{}
	if f.limit > 0 {
		details["max_size"] = strconv.FormatInt(f.limit, 10)
	}
	return Status{Name: f.Name(), Enabled: f.enabled, Reason: f.reason, Details: details}
}

type alreadyUploadedFilter struct {
	enabled bool
	reason  string
}

// NewAlreadyUploaded creates a filter that removes files whose name is already attached to the job.
func NewAlreadyUploaded() Filter {
	return &alreadyUploadedFilter{enabled: true}
}

func (f *alreadyUploadedFilter) Name() string { return "already_uploaded" }

func (f *alreadyUploadedFilter) Disable(reason string) {
	f.enabled = false
	f.reason = reason
}

func (f *alreadyUploadedFilter) IsEnabled() bool { return f.enabled }

func (f *alreadyUploadedFilter) Validate(*Config) error { return nil }

func (f *alreadyUploadedFilter) Apply(_ context.Context, deps Deps, files *Files) (*Files, Step, error) {
	initial := files.Len()

	uploaded := make(map[string]struct{}, len(deps.Uploaded))
	for _, name := range deps.Uploaded {
		uploaded[name] = struct{}{}
	}

	excluded := files.Exclude(func(file *File) bool {
		_, ok := uploaded[file.Name]
		return ok
	})
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Info("excluding files already attached to the job",
			zap.Strings("excluded_files", excluded),
			zap.Int("files_left", files.Len()),
		)
	}

	return files, Step{Initial: initial, Dropped: len(excluded), Left: files.Len()}, nil
}

func (f *alreadyUploadedFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.enabled, Reason: f.reason}
}
