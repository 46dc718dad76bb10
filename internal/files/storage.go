package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// ErrInvalidName is returned for names that would escape the storage root.
var ErrInvalidName = errors.New("invalid attachment name")

// Storage keeps attachment bytes in a flat afero filesystem.
// Names are "<arrival-unix-millis>.<ext>".
type Storage struct {
	fs  afero.Fs
	now func() time.Time

	mu sync.Mutex // serialises name allocation
}

// New wraps fs. Tests pass afero.NewMemMapFs().
func New(fs afero.Fs) *Storage {
	return &Storage{fs: fs, now: time.Now}
}

// NewOS stores attachments under dir on the local disk, creating it if needed.
func NewOS(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// Store writes data under a freshly generated name and returns that name.
// A name already taken in the same millisecond moves to the next free one.
func (s *Storage) Store(ctx context.Context, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext = strings.TrimPrefix(ext, ".")
	if !validExtension(ext) {
		ext = "bin"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for millis := s.now().UnixMilli(); ; millis++ {
		name := strconv.FormatInt(millis, 10) + "." + ext

		f, err := s.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create attachment: %w", err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			_ = s.fs.Remove(name)
			return "", fmt.Errorf("write attachment: %w", err)
		}
		if err := f.Close(); err != nil {
			_ = s.fs.Remove(name)
			return "", fmt.Errorf("close attachment: %w", err)
		}
		return name, nil
	}
}

// Open returns a reader over a stored attachment.
func (s *Storage) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return s.fs.Open(name)
}

// Delete removes a stored attachment.
func (s *Storage) Delete(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	return s.fs.Remove(name)
}

// Handler serves stored attachments by name. Directory listings are not served.
func (s *Storage) Handler() http.Handler {
	fileServer := http.FileServer(afero.NewHttpFs(afero.NewReadOnlyFs(s.fs)).Dir("."))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if checkName(strings.TrimPrefix(r.URL.Path, "/")) != nil {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
