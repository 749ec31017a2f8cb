package routing

import (
	"bytes"
	"errors"
	"os"

	"github.com/justinbetabox/robot-hat/internal/errcode"
	"github.com/justinbetabox/robot-hat/internal/fsutil"
)

// Writer owns the routing configuration file.
type Writer struct {
	Path string
}

// Write validates the graph and replaces the file with its rendering, backing up the previous
// copy first. It reports whether the content changed.
func (w Writer) Write(g Graph) (bool, error) {
	if err := g.Validate(); err != nil {
		return false, errcode.New(errcode.ConfigWriteError, "write routing", "invalid graph", err)
	}
	data := g.Render()

	current, err := os.ReadFile(w.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, errcode.New(errcode.ConfigWriteError, "write routing", "read "+w.Path, err)
	}
	changed := err != nil || !bytes.Equal(current, data)

	mode, _, err := fsutil.Backup(w.Path, 0o644)
	if err != nil {
		return false, errcode.New(errcode.ConfigWriteError, "write routing", "back up "+w.Path, err)
	}
	if err := fsutil.WriteAtomic(w.Path, data, mode); err != nil {
		return false, errcode.New(errcode.ConfigWriteError, "write routing", w.Path, err)
	}
	return changed, nil
}

// Remove backs up and deletes the file. A missing file is not an error.
func (w Writer) Remove() (bool, error) {
	_, existed, err := fsutil.Backup(w.Path, 0o644)
	if err != nil {
		return false, errcode.New(errcode.ConfigWriteError, "remove routing", "back up "+w.Path, err)
	}
	if !existed {
		return false, nil
	}
	if err := os.Remove(w.Path); err != nil {
		return false, errcode.New(errcode.ConfigWriteError, "remove routing", w.Path, err)
	}
	return true, nil
}
