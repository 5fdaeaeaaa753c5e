// Package actionlog keeps a per run history of scheduler actions.
package actionlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/utils"
)

const suffix = ".jsonl"

type ActionLogConfig interface {
	// Get the maximum allowed size of the action log
	// If the log is larger than this, the oldest run histories will be removed.
	// If this is 0, the log will be unbounded.
	MaxSize() int64
}

type ActionLog interface {
	// Append an action to the history of its run
	Append(action protocol.Action) error

	// Read the history of a run
	Read(runId string) (Reader, error)
}

type logFile struct {
	path string
	size int64
}

// Stores the history of each run in a file of JSON lines.
type actionLog struct {
	sync.Mutex
	config ActionLogConfig
	fs     utils.Fs
	files  map[string]*logFile
	// Least recently written first
	order []*logFile
	size  int64
}

// Create a new action log in the root of the filesystem.
func NewActionLog(config ActionLogConfig, fs utils.Fs) *actionLog {
	l := &actionLog{
		config: config,
		fs:     fs,
		files:  map[string]*logFile{},
	}

	// Load existing histories, oldest first
	var infos []os.FileInfo
	afero.Walk(fs, ".", func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && strings.HasSuffix(p, suffix) {
			infos = append(infos, info)
		}
		return nil
	})

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ModTime().Before(infos[j].ModTime())
	})

	for _, info := range infos {
		file := &logFile{path: info.Name(), size: info.Size()}
		l.files[file.path] = file
		l.order = append(l.order, file)
		l.size += file.size
	}

	log.Infof("Loaded %d run histories into action log. Size: %s / %s",
		len(l.files), utils.HumanByteSize(l.size), utils.HumanByteSize(config.MaxSize()))

	return l
}

func pathOf(runId string) (string, error) {
	if runId == "" || strings.ContainsAny(runId, `/\`) || runId == "." || runId == ".." {
		return "", fmt.Errorf("%w: invalid run id %q", utils.ErrBadRequest, runId)
	}
	return path.Clean(runId + suffix), nil
}

// Append an action to the history of its run
func (l *actionLog) Append(action protocol.Action) error {
	p, err := pathOf(action.RunId)
	if err != nil {
		return err
	}

	data, err := json.Marshal(action)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.Lock()
	defer l.Unlock()

	file, err := l.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return err
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	l.touch(p, int64(len(data)))
	l.evict()

	log.Trace("add - action - run:", action.RunId, action.Action)
	return nil
}

// Moves a history to the most recently written end.
func (l *actionLog) touch(p string, written int64) {
	file, ok := l.files[p]
	if !ok {
		file = &logFile{path: p}
		l.files[p] = file
	} else {
		for i, f := range l.order {
			if f == file {
				l.order = append(l.order[:i], l.order[i+1:]...)
				break
			}
		}
	}

	file.size += written
	l.size += written
	l.order = append(l.order, file)
}

// Removes the oldest histories until the log fits. The most recently
// written history is always kept.
func (l *actionLog) evict() {
	maxSize := l.config.MaxSize()
	if maxSize <= 0 {
		return
	}

	for l.size > maxSize && len(l.order) > 1 {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.files, oldest.path)
		l.size -= oldest.size

		if err := l.fs.Remove(oldest.path); err != nil {
			log.Warn("Failed to remove run history", oldest.path, err)
		}
		log.Debug("del - actions - path:", oldest.path)
	}
}

// Read the history of a run
func (l *actionLog) Read(runId string) (Reader, error) {
	p, err := pathOf(runId)
	if err != nil {
		return nil, err
	}

	l.Lock()
	defer l.Unlock()

	file, err := l.fs.Open(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: no actions for run %s", utils.ErrNotFound, runId)
	}
	if err != nil {
		return nil, err
	}

	return newFileReader(file), nil
}

// Total size of all histories
func (l *actionLog) Size() int64 {
	l.Lock()
	defer l.Unlock()

	return l.size
}

// Implementation of the scheduler observer interface
func (l *actionLog) ActionRecorded(action protocol.Action) {
	if err := l.Append(action); err != nil {
		log.Warn("Failed to record action:", err)
	}
}
