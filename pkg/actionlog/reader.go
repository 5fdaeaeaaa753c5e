package actionlog

import (
	"encoding/json"
	"io"

	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/utils"
)

type Reader interface {
	// Returns io.EOF after the last action
	ReadAction() (*protocol.Action, error)
	Close() error
}

type fileReader struct {
	file    utils.File
	decoder *json.Decoder
}

func newFileReader(file utils.File) *fileReader {
	return &fileReader{
		file:    file,
		decoder: json.NewDecoder(file),
	}
}

func (r *fileReader) ReadAction() (*protocol.Action, error) {
	action := &protocol.Action{}
	if err := r.decoder.Decode(action); err != nil {
		return nil, err
	}
	return action, nil
}

func (r *fileReader) Close() error {
	return r.file.Close()
}

// Reads all remaining actions of a reader.
func ReadAll(r Reader) ([]protocol.Action, error) {
	actions := []protocol.Action{}
	for {
		action, err := r.ReadAction()
		if err == io.EOF {
			return actions, nil
		}
		if err != nil {
			return actions, err
		}
		actions = append(actions, *action)
	}
}
