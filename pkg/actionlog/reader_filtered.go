package actionlog

import "github.com/srand/fleet/pkg/protocol"

type FilterFunc func(*protocol.Action) bool

type filteredReader struct {
	reader  Reader
	filters []FilterFunc
}

func NewFilteredReader(reader Reader) *filteredReader {
	return &filteredReader{
		reader: reader,
	}
}

func (r *filteredReader) AddFilter(filter FilterFunc) {
	r.filters = append(r.filters, filter)
}

func (r *filteredReader) Match(action *protocol.Action) bool {
	for _, filter := range r.filters {
		if !filter(action) {
			return false
		}
	}

	return true
}

func (r *filteredReader) ReadAction() (*protocol.Action, error) {
	for {
		action, err := r.reader.ReadAction()
		if err != nil {
			return nil, err
		}

		if r.Match(action) {
			return action, nil
		}
	}
}

func (r *filteredReader) Close() error {
	return r.reader.Close()
}

func ByKind(kind protocol.ActionKind) FilterFunc {
	return func(a *protocol.Action) bool {
		return a.Action == kind
	}
}

func ByWorker(workerId string) FilterFunc {
	return func(a *protocol.Action) bool {
		return a.WorkerId == workerId
	}
}
