package index

import (
	"time"

	"github.com/google/uuid"
)

// CompleteEvent announces that a new generation of an index has been
// dumped and can be loaded.
type CompleteEvent struct {
	BuildID    string    `json:"build_id"`
	Index      string    `json:"index"`
	Backend    Kind      `json:"backend"`
	Categories []string  `json:"categories"`
	Mode       string    `json:"mode"`
	BuiltAt    time.Time `json:"built_at"`
}

// CompleteEvent describes the generation Build just produced.
func (i *Index) CompleteEvent(mode string) CompleteEvent {
	return CompleteEvent{
		BuildID:    uuid.NewString(),
		Index:      i.name,
		Backend:    i.backend.Kind(),
		Categories: i.Categories(),
		Mode:       mode,
		BuiltAt:    time.Now().UTC(),
	}
}
