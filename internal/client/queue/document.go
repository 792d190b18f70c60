package queue

import (
	"encoding/json"
	"time"

	"github.com/zelebiz/zelebiz/internal/client/models"
)

// QuarantinedRecord is a persisted record that could not be decoded.
// It is kept verbatim and never drained.
type QuarantinedRecord struct {
	Raw           json.RawMessage `json:"raw"`
	Error         string          `json:"error"`
	QuarantinedAt time.Time       `json:"quarantinedAt"`
}

type document struct {
	Records    []json.RawMessage   `json:"records"`
	Quarantine []QuarantinedRecord `json:"quarantine,omitempty"`
}

// state is the decoded form of document.
type state struct {
	records    []models.MutationRecord
	quarantine []QuarantinedRecord
	// fresh counts quarantine entries found by this decode.
	fresh int
}

// decode parses raw. A nil raw yields an empty state. The error is non-nil
// only when the envelope itself is unreadable.
func decode(raw []byte, now time.Time) (*state, error) {
	st := &state{}
	if len(raw) == 0 {
		return st, nil
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return st, err
	}

	st.quarantine = doc.Quarantine
	for _, r := range doc.Records {
		var rec models.MutationRecord
		err := json.Unmarshal(r, &rec)
		if err == nil {
			err = rec.Validate()
		}
		if err != nil {
			st.quarantine = append(st.quarantine, QuarantinedRecord{
				Raw: r, Error: err.Error(), QuarantinedAt: now,
			})
			st.fresh++
			continue
		}
		st.records = append(st.records, rec)
	}
	return st, nil
}

func (st *state) encode() ([]byte, error) {
	doc := document{
		Records:    make([]json.RawMessage, 0, len(st.records)),
		Quarantine: st.quarantine,
	}
	for _, rec := range st.records {
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		doc.Records = append(doc.Records, b)
	}
	return json.Marshal(doc)
}

func (st *state) index(id string) int {
	for i := range st.records {
		if st.records[i].ID == id {
			return i
		}
	}
	return -1
}
