package notify

import (
	"fmt"

	"github.com/newthinker/glacier/internal/store"
	"github.com/tidwall/gjson"
)

// ParseEvent decodes a queue message body. SNS wraps the Glacier job message
// as a JSON string in the envelope's Message field; raw delivery puts the job
// message in the body directly. Both forms are accepted.
func ParseEvent(body string) (Event, error) {
	if !gjson.Valid(body) {
		return Event{}, fmt.Errorf("message is not JSON")
	}

	msg := body
	if inner := gjson.Get(body, "Message"); inner.Exists() && inner.Type == gjson.String {
		msg = inner.String()
		if !gjson.Valid(msg) {
			return Event{}, fmt.Errorf("envelope message is not JSON")
		}
	}

	fields := gjson.GetMany(msg,
		"JobId", "Action", "StatusCode", "StatusMessage",
		"ArchiveSizeInBytes", "InventorySizeInBytes", "SHA256TreeHash")
	if fields[0].String() == "" {
		return Event{}, fmt.Errorf("message has no JobId")
	}

	ev := Event{
		JobID:         fields[0].String(),
		Action:        fields[1].String(),
		Status:        store.StatusFromCode(fields[2].String()),
		StatusMessage: fields[3].String(),
		TreeHash:      fields[6].String(),
	}
	if ev.Action == "InventoryRetrieval" {
		ev.OutputSize = fields[5].Int()
	} else {
		ev.OutputSize = fields[4].Int()
	}
	return ev, nil
}
