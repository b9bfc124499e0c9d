package combatlog

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/dungeonrun/internal/game/dungeon"
)

// DocumentVersion is the current export schema version.
const DocumentVersion = 1

// InitialState is the run setup captured alongside the events.
type InitialState struct {
	DungeonID   string               `json:"dungeon_id"`
	DungeonName string               `json:"dungeon_name"`
	KeyLevel    int                  `json:"key_level"`
	Affixes     dungeon.AffixEffects `json:"affixes"`
	Route       dungeon.Route        `json:"route"`
	Team        []ActorSnapshot      `json:"team"`
}

// Document is a self-contained export of one run's log.
type Document struct {
	Version        int          `json:"version"`
	ID             string       `json:"id"`
	RunID          string       `json:"run_id"`
	ExportedAt     time.Time    `json:"exported_at"`
	TicksPerSecond int          `json:"ticks_per_second"`
	Initial        InitialState `json:"initial"`
	Entries        []Entry      `json:"entries"`
}

// Export snapshots the log into a document.
func (l *Logger) Export(initial InitialState) Document {
	return Document{
		Version:        DocumentVersion,
		ID:             uuid.NewString(),
		RunID:          l.runID,
		ExportedAt:     time.Now().UTC(),
		TicksPerSecond: l.ticksPerSecond,
		Initial:        initial,
		Entries:        l.Entries(),
	}
}

// WriteTo writes the document as indented JSON.
func (d Document) WriteTo(w io.Writer) (int64, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encoding combat log: %w", err)
	}
	n, err := w.Write(append(data, '\n'))
	return int64(n), err
}

// Decode reads a document written by WriteTo.
func Decode(r io.Reader) (Document, error) {
	var d Document
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return Document{}, fmt.Errorf("decoding combat log: %w", err)
	}
	if d.Version != DocumentVersion {
		return Document{}, fmt.Errorf("combat log version %d is not supported", d.Version)
	}
	return d, nil
}

type entryAlias Entry

type entryJSON struct {
	entryAlias
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON encodes the payload under "payload"; the entry's type field
// tags its variant.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := entryJSON{entryAlias: entryAlias(e)}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		out.Payload = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the payload variant selected by the entry type.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var in entryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = Entry(in.entryAlias)
	if len(in.Payload) == 0 || string(in.Payload) == "null" {
		return nil
	}
	p := newPayload(e.Type)
	if p == nil {
		return fmt.Errorf("entry %d: unknown type %q", e.Seq, e.Type)
	}
	if err := json.Unmarshal(in.Payload, p); err != nil {
		return fmt.Errorf("entry %d: %w", e.Seq, err)
	}
	e.Payload = reflect.ValueOf(p).Elem().Interface().(Payload)
	return nil
}
