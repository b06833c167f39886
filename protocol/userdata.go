package protocol

import "github.com/ventral/goraknet/wire"

// UserData is the opaque application payload carried by any packet ID at
// or above UserDataIDThreshold. The registry never interprets it beyond
// stripping the leading ID byte (spec.md §1 Non-goals, §4.2).
type UserData struct {
	ID      byte
	Payload []byte
}

// encodeBody writes Payload verbatim; Encode has already written ID.
func (u *UserData) encodeBody(w *wire.Writer) { w.Raw(u.Payload) }
