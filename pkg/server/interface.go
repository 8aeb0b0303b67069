/*
Package server implements msgpack IPC for filtered selection.

Clients write msgpack maps to stdin and read msgpack maps from stdout. Every
message carries an id chosen by the client; responses echo it.

# IPC

A query is the default action:

	{"id": "q1", "q": "npe", "l": 24}

Matches come back sorted, with history items flagged and the index of the
history separator when there is one:

	{"id": "q1", "s": [{"w": "NullPointerException", "r": 3, "h": true}, {"w": "NPE", "r": 9}], "sep": 1, "c": 2, "n": 2, "t": 145, "stage": 1}

Queries run asynchronously. A new query cancels the one in flight and the
cancelled query gets no response at all. When duplicate checking is enabled a
second response with "stage": 2 follows, carrying "d": true on names that
occur more than once.

Selections feed the history shown at the top of later results:

	{"id": "s1", "action": "select", "item": "NullPointerException"}
	{"id": "f1", "action": "forget", "item": "NullPointerException"}

Service actions:

	{"id": "h1", "action": "health"}
	{"id": "st", "action": "stats"}

Failures are reported as {"id": "q1", "e": "message", "c": 400}.
*/
package server

// Request actions.
const (
	ActionQuery  = "query"
	ActionSelect = "select"
	ActionForget = "forget"
	ActionHealth = "health"
	ActionStats  = "stats"
)

// Request is any client message. An empty Action means ActionQuery.
type Request struct {
	ID     string `msgpack:"id"`
	Action string `msgpack:"action,omitempty"`
	Query  string `msgpack:"q,omitempty"`
	Limit  int    `msgpack:"l,omitempty"`
	Item   string `msgpack:"item,omitempty"`
}

// Suggestion is one matching word.
type Suggestion struct {
	Word      string `msgpack:"w"`
	Rank      uint16 `msgpack:"r"`
	History   bool   `msgpack:"h,omitempty"`
	Duplicate bool   `msgpack:"d,omitempty"`
}

// QueryResponse carries the results of a query.
type QueryResponse struct {
	ID          string       `msgpack:"id"`
	Suggestions []Suggestion `msgpack:"s"`
	// Separator is the index of the first suggestion after the history
	// group, or zero when no separator is shown.
	Separator int   `msgpack:"sep,omitempty"`
	Count     int   `msgpack:"c"`
	Total     int   `msgpack:"n"`
	TimeTaken int64 `msgpack:"t"`
	Stage     int   `msgpack:"stage"`
}

// StatusResponse acknowledges select, forget and health requests.
type StatusResponse struct {
	ID     string `msgpack:"id"`
	Status string `msgpack:"status"`
}

// StatsResponse reports dictionary and history state.
type StatsResponse struct {
	ID              string `msgpack:"id"`
	Words           int    `msgpack:"words"`
	LoadedChunks    int    `msgpack:"loaded_chunks"`
	AvailableChunks int    `msgpack:"available_chunks"`
	History         int    `msgpack:"history"`
	Requests        int64  `msgpack:"requests"`
}

// ErrorResponse holds basic error information for failed requests
type ErrorResponse struct {
	ID    string `msgpack:"id"`
	Error string `msgpack:"e"`
	Code  int    `msgpack:"c"`
}
