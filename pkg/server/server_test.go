package server

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bastiangx/pickserve/pkg/config"
	"github.com/bastiangx/pickserve/pkg/dictionary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const words = `foo 2
foobar 3
barfoo 1
foo_bar 5
qux 4
`

func newTestLoader(t *testing.T) *dictionary.Loader {
	t.Helper()
	l := dictionary.NewLoader("", 0)
	_, err := l.LoadText(strings.NewReader(words))
	require.NoError(t, err)
	return l
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.CheckDuplicates = false
	return cfg
}

// serve runs a server over the encoded requests until they are exhausted and
// returns every message it wrote.
func serve(t *testing.T, cfg *config.Config, historyPath string, reqs ...Request) []map[string]any {
	t.Helper()
	var in bytes.Buffer
	enc := msgpack.NewEncoder(&in)
	for _, req := range reqs {
		require.NoError(t, enc.Encode(req))
	}
	var out bytes.Buffer
	srv := NewServerWithIO(newTestLoader(t), cfg, historyPath, &in, &out)
	require.NoError(t, srv.Start())
	return readMessages(t, &out)
}

func readMessages(t *testing.T, r io.Reader) []map[string]any {
	t.Helper()
	dec := msgpack.NewDecoder(r)
	var msgs []map[string]any
	for {
		var m map[string]any
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			return msgs
		}
		require.NoError(t, err)
		msgs = append(msgs, m)
	}
}

func withID(msgs []map[string]any, id string) []map[string]any {
	var out []map[string]any
	for _, m := range msgs {
		if m["id"] == id {
			out = append(out, m)
		}
	}
	return out
}

func decodeAs[T any](t *testing.T, m map[string]any) T {
	t.Helper()
	b, err := msgpack.Marshal(m)
	require.NoError(t, err)
	var v T
	require.NoError(t, msgpack.Unmarshal(b, &v))
	return v
}

func wordsOf(resp QueryResponse) []string {
	var out []string
	for _, s := range resp.Suggestions {
		out = append(out, s.Word)
	}
	return out
}

func TestQuery(t *testing.T) {
	msgs := serve(t, testConfig(), "", Request{ID: "q1", Query: "foo", Limit: 10})

	got := withID(msgs, "q1")
	require.Len(t, got, 1)
	resp := decodeAs[QueryResponse](t, got[0])
	assert.Equal(t, []string{"foo", "barfoo", "foobar", "foo_bar"}, wordsOf(resp))
	assert.EqualValues(t, 2, resp.Suggestions[0].Rank)
	assert.Equal(t, 4, resp.Count)
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, 1, resp.Stage)
	assert.Zero(t, resp.Separator)
}

func TestQueryLimit(t *testing.T) {
	msgs := serve(t, testConfig(), "", Request{ID: "q1", Query: "foo", Limit: 2})

	resp := decodeAs[QueryResponse](t, withID(msgs, "q1")[0])
	assert.Equal(t, []string{"foo", "barfoo"}, wordsOf(resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 4, resp.Total)
}

func TestQueryTwoStages(t *testing.T) {
	cfg := testConfig()
	cfg.Server.CheckDuplicates = true
	msgs := serve(t, cfg, "", Request{ID: "q1", Action: ActionQuery, Query: "qux"})

	got := withID(msgs, "q1")
	require.Len(t, got, 2)
	first := decodeAs[QueryResponse](t, got[0])
	second := decodeAs[QueryResponse](t, got[1])
	assert.Equal(t, 1, first.Stage)
	assert.Equal(t, 2, second.Stage)
	assert.Equal(t, []string{"qux"}, wordsOf(second))
	assert.False(t, second.Suggestions[0].Duplicate)
}

func TestSelectedItemsComeFirst(t *testing.T) {
	msgs := serve(t, testConfig(), "",
		Request{ID: "s1", Action: ActionSelect, Item: "foobar"},
		Request{ID: "q1", Query: "foo"},
	)

	status := decodeAs[StatusResponse](t, withID(msgs, "s1")[0])
	assert.Equal(t, "ok", status.Status)

	resp := decodeAs[QueryResponse](t, withID(msgs, "q1")[0])
	assert.Equal(t, []string{"foo", "foobar", "barfoo", "foo_bar"}, wordsOf(resp))
	assert.False(t, resp.Suggestions[0].History)
	assert.True(t, resp.Suggestions[1].History)
	assert.Equal(t, 2, resp.Separator)
}

func TestForget(t *testing.T) {
	msgs := serve(t, testConfig(), "",
		Request{ID: "s1", Action: ActionSelect, Item: "foobar"},
		Request{ID: "f1", Action: ActionForget, Item: "foobar"},
		Request{ID: "f2", Action: ActionForget, Item: "foobar"},
		Request{ID: "q1", Query: "foo"},
	)

	assert.Equal(t, "ok", decodeAs[StatusResponse](t, withID(msgs, "f1")[0]).Status)
	assert.Equal(t, 404, decodeAs[ErrorResponse](t, withID(msgs, "f2")[0]).Code)

	resp := decodeAs[QueryResponse](t, withID(msgs, "q1")[0])
	for _, s := range resp.Suggestions {
		assert.False(t, s.History, s.Word)
	}
}

func TestRequestErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxQuery = 3
	msgs := serve(t, cfg, "",
		Request{ID: "a", Action: "explode"},
		Request{ID: "b", Action: ActionSelect, Item: "nope"},
		Request{ID: "c", Query: "abcd"},
	)

	tests := []struct {
		id   string
		code int
	}{
		{"a", 400},
		{"b", 404},
		{"c", 400},
	}
	for _, tt := range tests {
		got := withID(msgs, tt.id)
		require.Len(t, got, 1, tt.id)
		errResp := decodeAs[ErrorResponse](t, got[0])
		assert.Equal(t, tt.code, errResp.Code, tt.id)
		assert.NotEmpty(t, errResp.Error, tt.id)
	}
}

func TestHealthAndStats(t *testing.T) {
	msgs := serve(t, testConfig(), "",
		Request{ID: "h", Action: ActionHealth},
		Request{ID: "s", Action: ActionSelect, Item: "qux"},
		Request{ID: "st", Action: ActionStats},
	)

	assert.Equal(t, "ok", decodeAs[StatusResponse](t, withID(msgs, "h")[0]).Status)
	stats := decodeAs[StatsResponse](t, withID(msgs, "st")[0])
	assert.Equal(t, 5, stats.Words)
	assert.Equal(t, 1, stats.History)
	assert.EqualValues(t, 3, stats.Requests)
}

func TestLatestQueryWins(t *testing.T) {
	msgs := serve(t, testConfig(), "",
		Request{ID: "q1", Query: "f"},
		Request{ID: "q2", Query: "foob"},
	)

	require.NotEmpty(t, msgs)
	last := decodeAs[QueryResponse](t, msgs[len(msgs)-1])
	assert.Equal(t, "q2", last.ID)
	assert.Equal(t, []string{"foobar"}, wordsOf(last))
}

func TestHistoryPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.msgpack")

	serve(t, testConfig(), path, Request{ID: "s1", Action: ActionSelect, Item: "foo_bar"})
	assert.FileExists(t, path)

	msgs := serve(t, testConfig(), path, Request{ID: "q1", Query: "bar"})
	resp := decodeAs[QueryResponse](t, withID(msgs, "q1")[0])
	assert.Equal(t, []string{"foo_bar", "barfoo", "foobar"}, wordsOf(resp))
	assert.True(t, resp.Suggestions[0].History)
	assert.Equal(t, 1, resp.Separator)
}

func TestMalformedInput(t *testing.T) {
	var out bytes.Buffer
	srv := NewServerWithIO(newTestLoader(t), testConfig(), "", bytes.NewReader([]byte{0xc1}), &out)
	assert.Error(t, srv.Start())

	msgs := readMessages(t, &out)
	require.Len(t, msgs, 1)
	assert.Equal(t, 400, decodeAs[ErrorResponse](t, msgs[0]).Code)
}
