package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// fakeStore is an in-memory GraphStore that understands exactly the
// statements this package issues. Writes run against a copy of the state
// which is only committed when the work returns nil.
type fakeStore struct {
	mu    sync.Mutex
	state *fakeState
	calls int

	failWith  error
	failOnRun map[string]error
	closed    bool
}

type fakeState struct {
	topics   map[string]int64
	refs     map[string]fakeNode
	refEdges map[string][]string
	subEdges map[string][]string
	sessions map[string]map[string]any
}

type fakeNode struct {
	labels []string
	props  map[string]any
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		state: &fakeState{
			topics:   map[string]int64{},
			refs:     map[string]fakeNode{},
			refEdges: map[string][]string{},
			subEdges: map[string][]string{},
			sessions: map[string]map[string]any{},
		},
		failOnRun: map[string]error{},
	}
}

func (s *fakeState) clone() *fakeState {
	c := &fakeState{
		topics:   make(map[string]int64, len(s.topics)),
		refs:     make(map[string]fakeNode, len(s.refs)),
		refEdges: make(map[string][]string, len(s.refEdges)),
		subEdges: make(map[string][]string, len(s.subEdges)),
		sessions: make(map[string]map[string]any, len(s.sessions)),
	}
	for k, v := range s.topics {
		c.topics[k] = v
	}
	for k, v := range s.refs {
		c.refs[k] = fakeNode{labels: append([]string(nil), v.labels...), props: copyProps(v.props)}
	}
	for k, v := range s.refEdges {
		c.refEdges[k] = append([]string(nil), v...)
	}
	for k, v := range s.subEdges {
		c.subEdges[k] = append([]string(nil), v...)
	}
	for k, v := range s.sessions {
		c.sessions[k] = copyProps(v)
	}
	return c
}

func copyProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (f *fakeStore) Read(ctx context.Context, work Work) error {
	f.mu.Lock()
	if f.failWith != nil {
		f.mu.Unlock()
		return f.failWith
	}
	snapshot := f.state.clone()
	f.mu.Unlock()
	return work(ctx, &fakeTx{store: f, state: snapshot})
}

func (f *fakeStore) Write(ctx context.Context, work Work) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	draft := f.state.clone()
	if err := work(ctx, &fakeTx{store: f, state: draft, locked: true}); err != nil {
		return err
	}
	f.state = draft
	return nil
}

func (f *fakeStore) Close(context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeStore) runCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTx struct {
	store  *fakeStore
	state  *fakeState
	locked bool
}

func (tx *fakeTx) Run(_ context.Context, stmt string, params map[string]any) ([]Record, error) {
	if !tx.locked {
		tx.store.mu.Lock()
		defer tx.store.mu.Unlock()
	}
	tx.store.calls++
	if err := tx.store.failOnRun[stmt]; err != nil {
		return nil, err
	}
	st := tx.state

	for kind, create := range createReferenceStatements {
		if stmt != create {
			continue
		}
		props := copyProps(params["props"].(map[string]any))
		id := props["id"].(string)
		if _, dup := st.refs[id]; dup {
			return nil, fmt.Errorf("%w: reference %s", ErrConstraint, id)
		}
		labels := []string{"Reference", map[string]string{"verse": "VerseRange", "citation": "Citation", "book": "BookReference"}[string(kind)]}
		st.refs[id] = fakeNode{labels: labels, props: props}
		return nil, nil
	}

	switch stmt {
	case stmtPing:
		return []Record{{"ok": int64(1)}}, nil

	case stmtListTopics:
		names := sortedKeys(st.topics)
		return nameRows(window(names, params)), nil

	case stmtTopicExists:
		name := params["name"].(string)
		if _, ok := st.topics[name]; ok {
			return []Record{{"name": name}}, nil
		}
		return nil, nil

	case stmtCreateTopic:
		name := params["name"].(string)
		if _, ok := st.topics[name]; ok {
			return nil, fmt.Errorf("%w: topic %s", ErrConstraint, name)
		}
		st.topics[name] = params["created_at"].(int64)
		return nil, nil

	case stmtDeleteTopic:
		name := params["name"].(string)
		if _, ok := st.topics[name]; !ok {
			return nil, nil
		}
		for _, id := range st.refEdges[name] {
			delete(st.refs, id)
			for owner, ids := range st.refEdges {
				st.refEdges[owner] = without(ids, id)
			}
		}
		delete(st.refEdges, name)
		delete(st.subEdges, name)
		for parent, children := range st.subEdges {
			st.subEdges[parent] = without(children, name)
		}
		delete(st.topics, name)
		return nil, nil

	case stmtLinkSubTopic:
		parent, child := params["parent"].(string), params["child"].(string)
		_, okP := st.topics[parent]
		_, okC := st.topics[child]
		if okP && okC && !contains(st.subEdges[parent], child) {
			st.subEdges[parent] = append(st.subEdges[parent], child)
		}
		return nil, nil

	case stmtListSubTopics:
		children := append([]string(nil), st.subEdges[params["name"].(string)]...)
		sort.Strings(children)
		return nameRows(children), nil

	case stmtLinkReference:
		topic, id := params["topic"].(string), params["id"].(string)
		_, okT := st.topics[topic]
		_, okR := st.refs[id]
		if !okT || !okR {
			return nil, nil
		}
		st.refEdges[topic] = append(st.refEdges[topic], id)
		return []Record{{"id": id}}, nil

	case stmtListReferences:
		nodes := st.ownedRefs(params["name"].(string), "")
		sort.SliceStable(nodes, func(i, j int) bool {
			a, b := nodes[i].props, nodes[j].props
			if a["created_at"].(int64) != b["created_at"].(int64) {
				return a["created_at"].(int64) < b["created_at"].(int64)
			}
			return a["id"].(string) < b["id"].(string)
		})
		return refRows(nodes), nil

	case stmtListVerseReferences:
		nodes := st.ownedRefs(params["name"].(string), "VerseRange")
		sort.SliceStable(nodes, func(i, j int) bool { return verseLess(nodes[i].props, nodes[j].props) })
		skip, limit := int(params["skip"].(int64)), int(params["limit"].(int64))
		if skip > len(nodes) {
			skip = len(nodes)
		}
		end := skip + limit
		if end > len(nodes) {
			end = len(nodes)
		}
		return refRows(nodes[skip:end]), nil

	case stmtMatchContainingVerses:
		chapter, init, final := params["chapter"].(int64), params["init_verse"].(int64), params["final_verse"].(int64)
		var ids []string
		for id, n := range st.refs {
			if !contains(n.labels, "VerseRange") {
				continue
			}
			if n.props["chapter"].(int64) == chapter && n.props["init_verse"].(int64) <= init && n.props["final_verse"].(int64) >= final {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		rows := make([]Record, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, Record{"id": id})
		}
		return rows, nil

	case stmtOwningTopics:
		id := params["id"].(string)
		var owners []string
		for topic, ids := range st.refEdges {
			if contains(ids, id) {
				owners = append(owners, topic)
			}
		}
		sort.Strings(owners)
		return nameRows(owners), nil

	case stmtSessionExists:
		key := params["key"].(string)
		if _, ok := st.sessions[key]; ok {
			return []Record{{"key": key}}, nil
		}
		return nil, nil

	case stmtCreateSession:
		props := copyProps(params["props"].(map[string]any))
		key := props["key"].(string)
		if _, ok := st.sessions[key]; ok {
			return nil, fmt.Errorf("%w: session %s", ErrConstraint, key)
		}
		st.sessions[key] = props
		return nil, nil

	case stmtGetSession:
		if props, ok := st.sessions[params["key"].(string)]; ok {
			return []Record{{"session": copyProps(props)}}, nil
		}
		return nil, nil

	case stmtUpdateSession:
		props, ok := st.sessions[params["key"].(string)]
		if !ok {
			return nil, nil
		}
		for k, v := range params["props"].(map[string]any) {
			if v == nil {
				delete(props, k)
			} else {
				props[k] = v
			}
		}
		return []Record{{"session": copyProps(props)}}, nil

	case stmtDeleteSession:
		key := params["key"].(string)
		if _, ok := st.sessions[key]; !ok {
			return []Record{{"removed": int64(0)}}, nil
		}
		delete(st.sessions, key)
		return []Record{{"removed": int64(1)}}, nil

	case stmtPurgeSessions:
		cutoff := params["cutoff"].(int64)
		var removed int64
		for key, props := range st.sessions {
			if props["created_at"].(int64) < cutoff {
				delete(st.sessions, key)
				removed++
			}
		}
		return []Record{{"removed": removed}}, nil
	}

	for _, schema := range schemaStatements {
		if stmt == schema {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("fake store: unknown statement %q", strings.SplitN(stmt, "\n", 2)[0])
}

func (s *fakeState) ownedRefs(topic, label string) []fakeNode {
	var nodes []fakeNode
	for _, id := range s.refEdges[topic] {
		n := s.refs[id]
		if label == "" || contains(n.labels, label) {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func verseLess(a, b map[string]any) bool {
	for _, k := range []string{"chapter", "init_verse", "final_verse"} {
		if a[k].(int64) != b[k].(int64) {
			return a[k].(int64) < b[k].(int64)
		}
	}
	return a["id"].(string) < b["id"].(string)
}

func window(items []string, params map[string]any) []string {
	return paginate(items, int(params["skip"].(int64)), int(params["limit"].(int64)))
}

func nameRows(names []string) []Record {
	rows := make([]Record, 0, len(names))
	for _, n := range names {
		rows = append(rows, Record{"name": n})
	}
	return rows
}

func refRows(nodes []fakeNode) []Record {
	rows := make([]Record, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, Record{"ref": copyProps(n.props)})
	}
	return rows
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}

func without(items []string, s string) []string {
	out := items[:0:0]
	for _, it := range items {
		if it != s {
			out = append(out, it)
		}
	}
	return out
}
