package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/lexis/internal/domain"
)

// memState is the whole content of the in-memory store.
type memState struct {
	docs     map[string]*domain.Document
	frags    map[string]domain.Fragment
	convs    map[string]*domain.Conversation
	msgs     map[string][]*domain.Message
	settings *domain.IndexSettings
}

func newMemState() *memState {
	return &memState{
		docs:  map[string]*domain.Document{},
		frags: map[string]domain.Fragment{},
		convs: map[string]*domain.Conversation{},
		msgs:  map[string][]*domain.Message{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.docs {
		d := *v
		d.FragmentIDs = append([]string(nil), v.FragmentIDs...)
		c.docs[k] = &d
	}
	for k, v := range s.frags {
		c.frags[k] = v
	}
	for k, v := range s.convs {
		cv := *v
		c.convs[k] = &cv
	}
	for k, v := range s.msgs {
		c.msgs[k] = append([]*domain.Message(nil), v...)
	}
	if s.settings != nil {
		st := *s.settings
		c.settings = &st
	}
	return c
}

// memStore is a transactional in-memory Store. A transaction works on a copy
// of the state that replaces the committed state only on success.
type memStore struct {
	mu    sync.Mutex
	state *memState

	failFragmentUpsert error
	txCount            int
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (m *memStore) repos(st *memState, locked bool) *memRepos {
	return &memRepos{store: m, st: st, locked: locked}
}

func (m *memStore) Documents() DocumentRepository         { return m.repos(nil, false) }
func (m *memStore) Fragments() FragmentIndex              { return &memIndex{m.repos(nil, false)} }
func (m *memStore) Conversations() ConversationRepository { return &memConvs{m.repos(nil, false)} }
func (m *memStore) Settings() IndexSettingsRepository     { return &memSettings{m.repos(nil, false)} }

func (m *memStore) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++

	work := m.state.clone()
	if err := fn(&memTxRepos{r: m.repos(work, true)}); err != nil {
		return err
	}
	m.state = work
	return nil
}

type memTxRepos struct {
	r *memRepos
}

func (t *memTxRepos) Documents() DocumentRepository         { return t.r }
func (t *memTxRepos) Fragments() FragmentIndex              { return &memIndex{t.r} }
func (t *memTxRepos) Conversations() ConversationRepository { return &memConvs{t.r} }
func (t *memTxRepos) Settings() IndexSettingsRepository     { return &memSettings{t.r} }

// memRepos implements the document and fragment repositories.
type memRepos struct {
	store  *memStore
	st     *memState
	locked bool
}

func (r *memRepos) with(fn func(st *memState)) {
	if r.locked {
		fn(r.st)
		return
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	fn(r.store.state)
}

func (r *memRepos) Upsert(ctx context.Context, d *domain.Document) error {
	r.with(func(st *memState) {
		c := *d
		c.FragmentIDs = append([]string(nil), d.FragmentIDs...)
		st.docs[d.ID] = &c
	})
	return nil
}

func (r *memRepos) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var out *domain.Document
	r.with(func(st *memState) {
		if d, ok := st.docs[id]; ok {
			c := *d
			out = &c
		}
	})
	if out == nil {
		return nil, domain.ErrDocumentNotFound
	}
	return out, nil
}

func (r *memRepos) GetBySHA256(ctx context.Context, sha string) (*domain.Document, error) {
	var out *domain.Document
	r.with(func(st *memState) {
		for _, d := range st.docs {
			if d.SHA256 == sha {
				c := *d
				out = &c
				return
			}
		}
	})
	if out == nil {
		return nil, domain.ErrDocumentNotFound
	}
	return out, nil
}

func (r *memRepos) List(ctx context.Context) ([]*domain.Document, error) {
	var out []*domain.Document
	r.with(func(st *memState) {
		for _, d := range st.docs {
			c := *d
			out = append(out, &c)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepos) Delete(ctx context.Context, id string) (bool, error) {
	var ok bool
	r.with(func(st *memState) {
		_, ok = st.docs[id]
		delete(st.docs, id)
	})
	return ok, nil
}

func (r *memRepos) Count(ctx context.Context) (int, error) {
	var n int
	r.with(func(st *memState) { n = len(st.docs) })
	return n, nil
}

func (m *memStore) insertFragment(f domain.Fragment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.frags[f.ID] = f
}

func (m *memStore) fragmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.frags)
}

func (m *memStore) fragmentsOf(docID string) []domain.Fragment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Fragment
	for _, f := range m.state.frags {
		if f.DocumentID == docID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceIndex < out[j].SequenceIndex })
	return out
}

func (m *memStore) messagesOf(convID string) []*domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Message(nil), m.state.msgs[convID]...)
}

// memIndex is the FragmentIndex view of the store.
type memIndex struct{ r *memRepos }

func (i *memIndex) Upsert(ctx context.Context, fragments []domain.Fragment) error {
	if err := i.r.store.failFragmentUpsert; err != nil {
		return err
	}
	i.r.with(func(st *memState) {
		for _, f := range fragments {
			st.frags[f.ID] = f
		}
	})
	return nil
}

func (i *memIndex) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	var n int
	i.r.with(func(st *memState) {
		for id, f := range st.frags {
			if f.DocumentID == documentID {
				delete(st.frags, id)
				n++
			}
		}
	})
	return n, nil
}

func (i *memIndex) Search(ctx context.Context, query []float32, k int) ([]domain.ScoredFragment, error) {
	var out []domain.ScoredFragment
	i.r.with(func(st *memState) {
		for _, f := range st.frags {
			out = append(out, domain.ScoredFragment{Fragment: f, Score: domain.CosineSimilarity(query, f.Embedding)})
		}
	})
	domain.SortResults(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (i *memIndex) FragmentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	i.r.with(func(st *memState) {
		for id := range st.frags {
			ids = append(ids, id)
		}
	})
	sort.Strings(ids)
	return ids, nil
}

func (i *memIndex) Count(ctx context.Context) (int, error) {
	var n int
	i.r.with(func(st *memState) { n = len(st.frags) })
	return n, nil
}

func (i *memIndex) Clear(ctx context.Context) error {
	i.r.with(func(st *memState) { st.frags = map[string]domain.Fragment{} })
	return nil
}

type memConvs struct{ r *memRepos }

func (c *memConvs) Create(ctx context.Context, conv *domain.Conversation) error {
	c.r.with(func(st *memState) {
		cv := *conv
		st.convs[conv.ID] = &cv
	})
	return nil
}

func (c *memConvs) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var out *domain.Conversation
	c.r.with(func(st *memState) {
		if cv, ok := st.convs[id]; ok {
			cp := *cv
			out = &cp
		}
	})
	if out == nil {
		return nil, domain.ErrConversationNotFound
	}
	return out, nil
}

func (c *memConvs) List(ctx context.Context) ([]*domain.Conversation, error) {
	var out []*domain.Conversation
	c.r.with(func(st *memState) {
		for _, cv := range st.convs {
			cp := *cv
			out = append(out, &cp)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (c *memConvs) UpdateTitle(ctx context.Context, id, title string) error {
	var err error
	c.r.with(func(st *memState) {
		cv, ok := st.convs[id]
		if !ok {
			err = domain.ErrConversationNotFound
			return
		}
		cv.Title = title
	})
	return err
}

func (c *memConvs) Delete(ctx context.Context, id string) error {
	var err error
	c.r.with(func(st *memState) {
		if _, ok := st.convs[id]; !ok {
			err = domain.ErrConversationNotFound
			return
		}
		delete(st.convs, id)
		delete(st.msgs, id)
	})
	return err
}

func (c *memConvs) Append(ctx context.Context, m *domain.Message) error {
	var err error
	c.r.with(func(st *memState) {
		cv, ok := st.convs[m.ConversationID]
		if !ok {
			err = domain.ErrConversationNotFound
			return
		}
		m.Seq = len(st.msgs[m.ConversationID]) + 1
		cp := *m
		st.msgs[m.ConversationID] = append(st.msgs[m.ConversationID], &cp)
		cv.UpdatedAt = m.CreatedAt
	})
	return err
}

func (c *memConvs) Messages(ctx context.Context, id string) ([]*domain.Message, error) {
	var out []*domain.Message
	c.r.with(func(st *memState) { out = append(out, st.msgs[id]...) })
	return out, nil
}

func (c *memConvs) Recent(ctx context.Context, id string, n int) ([]*domain.Message, error) {
	all, _ := c.Messages(ctx, id)
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

type memSettings struct{ r *memRepos }

func (s *memSettings) Get(ctx context.Context) (*domain.IndexSettings, error) {
	var out *domain.IndexSettings
	s.r.with(func(st *memState) {
		if st.settings != nil {
			cp := *st.settings
			out = &cp
		}
	})
	return out, nil
}

func (s *memSettings) Save(ctx context.Context, settings domain.IndexSettings) error {
	s.r.with(func(st *memState) { st.settings = &settings })
	return nil
}

// memBlobs is an in-memory BlobStore.
type memBlobs struct {
	mu      sync.Mutex
	data    map[string][]byte
	failPut error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: map[string][]byte{}}
}

func (b *memBlobs) Put(ctx context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPut != nil {
		return b.failPut
	}
	b.data[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.data[key]
	if !ok {
		return nil, domain.ErrBlobNotFound
	}
	return d, nil
}

func (b *memBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *memBlobs) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k := range b.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MockEmbedder is a testify mock for Embedder.
type MockEmbedder struct {
	mock.Mock
	dims int
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbedder) Dimensions() int { return m.dims }
func (m *MockEmbedder) Model() string   { return "mock-embedding" }

// gatedEmbedder holds every Embed call until release is closed. Each call
// signals entered first.
type gatedEmbedder struct {
	Embedder
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newGatedEmbedder(inner Embedder) *gatedEmbedder {
	return &gatedEmbedder{Embedder: inner, entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gatedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	g.calls.Add(1)
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Embedder.Embed(ctx, texts)
}

// MockGenerator is a testify mock for Generator.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Stream(ctx context.Context, prompt domain.Prompt) (domain.TokenStream, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.TokenStream), args.Error(1)
}

// fakeTokens replays tokens, then err (io.EOF when nil).
type fakeTokens struct {
	tokens []string
	err    error
	closed int
}

func (f *fakeTokens) Recv() (string, error) {
	if len(f.tokens) == 0 {
		if f.err != nil {
			return "", f.err
		}
		return "", io.EOF
	}
	t := f.tokens[0]
	f.tokens = f.tokens[1:]
	return t, nil
}

func (f *fakeTokens) Close() error {
	f.closed++
	return nil
}

// seqIDs hands out predictable IDs.
type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewString() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", g.n)
}
