package convo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"go.mau.fi/whatsmeow/types"

	"study-bot/internal/nlu"
	"study-bot/internal/repo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore implements Store in memory for engine and search tests.
type fakeStore struct {
	mu sync.Mutex

	strictCandidates []repo.Material
	looseCandidates  []repo.Material
	recentItems      []repo.Material

	fileInfos map[string]*repo.FileInfo
	fileData  map[string][]byte

	downloads     map[string]int64
	purchases     map[string]float64
	purchaseCalls map[string]int
	history       []repo.DownloadEntry
	messages      []repo.MessageRecord

	searchErr       error
	incrementErr    error
	lastTokens      []string
	lastLoose       bool
	candidateCalls  int
	downloadHistory []repo.DownloadEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		fileInfos:     make(map[string]*repo.FileInfo),
		fileData:      make(map[string][]byte),
		downloads:     make(map[string]int64),
		purchases:     make(map[string]float64),
		purchaseCalls: make(map[string]int),
	}
}

func (f *fakeStore) addFile(id string, info repo.FileInfo, data []byte) {
	info.ID = id
	f.fileInfos[id] = &info
	f.fileData[id] = data
}

func (f *fakeStore) UpsertUserByWA(_ context.Context, p repo.UserProfile) (*repo.User, error) {
	u := &repo.User{ID: "user-" + p.WAID, WAID: p.WAID, DisplayName: p.DisplayName}
	return u, nil
}

func (f *fakeStore) InsertMessage(_ context.Context, rec repo.MessageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, rec)
	return nil
}

func (f *fakeStore) AppendDownload(_ context.Context, entry repo.DownloadEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, entry)
	return nil
}

func (f *fakeStore) ListDownloads(_ context.Context, _ string, _ int) ([]repo.DownloadEntry, error) {
	return f.downloadHistory, nil
}

func (f *fakeStore) ListRecentMessages(_ context.Context, _ string, _ int) ([]repo.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]repo.MessageRecord, len(f.messages))
	copy(out, f.messages)
	return out, nil
}

func (f *fakeStore) RecentMaterials(_ context.Context, _ string, limit int) ([]repo.Material, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	items := f.recentItems
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (f *fakeStore) FindMaterialCandidates(_ context.Context, tokens []string, _ string, loose bool) ([]repo.Material, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidateCalls++
	f.lastTokens = tokens
	f.lastLoose = loose
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if loose {
		return f.looseCandidates, nil
	}
	return f.strictCandidates, nil
}

func (f *fakeStore) GetFileInfo(_ context.Context, id string) (*repo.FileInfo, error) {
	info, ok := f.fileInfos[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return info, nil
}

func (f *fakeStore) ReadFile(_ context.Context, id string) ([]byte, *repo.FileInfo, error) {
	info, ok := f.fileInfos[id]
	if !ok {
		return nil, nil, repo.ErrNotFound
	}
	return f.fileData[id], info, nil
}

func (f *fakeStore) IncrementDownloads(_ context.Context, id string) error {
	if f.incrementErr != nil {
		return f.incrementErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads[id]++
	return nil
}

func (f *fakeStore) IncrementPurchases(_ context.Context, id string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchases[id] += amount
	f.purchaseCalls[id]++
	return nil
}

// fakeSender records every outbound message.
type fakeSender struct {
	mu        sync.Mutex
	texts     []string
	documents []string
	sendErr   error
}

func (s *fakeSender) SendText(_ context.Context, _ types.JID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *fakeSender) SendDocument(_ context.Context, _ types.JID, _ []byte, fileName, _, _ string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = append(s.documents, fileName)
	return nil
}

func (s *fakeSender) lastText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.texts) == 0 {
		return ""
	}
	return s.texts[len(s.texts)-1]
}

// fakeComposer returns canned classifier output.
type fakeComposer struct {
	reply       *nlu.Reply
	completion  string
	unavailable bool
}

func (c *fakeComposer) Complete(_ context.Context, _ string, _ int) (string, error) {
	if c.unavailable {
		return "", nlu.ErrUnavailable
	}
	return c.completion, nil
}

func (c *fakeComposer) Classify(_ context.Context, _ string) (*nlu.Reply, error) {
	if c.unavailable {
		return nil, nlu.ErrUnavailable
	}
	if c.reply == nil {
		return nil, errors.New("no reply configured")
	}
	return c.reply, nil
}

func testEngine(store *fakeStore, sender *fakeSender, composer Composer) *Engine {
	return New(store, composer, sender, nil, NewSessionStore(), nil, testLogger(), Config{})
}

func testUser() *repo.User {
	return &repo.User{ID: "user-1", WAID: "15551234567"}
}

func testJID() types.JID {
	return types.NewJID("15551234567", types.DefaultUserServer)
}
