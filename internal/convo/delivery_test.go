package convo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"study-bot/internal/repo"
)

func deliveryFixture(sizeBytes int64, price string) (*fakeStore, *repo.Material) {
	store := newFakeStore()
	item := &repo.Material{
		ID:       "m1",
		Title:    "IV Therapy Guide",
		Category: repo.CategoryFundamentals,
		Price:    price,
		FileID:   "f1",
	}
	store.addFile("f1", repo.FileInfo{Name: "iv-therapy.pdf", MimeType: "application/pdf", SizeBytes: sizeBytes},
		make([]byte, min(sizeBytes, 1024)))
	return store, item
}

func TestDeliverSendsDocumentAndCounts(t *testing.T) {
	store, item := deliveryFixture(1024, "Free")
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)

	if err := e.deliver(context.Background(), testJID(), testUser(), item); err != nil {
		t.Fatal(err)
	}
	if len(sender.documents) != 1 || sender.documents[0] != "iv-therapy.pdf" {
		t.Fatalf("expected document send, got %v", sender.documents)
	}
	if store.downloads["m1"] != 1 {
		t.Fatalf("expected downloads counter 1, got %d", store.downloads["m1"])
	}
	if store.purchaseCalls["m1"] != 0 {
		t.Fatal("free material must not count as a purchase")
	}
	if len(store.history) != 1 || store.history[0].MaterialID != "m1" {
		t.Fatalf("expected history entry, got %v", store.history)
	}
}

func TestDeliverPaidMaterialRecordsRevenue(t *testing.T) {
	store, item := deliveryFixture(1024, "$4.99")
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)

	if err := e.deliver(context.Background(), testJID(), testUser(), item); err != nil {
		t.Fatal(err)
	}
	if store.purchases["m1"] != 4.99 {
		t.Fatalf("expected revenue 4.99, got %v", store.purchases["m1"])
	}
}

func TestDeliverUnparseablePriceCountsPurchaseWithoutRevenue(t *testing.T) {
	store, item := deliveryFixture(1024, "ask admin")
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)

	if err := e.deliver(context.Background(), testJID(), testUser(), item); err != nil {
		t.Fatal(err)
	}
	if store.purchaseCalls["m1"] != 1 {
		t.Fatalf("expected one purchase, got %d", store.purchaseCalls["m1"])
	}
	if store.purchases["m1"] != 0 {
		t.Fatalf("expected zero revenue, got %v", store.purchases["m1"])
	}
}

func TestDeliverRejectsOversizeBeforeSending(t *testing.T) {
	store, item := deliveryFixture(51<<20, "Free")
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)

	err := e.deliver(context.Background(), testJID(), testUser(), item)
	if !errors.Is(err, errContentTooBig) {
		t.Fatalf("expected size rejection, got %v", err)
	}
	if len(sender.documents) != 0 {
		t.Fatal("oversize file must not be sent")
	}
	if store.downloads["m1"] != 0 {
		t.Fatal("rejected delivery must not touch counters")
	}
}

func TestDeliverMissingFileAbortsWithoutCounters(t *testing.T) {
	store := newFakeStore()
	item := &repo.Material{ID: "m1", Title: "Gone", FileID: "nope", Price: "Free"}
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)

	err := e.deliver(context.Background(), testJID(), testUser(), item)
	if !errors.Is(err, errContentMissing) {
		t.Fatalf("expected missing content error, got %v", err)
	}
	if store.downloads["m1"] != 0 || len(store.history) != 0 {
		t.Fatal("missing content must not touch counters or history")
	}
}

func TestDeliverCounterFailureIsBestEffort(t *testing.T) {
	store, item := deliveryFixture(1024, "Free")
	store.incrementErr = errors.New("db down")
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)

	if err := e.deliver(context.Background(), testJID(), testUser(), item); err != nil {
		t.Fatalf("counter failure must not fail the delivery: %v", err)
	}
	if len(store.history) != 1 {
		t.Fatal("history append should still run after a counter failure")
	}
}

func TestFlowDownloadClearsSessionOnEveryOutcome(t *testing.T) {
	cases := []struct {
		name    string
		prep    func(*fakeStore, *fakeSender)
		wantMsg string
	}{
		{
			name:    "success",
			prep:    func(*fakeStore, *fakeSender) {},
			wantMsg: "Sent!",
		},
		{
			name: "missing file",
			prep: func(s *fakeStore, _ *fakeSender) {
				delete(s.fileInfos, "f1")
				delete(s.fileData, "f1")
			},
			wantMsg: contentMissingMessage,
		},
		{
			name: "send failure",
			prep: func(_ *fakeStore, snd *fakeSender) {
				snd.sendErr = errors.New("socket closed")
			},
			wantMsg: sendFailedMessage,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			store.recentItems = []repo.Material{
				{ID: "m1", Title: "IV Therapy Guide", Category: repo.CategoryFundamentals, Price: "Free", FileID: "f1"},
			}
			store.addFile("f1", repo.FileInfo{Name: "iv.pdf", MimeType: "application/pdf", SizeBytes: 512}, make([]byte, 512))
			sender := &fakeSender{}
			e := testEngine(store, sender, nil)
			user, jid := testUser(), testJID()

			e.handleText(context.Background(), user, jid, "buy")
			e.handleText(context.Background(), user, jid, "1")
			e.handleText(context.Background(), user, jid, "1")
			tc.prep(store, sender)
			e.handleText(context.Background(), user, jid, "download")

			if _, ok := e.sessions.Get(user.WAID); ok {
				t.Fatal("session must be cleared after the download step")
			}
			if !strings.Contains(sender.lastText(), tc.wantMsg) {
				t.Fatalf("expected %q in reply, got %q", tc.wantMsg, sender.lastText())
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in     string
		amount float64
		paid   bool
	}{
		{"Free", 0, false},
		{"free", 0, false},
		{"", 0, false},
		{"$4.99", 4.99, true},
		{"Rp 15000", 15000, true},
		{"gratis", 0, true},
	}
	for _, tc := range cases {
		amount, paid := parsePrice(tc.in)
		if amount != tc.amount || paid != tc.paid {
			t.Fatalf("parsePrice(%q) = %v,%v want %v,%v", tc.in, amount, paid, tc.amount, tc.paid)
		}
	}
}
