package convo

import (
	"context"
	"strings"
	"testing"

	"study-bot/internal/repo"
)

func TestMatchCategoryNumeric(t *testing.T) {
	idx, ok := matchCategory("3")
	if !ok || idx != 2 {
		t.Fatalf("expected index 2 for input 3, got %d ok=%v", idx, ok)
	}
	if _, ok := matchCategory("0"); ok {
		t.Fatal("0 must be rejected")
	}
	if _, ok := matchCategory("99"); ok {
		t.Fatal("out of range pick must be rejected")
	}
}

func TestMatchCategoryFuzzy(t *testing.T) {
	cases := map[string]string{
		"pharmacology":     repo.CategoryPharmacology,
		"PHARM":            repo.CategoryPharmacology,
		"medical-surgical": repo.CategoryMedicalSurgical,
		"med":              repo.CategoryMedicalSurgical,
		"pediatric":        repo.CategoryMaternalPediatric,
		"fundamentals":     repo.CategoryFundamentals,
	}
	for input, want := range cases {
		idx, ok := matchCategory(input)
		if !ok {
			t.Fatalf("expected %q to match a category", input)
		}
		if repo.Categories[idx] != want {
			t.Fatalf("input %q resolved to %s, want %s", input, repo.Categories[idx], want)
		}
	}
	if _, ok := matchCategory("astrophysics"); ok {
		t.Fatal("unknown subject must not match")
	}
}

func TestMatchListIndexBounds(t *testing.T) {
	if idx, ok := matchListIndex("3", 5); !ok || idx != 2 {
		t.Fatalf("expected index 2, got %d ok=%v", idx, ok)
	}
	for _, input := range []string{"0", "6", "-1", "abc", ""} {
		if _, ok := matchListIndex(input, 5); ok {
			t.Fatalf("input %q must be rejected against 5 items", input)
		}
	}
}

func TestNewConfirmCodeIsSixDigits(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := newConfirmCode()
		if len(code) != 6 {
			t.Fatalf("expected 6 digit code, got %q", code)
		}
		if code[0] == '0' {
			t.Fatalf("code must be in [100000,999999], got %q", code)
		}
	}
}

func categoryPickFixture() *fakeStore {
	store := newFakeStore()
	store.recentItems = []repo.Material{
		{ID: "m1", Title: "Fluid Balance Notes", Category: repo.CategoryFundamentals, Price: "Free", FileID: "f1"},
		{ID: "m2", Title: "Vital Signs Workbook", Category: repo.CategoryFundamentals, Price: "$4.99", FileID: "f2"},
	}
	return store
}

func TestFlowCategoryPickAdvancesToMaterialSelection(t *testing.T) {
	store := categoryPickFixture()
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)
	user, jid := testUser(), testJID()

	e.handleText(context.Background(), user, jid, "buy")
	sess, ok := e.sessions.Get(user.WAID)
	if !ok || sess.State != StateCategorySelection {
		t.Fatalf("expected category_selection session, got %+v ok=%v", sess, ok)
	}

	e.handleText(context.Background(), user, jid, "1")
	sess, _ = e.sessions.Get(user.WAID)
	if sess.State != StateMaterialSelection {
		t.Fatalf("expected material_selection, got %s", sess.State)
	}
	if len(sess.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(sess.Candidates))
	}
	if !strings.Contains(sender.lastText(), "Fluid Balance Notes") {
		t.Fatalf("material list should name the items, got %q", sender.lastText())
	}
}

func TestFlowCannotJumpFromCategoryToConfirmation(t *testing.T) {
	store := categoryPickFixture()
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)
	user, jid := testUser(), testJID()

	e.handleText(context.Background(), user, jid, "buy")
	e.handleText(context.Background(), user, jid, "download")

	sess, ok := e.sessions.Get(user.WAID)
	if !ok {
		t.Fatal("session should survive an invalid input")
	}
	if sess.State != StateCategorySelection {
		t.Fatalf("download at category step must not advance, got %s", sess.State)
	}
}

func TestFlowInvalidSelectionKeepsState(t *testing.T) {
	store := categoryPickFixture()
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)
	user, jid := testUser(), testJID()

	e.handleText(context.Background(), user, jid, "buy")
	e.handleText(context.Background(), user, jid, "1")
	e.handleText(context.Background(), user, jid, "99")

	sess, _ := e.sessions.Get(user.WAID)
	if sess.State != StateMaterialSelection {
		t.Fatalf("invalid pick must keep material_selection, got %s", sess.State)
	}
	if sender.lastText() != invalidSelectionMessage {
		t.Fatalf("expected re-prompt, got %q", sender.lastText())
	}
}

func TestFlowSelectionMovesToConfirmation(t *testing.T) {
	store := categoryPickFixture()
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)
	user, jid := testUser(), testJID()

	e.handleText(context.Background(), user, jid, "buy")
	e.handleText(context.Background(), user, jid, "1")
	e.handleText(context.Background(), user, jid, "2")

	sess, _ := e.sessions.Get(user.WAID)
	if sess.State != StateConfirmation {
		t.Fatalf("expected confirmation, got %s", sess.State)
	}
	if sess.Selected == nil || sess.Selected.ID != "m2" {
		t.Fatalf("selection must come from the shown list, got %+v", sess.Selected)
	}
	if len(sess.ConfirmCode) != 6 {
		t.Fatalf("expected 6 digit confirm code, got %q", sess.ConfirmCode)
	}
	if !strings.Contains(sender.lastText(), sess.ConfirmCode) {
		t.Fatal("confirmation prompt should show the order code")
	}
}

func TestFlowBackEdges(t *testing.T) {
	store := categoryPickFixture()
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)
	user, jid := testUser(), testJID()

	e.handleText(context.Background(), user, jid, "buy")
	e.handleText(context.Background(), user, jid, "1")
	e.handleText(context.Background(), user, jid, "1")

	e.handleText(context.Background(), user, jid, "back")
	sess, _ := e.sessions.Get(user.WAID)
	if sess.State != StateMaterialSelection {
		t.Fatalf("back from confirmation should land on material_selection, got %s", sess.State)
	}
	if sess.Selected != nil {
		t.Fatal("back must clear the selection")
	}

	e.handleText(context.Background(), user, jid, "back")
	sess, _ = e.sessions.Get(user.WAID)
	if sess.State != StateCategorySelection {
		t.Fatalf("back from material_selection should land on category_selection, got %s", sess.State)
	}
}

func TestFlowCancelClearsSession(t *testing.T) {
	store := categoryPickFixture()
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)
	user, jid := testUser(), testJID()

	e.handleText(context.Background(), user, jid, "buy")
	e.handleText(context.Background(), user, jid, "cancel")

	if _, ok := e.sessions.Get(user.WAID); ok {
		t.Fatal("cancel must remove the session")
	}
	if sender.lastText() != cancelledMessage {
		t.Fatalf("expected cancellation reply, got %q", sender.lastText())
	}
}

func TestFlowSearchErrorAbortsSession(t *testing.T) {
	store := categoryPickFixture()
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)
	user, jid := testUser(), testJID()

	e.handleText(context.Background(), user, jid, "buy")
	store.searchErr = context.DeadlineExceeded
	e.handleText(context.Background(), user, jid, "1")

	if _, ok := e.sessions.Get(user.WAID); ok {
		t.Fatal("search failure must clear the session")
	}
	if sender.lastText() != retryMessage {
		t.Fatalf("expected retry message, got %q", sender.lastText())
	}
}

func TestFlowEmptyCategoryStaysOnMenu(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)
	user, jid := testUser(), testJID()

	e.handleText(context.Background(), user, jid, "buy")
	e.handleText(context.Background(), user, jid, "2")

	sess, ok := e.sessions.Get(user.WAID)
	if !ok || sess.State != StateCategorySelection {
		t.Fatalf("empty category must keep the menu open, got %+v ok=%v", sess, ok)
	}
	if !strings.Contains(sender.lastText(), "couldn't find anything") {
		t.Fatalf("expected empty category notice, got %q", sender.lastText())
	}
}

func TestResumeWithoutSession(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)

	e.handleText(context.Background(), testUser(), testJID(), "resume")
	if sender.lastText() != nothingToResumeMessage {
		t.Fatalf("expected nothing-to-resume reply, got %q", sender.lastText())
	}
}

func TestResumeRedisplaysCurrentStep(t *testing.T) {
	store := categoryPickFixture()
	sender := &fakeSender{}
	e := testEngine(store, sender, nil)
	user, jid := testUser(), testJID()

	e.handleText(context.Background(), user, jid, "buy")
	e.handleText(context.Background(), user, jid, "1")
	e.handleText(context.Background(), user, jid, "resume")

	sess, _ := e.sessions.Get(user.WAID)
	if sess.State != StateMaterialSelection {
		t.Fatalf("resume must not change state, got %s", sess.State)
	}
	if !strings.Contains(sender.lastText(), "Vital Signs Workbook") {
		t.Fatalf("resume should repeat the list, got %q", sender.lastText())
	}
}
