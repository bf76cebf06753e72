package convo

import (
	"fmt"
	"strings"

	"study-bot/internal/repo"
)

// categoryLabels are the human names shown in menus, aligned by index with
// repo.Categories.
var categoryLabels = map[string]string{
	repo.CategoryFundamentals:      "Nursing Fundamentals & Skills",
	repo.CategoryMedicalSurgical:   "Medical-Surgical Nursing",
	repo.CategoryPharmacology:      "Pharmacology & Drug Calculations",
	repo.CategoryMaternalPediatric: "Maternal & Pediatric Nursing",
}

func categoryLabel(cat string) string {
	if label, ok := categoryLabels[cat]; ok {
		return label
	}
	return cat
}

func welcomeMessage(name string) string {
	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "Hi %s! 👋\n\n", name)
	} else {
		b.WriteString("Hi there! 👋\n\n")
	}
	b.WriteString("I'm your study materials assistant. Here's what I can do:\n\n")
	b.WriteString("📚 *buy* - browse and download study materials\n")
	b.WriteString("📖 *history* - see your past downloads\n")
	b.WriteString("❓ Or just ask me a study question\n\n")
	b.WriteString("Type *cancel* any time to leave a flow.")
	return b.String()
}

func categoryMenu() string {
	var b strings.Builder
	b.WriteString("Which subject are you studying? Reply with a number:\n\n")
	for i, cat := range repo.Categories {
		fmt.Fprintf(&b, "%d. %s\n", i+1, categoryLabel(cat))
	}
	b.WriteString("\nOr type *cancel* to stop.")
	return b.String()
}

func materialListMessage(category string, items []ScoredMaterial) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here's what I found in *%s*:\n\n", categoryLabel(category))
	for i, it := range items {
		fmt.Fprintf(&b, "%d. *%s*", i+1, it.Title)
		if it.Price != "" {
			fmt.Fprintf(&b, " - %s", priceLabel(it.Price))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nReply with a number to pick one, *back* for categories, or *cancel* to stop.")
	return b.String()
}

func priceLabel(price string) string {
	if strings.EqualFold(price, "Free") || price == "" {
		return "Free"
	}
	return price
}

func confirmMessage(item *repo.Material, code string) string {
	var b strings.Builder
	b.WriteString("You picked:\n\n")
	fmt.Fprintf(&b, "📄 *%s*\n", item.Title)
	fmt.Fprintf(&b, "💰 %s\n", priceLabel(item.Price))
	fmt.Fprintf(&b, "🔖 Order code: %s\n\n", code)
	b.WriteString("Type *download* to get the file, *back* to pick another, or *cancel* to stop.")
	return b.String()
}

func deliveredMessage(item *repo.Material) string {
	return fmt.Sprintf("✅ Sent! Enjoy *%s*.\n\nType *buy* whenever you need more materials.", item.Title)
}

func noMaterialsMessage(category string) string {
	return fmt.Sprintf("Sorry, I couldn't find anything in *%s* right now. Pick another category:\n\n%s",
		categoryLabel(category), categoryMenu())
}

func historyMessage(entries []repo.DownloadEntry) string {
	if len(entries) == 0 {
		return "You haven't downloaded anything yet. Type *buy* to browse the catalog."
	}
	var b strings.Builder
	b.WriteString("Your recent downloads:\n\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s (%s) - %s\n", i+1, e.Title, categoryLabel(e.Category), e.CreatedAt.Format("2 Jan 2006"))
	}
	return b.String()
}

const (
	retryMessage = "Something went wrong on my side. Your session was reset, please type *buy* to start again."

	cancelledMessage = "Okay, cancelled. Type *buy* whenever you want to browse again."

	nothingToResumeMessage = "There's nothing to resume. Type *buy* to start browsing materials."

	invalidCategoryMessage = "I didn't catch that. Reply with one of the numbers above, or type *cancel*."

	invalidSelectionMessage = "That's not one of the listed options. Reply with a number from the list, *back*, or *cancel*."

	confirmHintMessage = "Just type *download* to get the file, *back* to pick another, or *cancel*."

	contentMissingMessage = "Sorry, the file for that material is missing. I've reset your session, please pick something else with *buy*."

	tooLargeMessage = "Sorry, that file is too large to send over chat. I've reset your session, please pick something else with *buy*."

	sendFailedMessage = "I couldn't deliver the file. Your session was reset, please try again with *buy*."

	tutorFallbackMessage = "I can't answer study questions right now, but I can still send you materials. Type *buy* to browse the catalog."
)
