package policy

import (
	"fmt"
	"testing"

	"github.com/tabwarden/tabwarden/internal/model"
)

func BenchmarkScore_BareNavigation(b *testing.B) {
	w := DefaultWeights()
	c := model.Context{Host: "chatgpt.com", AIDomain: true}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Score(w, c)
	}
}

func BenchmarkScore_LoadedPage(b *testing.B) {
	w := DefaultWeights()
	c := model.Context{
		Host:         "docs.corp.internal",
		InternalSite: true,
		Signals:      []string{"chat_composer", "paste_area"},
		Sensitive:    model.SensitiveFields{Password: 1, Email: 3},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Score(w, c)
	}
}

func BenchmarkClassify_ListTraversal(b *testing.B) {
	p := Profile{ID: "bench", Mode: ModeBalanced, TrackPrompts: TrackOff}
	// 50 entries to force traversal past the common short-list case
	for i := 0; i < 50; i++ {
		p.BlockedDomains = append(p.BlockedDomains, fmt.Sprintf("blocked%d.example", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Classify("chat.blocked49.example")
	}
}

func BenchmarkNormalizeHost(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NormalizeHost("https://Chat.Example.COM/path?q=1")
	}
}
