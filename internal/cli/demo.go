package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/tabwarden/tabwarden/internal/audit"
	"github.com/tabwarden/tabwarden/internal/consent"
	"github.com/tabwarden/tabwarden/internal/engine"
	"github.com/tabwarden/tabwarden/internal/identity"
	"github.com/tabwarden/tabwarden/internal/logging"
	"github.com/tabwarden/tabwarden/internal/model"
	"github.com/tabwarden/tabwarden/internal/policy"
)

func init() {
	rootCmd.AddCommand(demoCmd)
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted governance session (blocklisted host must prompt)",
	RunE:  runDemo,
}

// demoSender captures directives in place of a page WebSocket.
type demoSender struct {
	mu   sync.Mutex
	dirs []model.Directive
}

func (s *demoSender) SendToTab(tabID string, env model.Envelope) error {
	msg, err := model.Decode(env)
	if err != nil {
		return err
	}
	if d, ok := msg.(model.Directive); ok {
		s.mu.Lock()
		s.dirs = append(s.dirs, d)
		s.mu.Unlock()
	}
	return nil
}

func (s *demoSender) Broadcast(env model.Envelope) {}

func (s *demoSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirs)
}

func (s *demoSender) last() model.Directive {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirs[len(s.dirs)-1]
}

func runDemo(cmd *cobra.Command, args []string) error {
	fmt.Println("=== tabwarden Demo ===")
	fmt.Println("Purpose: prove prompts fire at AI boundaries and the blocklist cannot be bypassed.")
	fmt.Println()

	tmpDir, err := os.MkdirTemp("", "tabwarden-demo-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	doc := policy.DefaultDocument()
	doc.AdminPIN = "4312"
	for i := range doc.Profiles {
		if doc.Profiles[i].ID == "balanced" {
			doc.Profiles[i].RequirePIN = true
			doc.Profiles[i].BlockedDomains = []string{"badtool.ai"}
		}
	}
	policyPath := filepath.Join(tmpDir, "policy.json")
	if err := policy.Save(policyPath, doc); err != nil {
		return fmt.Errorf("write demo policy: %w", err)
	}

	store := policy.NewStore(policyPath)
	if _, err := store.Load(); err != nil {
		return fmt.Errorf("load demo policy: %w", err)
	}

	logPath := filepath.Join(tmpDir, "decisions.log")
	sink, err := audit.Open(logPath)
	if err != nil {
		return fmt.Errorf("open decision log: %w", err)
	}
	defer sink.Close()

	sender := &demoSender{}
	eng := engine.New(engine.Config{
		Store:    store,
		Consent:  consent.NewMemoryStore(0, 0),
		Sink:     sink,
		Logger:   logging.Discard(),
		Identity: identity.Identity{ID: "demo-install"},
	})
	eng.SetSender(sender)

	ctx := context.Background()
	const tab = "demo-tab"
	blockedPrompted := false

	step := func(label string, silent bool, fn func() error) error {
		before := sender.count()
		if err := fn(); err != nil {
			fmt.Printf("  ✗ %s -> error: %v\n", label, err)
			return err
		}
		prompted := sender.count() > before
		switch {
		case silent && !prompted:
			fmt.Printf("  ✓ %s -> silent\n", label)
		case !silent && prompted:
			d := sender.last()
			detail := fmt.Sprintf("prompt (risk %d)", d.Risk)
			if d.PINRequired {
				detail = fmt.Sprintf("prompt (risk %d, PIN required)", d.Risk)
			}
			fmt.Printf("  ✓ %s -> %s\n", label, detail)
		case silent && prompted:
			fmt.Printf("  ✗ %s -> unexpected prompt\n", label)
		default:
			fmt.Printf("  ✗ %s -> expected a prompt, got silence\n", label)
		}
		return nil
	}

	nav := func(url string) func() error {
		return func() error {
			return eng.HandleNavigation(ctx, model.Nav{TabID: tab, URL: url})
		}
	}

	if err := step("navigate github.com", true, nav("https://github.com/")); err != nil {
		return err
	}
	if err := step("navigate chatgpt.com", false, nav("https://chatgpt.com/")); err != nil {
		return err
	}
	if err := step("user proceeds", true, func() error {
		return eng.HandleDecision(ctx, model.DecisionReport{
			TabID:  tab,
			URL:    "https://chatgpt.com/",
			Action: model.ActionProceed,
		})
	}); err != nil {
		return err
	}
	if err := step("revisit chatgpt.com", true, nav("https://chatgpt.com/chat")); err != nil {
		return err
	}

	before := sender.count()
	if err := step("navigate badtool.ai (blocklisted)", false, nav("https://badtool.ai/")); err != nil {
		return err
	}
	if sender.count() > before {
		d := sender.last()
		blockedPrompted = d.Risk == policy.MaxRisk && d.PINRequired
	}

	fmt.Println()
	fmt.Println("Verifying decision log chain...")
	result := audit.Verify(logPath)
	if result.Valid {
		fmt.Printf("  ✓ %d entries, chain intact\n", result.Lines)
	} else {
		fmt.Printf("  ✗ chain broken at line %d: %s\n", result.ErrorLine, result.Error)
	}

	entries, err := audit.ReadAll(logPath, audit.Filter{})
	if err == nil {
		kinds := map[string]int{}
		for _, e := range entries {
			kinds[e.Kind]++
		}
		fmt.Println()
		fmt.Println("Recorded:")
		for kind, n := range kinds {
			fmt.Printf("  %-24s %d\n", kind, n)
		}
	}

	fmt.Println()
	if !blockedPrompted || !result.Valid {
		fmt.Println("FAIL: blocklisted host did not produce a max-risk PIN prompt.")
		os.Exit(1)
	}
	fmt.Println("PASS: blocklisted host prompted at max risk with PIN. Governance verified.")
	return nil
}
