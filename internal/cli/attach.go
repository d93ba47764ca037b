package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tabwarden/tabwarden/internal/config"
	"github.com/tabwarden/tabwarden/internal/logging"
	"github.com/tabwarden/tabwarden/internal/model"
	"github.com/tabwarden/tabwarden/internal/pageclient"
)

var (
	attachServer string
	attachTabID  string
)

func init() {
	rootCmd.AddCommand(attachCmd)
	attachCmd.Flags().StringVar(&attachServer, "server", "", "Daemon websocket URL (default from config listen_addr)")
	attachCmd.Flags().StringVar(&attachTabID, "tab", "", "Register under a fixed tab id")
}

var attachCmd = &cobra.Command{
	Use:   "attach [url]",
	Short: "Drive a page session from the terminal",
	Long: "Connects to the daemon as a browser page would: reports navigations\n" +
		"and detector signals, prints incoming prompt directives, and resolves\n" +
		"them from stdin. Useful for exercising a policy without a browser.",
	Args: cobra.MaximumNArgs(1),
	RunE: runAttach,
}

func runAttach(cmd *cobra.Command, args []string) error {
	wsURL := attachServer
	if wsURL == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		wsURL = "ws://" + cfg.ListenAddr + "/ws/page"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := pageclient.Dial(ctx, pageclient.Config{
		URL:    wsURL,
		TabID:  attachTabID,
		Logger: logging.New("warn"),
		OnDirective: func(d model.Directive) {
			fmt.Printf("\nprompt opened: %s (risk %d, reason %s)\n", d.Context.Host, d.Risk, d.Reason)
			if d.PINRequired {
				fmt.Println("  admin PIN required to proceed")
			}
			if d.RedirectURL != "" {
				fmt.Printf("  safe redirect available: %s\n", d.RedirectURL)
			}
			fmt.Print("> ")
		},
		OnTeardown: func(reason string) {
			fmt.Printf("\nprompt torn down (%s)\n> ", reason)
		},
	})
	if err != nil {
		return err
	}
	defer client.Close()

	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "\nsession closed: %v\n", err)
			os.Exit(1)
		}
	}()

	fmt.Printf("attached as tab %s (profile %s)\n", client.TabID(), client.ProfileID())
	fmt.Println("commands: nav <url> | signals <id,...> | prompt <text> | proceed [pin] |")
	fmt.Println("          cancel | redirect | always-allow | always-block | status | quit")

	rt := client.Router()
	lastURL := ""
	if len(args) == 1 {
		lastURL = args[0]
		if err := client.Navigate(lastURL); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Print("> ")
			continue
		}

		var err error
		switch fields[0] {
		case "nav":
			if len(fields) < 2 {
				fmt.Println("usage: nav <url>")
				break
			}
			lastURL = fields[1]
			err = client.Navigate(lastURL)

		case "signals":
			if len(fields) < 2 {
				fmt.Println("usage: signals <id,...>")
				break
			}
			err = client.ReportSignals(lastURL, strings.Split(fields[1], ","), model.SensitiveFields{})

		case "prompt":
			if len(fields) < 2 {
				fmt.Println("usage: prompt <text>")
				break
			}
			err = client.ReportPrompt(lastURL, strings.Join(fields[1:], " "))

		case "proceed":
			pin := ""
			if len(fields) > 1 {
				pin = fields[1]
			}
			if err = rt.Proceed(ctx, pin); err == nil {
				fmt.Println("proceeded")
			}

		case "cancel":
			if err = rt.Cancel(ctx); err == nil {
				fmt.Printf("cancelled (state %s)\n", rt.State())
			}

		case "redirect":
			var target string
			if target, err = rt.Redirect(ctx); err == nil {
				fmt.Printf("redirecting to %s\n", target)
				lastURL = target
				err = client.Navigate(target)
			}

		case "always-allow":
			rt.SetAlways(true, false)
			fmt.Println("always-allow set on the open prompt")

		case "always-block":
			rt.SetAlways(false, true)
			fmt.Println("always-block set on the open prompt")

		case "status":
			fmt.Printf("tab:     %s\n", client.TabID())
			fmt.Printf("profile: %s\n", client.ProfileID())
			fmt.Printf("policy:  %s\n", client.PolicyHash())
			fmt.Printf("state:   %s\n", rt.State())
			if d, ok := rt.Current(); ok {
				fmt.Printf("prompt:  %s (risk %d)\n", d.Context.Host, d.Risk)
			}

		case "quit", "exit":
			return nil

		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}

		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}
