package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ttinbox/inboxd"
)

func main() {
	// start mock providers (see mock_server.go)
	go StartMockCanvasServer(":9998")
	go StartMockSMSServer(":9997")
	time.Sleep(100 * time.Millisecond)

	// aggressive intervals and a short ladder so the demo escalates
	// within minutes instead of days
	inbox, err := inboxd.New(
		inboxd.WithCanvas("http://localhost:9998", "demo-token"),
		inboxd.WithSMSProvider("http://localhost:9997", "demo-token", "+15550001111"),
		inboxd.WithDefaultPhone("+15557654321"),
		inboxd.WithPollInterval(time.Minute),
		inboxd.WithTickInterval(10*time.Second),
		inboxd.WithEscalationOffsets(4*time.Hour, 2*time.Hour, time.Hour),
		inboxd.WithPort(8080),
		inboxd.WithReminderCallback(func(u inboxd.ReminderUpdate) {
			if u.Status == inboxd.StatusFailed {
				slog.Warn("reminder failed", "id", u.ID, "error", u.LastError)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create inbox", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Inboxd Demo                                         ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   API at http://localhost:8080                        ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   • Mock Canvas on :9998 (3 assignments due soon)     ║")
	fmt.Println("  ║   • Mock SMS provider on :9997 (logs messages)        ║")
	fmt.Println("  ║   • Watch live updates: curl :8080/api/events         ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := inbox.Start(ctx); err != nil {
		slog.Error("inboxd error", "error", err)
		os.Exit(1)
	}
}
