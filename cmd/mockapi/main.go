// Command mockapi serves an in-memory parliament API and realtime channel
// for running the booth without a backend
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/models"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/testutil"
)

func main() {
	addr := flag.String("addr", ":3001", "Listen address")
	token := flag.String("token", "", "Require this bearer token")
	choice := flag.String("choice", "yes", "Choice assigned to cast votes (yes or no)")
	seed := flag.Bool("seed", true, "Create sample members and motions")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	vote := models.Choice(*choice)
	if vote != models.ChoiceYes && vote != models.ChoiceNo {
		fmt.Fprintf(os.Stderr, "Invalid choice %q\n", *choice)
		os.Exit(2)
	}

	backend := testutil.NewBackend(logger)
	backend.SetNextVote(vote)
	if *token != "" {
		backend.RequireToken(*token)
	}
	if *seed {
		seedBackend(backend, logger)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Mock API listening", slog.String("address", *addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Mock API failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	backend.Hub().DropAll()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Error stopping mock API", slog.String("error", err.Error()))
	}
}

func seedBackend(b *testutil.Backend, logger *slog.Logger) {
	members := []struct{ name, constituency, role string }{
		{"Jane Wanjiru", "Westlands", "MP"},
		{"Peter Kamau", "Kiambu", "MP"},
		{"Amina Hassan", "Mombasa", "Senator"},
		{"David Otieno", "Kisumu Central", "MP"},
	}
	for _, m := range members {
		b.AddMember(m.name, m.constituency, m.role)
	}

	motions := []struct {
		title, proposedBy string
		status            models.MotionStatus
	}{
		{"Finance Bill 2026", "Treasury Committee", models.MotionPending},
		{"Public Health Amendment", "Health Committee", models.MotionPending},
		{"Roads Levy Review", "Transport Committee", models.MotionCompleted},
	}
	for _, m := range motions {
		motion := b.AddMotion(m.title, m.proposedBy, m.status)
		logger.Info("Seeded motion",
			slog.String("motion_id", motion.ID),
			slog.String("title", motion.Title),
			slog.String("status", string(motion.Status)),
		)
	}
}
