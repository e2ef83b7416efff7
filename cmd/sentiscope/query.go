package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sentiscope/internal/protocol"
	"github.com/mohammad-safakhou/sentiscope/internal/server"
	"github.com/mohammad-safakhou/sentiscope/internal/session"
)

func queryCMD(load loader) *cobra.Command {
	var artifacts []string
	query := &cobra.Command{
		Use:   `query "<text>"`,
		Short: "Run one session in-process and print its events as JSON lines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			app, err := server.Build(ctx, cfg, version, logger)
			if err != nil {
				return err
			}
			defer func() {
				cctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := app.Close(cctx); err != nil {
					logger.Warn("shutdown", zap.Error(err))
				}
			}()

			return runQuery(ctx, app.Orch, session.StartRequest{Query: strings.Join(args, " "), Artifacts: artifacts}, cmd.OutOrStdout())
		},
	}
	query.Flags().StringSliceVar(&artifacts, "artifacts", nil, "extra artifact kinds (radar_chart, map, raw_export)")
	return query
}

// runQuery streams one session's envelopes to w and waits for its terminal
// event. A terminal error event becomes the command's error.
func runQuery(ctx context.Context, orch *session.Orchestrator, req session.StartRequest, w io.Writer) error {
	enc := json.NewEncoder(w)
	done := make(chan struct{})
	var (
		once     sync.Once
		mu       sync.Mutex
		final    *protocol.Error
		writeErr error
	)
	sink := session.SinkFunc(func(e session.Event) {
		env, err := e.Envelope()
		mu.Lock()
		if err == nil {
			err = enc.Encode(env)
		}
		if err != nil && writeErr == nil {
			writeErr = err
		}
		if e.Type == protocol.TypeError && e.Terminal() {
			if p, ok := e.Payload.(protocol.Error); ok {
				final = &p
			}
		}
		mu.Unlock()
		if e.Terminal() {
			once.Do(func() { close(done) })
		}
	})

	id, err := orch.Start(ctx, req, sink)
	if err != nil {
		return err
	}
	select {
	case <-done:
	case <-ctx.Done():
		_ = orch.Cancel(id)
		<-done
	}
	orch.Wait()

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		return writeErr
	}
	if final != nil {
		return fmt.Errorf("session %s failed: %s (%s)", id, final.Message, final.Code)
	}
	return nil
}
