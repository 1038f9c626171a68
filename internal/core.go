package internal

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/strand-sched/strand/internal/options"
	"github.com/strand-sched/strand/pkg/syncx/errgroupx"
)

// nodeHolder hands the api server the service of the current connection
// epoch; it holds nil while a reconnect is in progress.
type nodeHolder struct {
	mu   sync.Mutex
	node *nodeService
}

func (h *nodeHolder) set(node *nodeService) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.node = node
}

func (h *nodeHolder) get() *nodeService {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.node
}

// Run runs a new node daemon with the provided options.
func Run(parent context.Context, version string, opts options.Options) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printableConfig, err := opts.Printable()
	if err != nil {
		return err
	}
	log.Infof("node configuration: %s", printableConfig)

	holder := &nodeHolder{}
	wg := errgroupx.WithContext(ctx)

	log.Trace("starting main node process")
	wg.Go(func(ctx context.Context) error {
		connectionFailureWindowBegin := time.Now()
		connectionFailureCount := 0
		for {
			err := runNodeOnce(ctx, version, opts, holder)
			switch err := err.(type) {
			case storeConnectionError:
				now := time.Now()
				if connectionFailureWindowBegin.Before(now.Add(-time.Minute)) {
					connectionFailureWindowBegin = now
					connectionFailureCount = 0
				}
				connectionFailureCount++
				if connectionFailureCount >= opts.ReconnectAttempts {
					return fmt.Errorf("failed to recover the state store connection: %w", err)
				}
				log.WithError(err).Error("attempting reconnect after delay...")
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(time.Duration(opts.ReconnectBackoff) * time.Millisecond):
				}
				continue
			default:
				return err
			}
		}
	})

	if opts.APIEnabled {
		log.Trace("starting node apiserver")
		wg.Go(func(ctx context.Context) error {
			api := newNodeAPIServer(opts, holder)
			go func() {
				<-ctx.Done()
				if err := api.close(); err != nil {
					log.WithError(err).Warn("closing the api server")
				}
			}()
			if err := api.serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("api server crashed: %w", err)
			}
			return nil
		})
	}

	return wg.Wait()
}

// runNodeOnce runs one connection epoch, keeping the holder pointed at the
// live service for the duration.
func runNodeOnce(
	ctx context.Context, version string, opts options.Options, holder *nodeHolder,
) error {
	node, err := newNodeService(version, opts)
	if err != nil {
		return err
	}
	holder.set(node)
	defer holder.set(nil)
	return node.run(ctx)
}
