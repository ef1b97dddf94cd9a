package conn

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tobsdb/samplestore/internal/engine"
	"github.com/tobsdb/samplestore/pkg"
)

func NewServeMux(e *engine.Engine) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		HandleConnection(e, w, r)
	})
	return mux
}

// Listen serves e on port and runs its background work until ctx is done.
// The engine is written to disk one last time before Listen returns.
func Listen(ctx context.Context, e *engine.Engine, port int) error {
	s := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewServeMux(e),
		ReadTimeout:  0,
		WriteTimeout: 0,
	}

	run_ctx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.Run(run_ctx)
	}()

	serve_err := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != http.ErrServerClosed {
			serve_err <- err
		}
		close(serve_err)
	}()

	pkg.InfoLog("TobsDB samples listening on port", port)
	var err error
	select {
	case <-ctx.Done():
	case err = <-serve_err:
	}

	pkg.DebugLog("Shutting down...")
	shutdown_ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Shutdown(shutdown_ctx)
	stop()
	wg.Wait()
	return err
}
